package pipeline

import "github.com/landrecords/rag-engine/internal/domain"

// reorderBuffer holds out-of-order completions until every earlier sequence
// number has been released.
type reorderBuffer struct {
	next    int
	pending map[int]domain.ChunkResult
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{pending: make(map[int]domain.ChunkResult)}
}

// Push records a completion and returns the results that can now be
// released, in sequence order.
func (b *reorderBuffer) Push(res domain.ChunkResult) []domain.ChunkResult {
	b.pending[res.Sequence] = res

	var ready []domain.ChunkResult
	for {
		r, ok := b.pending[b.next]
		if !ok {
			return ready
		}
		delete(b.pending, b.next)
		ready = append(ready, r)
		b.next++
	}
}

// Held returns how many completions are waiting on an earlier sequence.
func (b *reorderBuffer) Held() int {
	return len(b.pending)
}
