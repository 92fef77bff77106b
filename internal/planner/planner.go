// Package planner splits a document's pages into contiguous chunks.
package planner

import "github.com/landrecords/rag-engine/internal/domain"

// DefaultMaxPagesPerChunk keeps a chunk's OCR and translation latency bounded.
const DefaultMaxPagesPerChunk = 10

// Planner produces deterministic chunk plans.
type Planner struct {
	maxPages int
}

// New creates a planner. maxPagesPerChunk <= 0 selects the default.
func New(maxPagesPerChunk int) *Planner {
	if maxPagesPerChunk <= 0 {
		maxPagesPerChunk = DefaultMaxPagesPerChunk
	}
	return &Planner{maxPages: maxPagesPerChunk}
}

// MaxPagesPerChunk returns the chunk size in effect.
func (p *Planner) MaxPagesPerChunk() int {
	return p.maxPages
}

// Plan partitions totalPages into chunks of at most MaxPagesPerChunk pages.
// Chunk i covers [i*k, min((i+1)*k, totalPages)); the last chunk takes the
// remainder. Zero pages yields an empty plan.
func (p *Planner) Plan(jobID string, totalPages int) []domain.ChunkDescriptor {
	if totalPages <= 0 {
		return []domain.ChunkDescriptor{}
	}

	count := (totalPages + p.maxPages - 1) / p.maxPages
	chunks := make([]domain.ChunkDescriptor, 0, count)
	for seq := 0; seq < count; seq++ {
		start := seq * p.maxPages
		end := min(start+p.maxPages, totalPages)
		chunks = append(chunks, domain.ChunkDescriptor{
			ChunkID:  domain.ChunkID(jobID, seq),
			JobID:    jobID,
			Sequence: seq,
			Pages:    domain.PageRange{Start: start, End: end},
		})
	}
	return chunks
}

// Count returns how many chunks Plan would produce.
func (p *Planner) Count(totalPages int) int {
	if totalPages <= 0 {
		return 0
	}
	return (totalPages + p.maxPages - 1) / p.maxPages
}
