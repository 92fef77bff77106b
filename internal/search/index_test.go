package search

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landrecords/rag-engine/internal/domain"
)

func entry(job string, seq int, original, translated string) Entry {
	return Entry{
		ChunkID:    domain.ChunkID(job, seq),
		JobID:      job,
		Sequence:   seq,
		Pages:      domain.PageRange{Start: seq * 10, End: seq*10 + 10},
		Original:   original,
		Translated: translated,
		Confidence: 0.9,
	}
}

func chunkIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases and splits punctuation", "Khasra No. 123, Village Rampur", []string{"khasra", "no", "123", "village", "rampur"}},
		{"drops stop words and single runes", "what is the owner of a plot", []string{"owner", "plot"}},
		{"keeps urdu words", "کھسرہ نمبر ۱۲۳", []string{"کھسرہ", "نمبر", "۱۲۳"}},
		{"keeps hindi words with marks", "खसरा संख्या", []string{"खसरा", "संख्या"}},
		{"empty", "  --  ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuery_EmptyIndexAndNoOverlap(t *testing.T) {
	idx := NewIndex()
	assert.Empty(t, idx.Query("khasra", 3))

	idx.Add(entry("job", 0, "owner Ram Singh", ""))
	assert.Empty(t, idx.Query("mutation register", 3))
	assert.Empty(t, idx.Query("the of", 3), "stop-word-only queries match nothing")
}

func TestQuery_RanksByTermFrequency(t *testing.T) {
	idx := NewIndex()
	idx.Add(entry("job", 0, "khasra 12 area 3 bigha", ""))
	idx.Add(entry("job", 1, "khasra 14 khasra 15 owner Ram", ""))
	idx.Add(entry("job", 2, "unrelated page", ""))

	hits := idx.Query("khasra owner", 10)
	require.Len(t, hits, 2)
	assert.Equal(t, []string{"job:1", "job:0"}, chunkIDs(hits))
	assert.Equal(t, 3.0, hits[0].Score)
	assert.Equal(t, 1.0, hits[1].Score)
}

func TestQuery_DistinctQueryTerms(t *testing.T) {
	idx := NewIndex()
	idx.Add(entry("job", 0, "khasra 12", ""))

	hits := idx.Query("khasra khasra khasra", 1)
	require.Len(t, hits, 1)
	assert.Equal(t, 1.0, hits[0].Score)
}

func TestQuery_TiesBreakBySequence(t *testing.T) {
	idx := NewIndex()
	idx.Add(entry("job", 3, "village Rampur", ""))
	idx.Add(entry("job", 1, "village Sultanpur", ""))
	idx.Add(entry("job", 2, "village Kheri", ""))

	hits := idx.Query("village", 0)
	assert.Equal(t, []string{"job:1", "job:2", "job:3"}, chunkIDs(hits))
}

func TestQuery_TiesAcrossJobsBreakByInsertion(t *testing.T) {
	idx := NewIndex()
	idx.Add(entry("b", 0, "mutation entry", ""))
	idx.Add(entry("a", 0, "mutation entry", ""))

	hits := idx.Query("mutation", 5)
	assert.Equal(t, []string{"b:0", "a:0"}, chunkIDs(hits))
}

func TestQuery_SearchesTranslatedText(t *testing.T) {
	idx := NewIndex()
	idx.Add(entry("job", 0, "مالک رام", "owner Ram"))

	hits := idx.Query("owner", 5)
	require.Len(t, hits, 1)
	assert.Equal(t, "owner Ram", hits[0].Translated)

	hits = idx.Query("مالک", 5)
	require.Len(t, hits, 1)
}

func TestQuery_DefaultTopK(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 8; i++ {
		idx.Add(entry("job", i, "jamabandi record", ""))
	}
	assert.Len(t, idx.Query("jamabandi", 0), DefaultTopK)
	assert.Len(t, idx.Query("jamabandi", -1), DefaultTopK)
	assert.Len(t, idx.Query("jamabandi", 2), 2)
}

func TestAdd_ReplacesExistingChunk(t *testing.T) {
	idx := NewIndex()
	idx.Add(entry("job", 0, "old text", ""))
	idx.Add(entry("job", 0, "new survey text", ""))

	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.Query("old", 5))
	assert.Len(t, idx.Query("survey", 5), 1)
}

func TestAddResult(t *testing.T) {
	idx := NewIndex()

	ok := idx.AddResult("job", domain.ChunkResult{
		ChunkID:     "job:0",
		Sequence:    0,
		State:       domain.ChunkTranslated,
		CleanedText: "khata 45",
	})
	assert.True(t, ok)

	ok = idx.AddResult("job", domain.ChunkResult{
		ChunkID:     "job:1",
		Sequence:    1,
		State:       domain.ChunkFailed,
		CleanedText: "[chunk 1 pages 11-20 failed: boom]",
	})
	assert.False(t, ok)

	ok = idx.AddResult("job", domain.ChunkResult{ChunkID: "job:2", Sequence: 2, State: domain.ChunkOCRDone})
	assert.False(t, ok)

	assert.Equal(t, 1, idx.Len())
}

func TestRemoveJob(t *testing.T) {
	idx := NewIndex()
	idx.Add(entry("a", 0, "khasra", ""))
	idx.Add(entry("a", 1, "khasra", ""))
	idx.Add(entry("b", 0, "khasra", ""))

	assert.Equal(t, 2, idx.RemoveJob("a"))
	assert.Equal(t, 0, idx.RemoveJob("a"))
	assert.Equal(t, []string{"b:0"}, chunkIDs(idx.Query("khasra", 5)))
}

func TestIndex_ConcurrentUse(t *testing.T) {
	idx := NewIndex()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			idx.Add(entry(fmt.Sprintf("job-%d", i), 0, "girdawari record", ""))
		}(i)
		go func() {
			defer wg.Done()
			_ = idx.Query("girdawari", 3)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, idx.Len())
}
