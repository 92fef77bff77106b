// Package search provides term-overlap lookup over processed chunks.
package search

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/landrecords/rag-engine/internal/domain"
)

// DefaultTopK is used when a query asks for zero or fewer hits.
const DefaultTopK = 5

// Entry is one searchable chunk.
type Entry struct {
	ChunkID               string           `json:"chunk_id"`
	JobID                 string           `json:"job_id"`
	Sequence              int              `json:"sequence"`
	Pages                 domain.PageRange `json:"pages"`
	Original              string           `json:"original"`
	Translated            string           `json:"translated,omitempty"`
	Confidence            float64          `json:"confidence"`
	TranslationConfidence float64          `json:"translation_confidence,omitempty"`
}

// Hit is a ranked query result.
type Hit struct {
	Entry
	Score float64 `json:"score"`
}

type indexed struct {
	entry Entry
	terms map[string]int
	order uint64
}

// Index is an in-memory term-frequency index. It is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*indexed
	next    uint64
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]*indexed)}
}

// Add indexes an entry. Re-adding a chunk id replaces its text but keeps its
// original insertion position.
func (x *Index) Add(e Entry) {
	terms := make(map[string]int)
	for _, tok := range Tokenize(e.Original) {
		terms[tok]++
	}
	for _, tok := range Tokenize(e.Translated) {
		terms[tok]++
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if existing, ok := x.entries[e.ChunkID]; ok {
		existing.entry = e
		existing.terms = terms
		return
	}
	x.entries[e.ChunkID] = &indexed{entry: e, terms: terms, order: x.next}
	x.next++
}

// AddResult indexes a processed chunk. Failed chunks carry only an error
// marker and are skipped.
func (x *Index) AddResult(jobID string, res domain.ChunkResult) bool {
	if res.Failed() || strings.TrimSpace(res.CleanedText) == "" {
		return false
	}
	x.Add(Entry{
		ChunkID:               res.ChunkID,
		JobID:                 jobID,
		Sequence:              res.Sequence,
		Pages:                 res.Pages,
		Original:              res.CleanedText,
		Translated:            res.TranslatedText,
		Confidence:            res.Confidence,
		TranslationConfidence: res.TranslationConfidence,
	})
	return true
}

// Query ranks entries by the summed frequency of the distinct query terms.
// Entries with no overlap are never returned. Equal scores order by chunk
// sequence, then by insertion.
func (x *Index) Query(text string, topK int) []Hit {
	if topK <= 0 {
		topK = DefaultTopK
	}

	query := distinct(Tokenize(text))
	if len(query) == 0 {
		return []Hit{}
	}

	type candidate struct {
		hit   Hit
		order uint64
	}

	x.mu.RLock()
	candidates := make([]candidate, 0, len(x.entries))
	for _, ix := range x.entries {
		score := 0
		for _, term := range query {
			score += ix.terms[term]
		}
		if score == 0 {
			continue
		}
		candidates = append(candidates, candidate{
			hit:   Hit{Entry: ix.entry, Score: float64(score)},
			order: ix.order,
		})
	}
	x.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.hit.Score != b.hit.Score {
			return a.hit.Score > b.hit.Score
		}
		if a.hit.Sequence != b.hit.Sequence {
			return a.hit.Sequence < b.hit.Sequence
		}
		return a.order < b.order
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	hits := make([]Hit, topK)
	for i := 0; i < topK; i++ {
		hits[i] = candidates[i].hit
	}
	return hits
}

// RemoveJob drops every entry of a job and reports how many were removed.
func (x *Index) RemoveJob(jobID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed := 0
	for id, ix := range x.entries {
		if ix.entry.JobID == jobID {
			delete(x.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Tokenize lowercases text and splits it on anything that is not a letter,
// mark or digit. Stop words and single-rune tokens are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func distinct(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "with": true, "by": true, "from": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "should": true, "could": true,
	"can": true, "what": true, "which": true, "who": true, "where": true,
	"when": true, "why": true, "how": true, "about": true, "me": true,
	"my": true, "this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "show": true, "find": true,
}
