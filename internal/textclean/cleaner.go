// Package textclean normalizes raw OCR output before translation and
// indexing.
package textclean

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	multiSpace       = regexp.MustCompile(` +`)
	manyNewlines     = regexp.MustCompile(`\n{3,}`)
	standalonePunct  = regexp.MustCompile(`[ \t]+[^\p{L}\p{N}_\s][ \t]+`)
	noiseRunes       = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	repeatedSpaceRun = regexp.MustCompile(`\s{2,}`)

	noiseReplacer = strings.NewReplacer(
		"~", "", "`", "", "^", "",
		"§", "", "¶", "", "†", "", "‡", "", "•", "",
	)
)

// Report describes one cleaning pass.
type Report struct {
	Original      string   `json:"original"`
	Cleaned       string   `json:"cleaned"`
	Operations    []string `json:"operations"`
	CharReduction int      `json:"char_reduction"`
	QualityScore  float64  `json:"quality_score"` // 0..100
}

// Cleaner implements domain.Cleaner.
type Cleaner struct{}

// New returns a Cleaner.
func New() *Cleaner {
	return &Cleaner{}
}

// Clean returns the normalized text.
func (c *Cleaner) Clean(text string) string {
	return c.CleanWithReport(text).Cleaned
}

// CleanWithReport runs every cleaning step and records what changed.
func (c *Cleaner) CleanWithReport(text string) Report {
	if text == "" {
		return Report{}
	}

	var ops []string
	cleaned := collapseWhitespace(text)
	ops = append(ops, "removed extra whitespace")

	cleaned = removeNoise(cleaned)
	ops = append(ops, "removed unwanted characters")

	var dropped int
	cleaned, dropped = dedupeLines(cleaned)
	if dropped > 0 {
		ops = append(ops, pluralize(dropped, "duplicate line")+" removed")
	}

	cleaned = norm.NFC.String(cleaned)
	ops = append(ops, "normalized unicode")

	cleaned = strings.TrimSpace(cleaned)

	return Report{
		Original:      text,
		Cleaned:       cleaned,
		Operations:    ops,
		CharReduction: len([]rune(text)) - len([]rune(cleaned)),
		QualityScore:  QualityScore(text, cleaned),
	}
}

func collapseWhitespace(text string) string {
	out := multiSpace.ReplaceAllString(text, " ")
	out = manyNewlines.ReplaceAllString(out, "\n\n")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}

func removeNoise(text string) string {
	out := noiseReplacer.Replace(text)
	return standalonePunct.ReplaceAllString(out, " ")
}

// dedupeLines drops lines identical to the previous kept line.
func dedupeLines(text string) (string, int) {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	prev := ""
	first := true
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !first && trimmed == prev {
			continue
		}
		kept = append(kept, line)
		prev = trimmed
		first = false
	}
	return strings.Join(kept, "\n"), len(lines) - len(kept)
}

// QualityScore rates how much noise cleaning removed, from 0 to 100. Noise
// reduction weighs 60 and whitespace improvement 40.
func QualityScore(original, cleaned string) float64 {
	if original == "" {
		return 0
	}

	origNoise := len(noiseRunes.FindAllStringIndex(original, -1))
	cleanNoise := len(noiseRunes.FindAllStringIndex(cleaned, -1))
	origSpaces := len(repeatedSpaceRun.FindAllStringIndex(original, -1))
	cleanSpaces := len(repeatedSpaceRun.FindAllStringIndex(cleaned, -1))

	noiseReduction := float64(max(0, origNoise-cleanNoise)) / float64(max(origNoise, 1))
	spaceImprovement := float64(max(0, origSpaces-cleanSpaces)) / float64(max(origSpaces, 1))

	score := noiseReduction*60 + spaceImprovement*40
	return math.Round(score*100) / 100
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
