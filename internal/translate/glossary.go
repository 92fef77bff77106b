package translate

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/landrecords/rag-engine/internal/domain"
)

//go:embed glossaries/*.yaml
var glossaryFS embed.FS

// GlossaryFile is the YAML layout of a term list.
type GlossaryFile struct {
	Version int               `yaml:"version"`
	Source  string            `yaml:"source"`
	Target  string            `yaml:"target"`
	Terms   map[string]string `yaml:"terms"`
}

// Glossary is a dictionary translator for land record vocabulary. Longer
// terms are substituted first so phrases win over their parts.
type Glossary struct {
	source string
	target string
	terms  map[string]string
	keys   []string
	model  string
}

// NewGlossary loads the built-in Urdu to English glossary and merges the
// optional extra file on top of it.
func NewGlossary(extraPath string) (*Glossary, error) {
	data, err := glossaryFS.ReadFile("glossaries/ur_en.yaml")
	if err != nil {
		return nil, fmt.Errorf("read built-in glossary: %w", err)
	}

	base, err := parseGlossary(data)
	if err != nil {
		return nil, fmt.Errorf("parse built-in glossary: %w", err)
	}

	if extraPath != "" {
		extraData, err := os.ReadFile(extraPath)
		if err != nil {
			return nil, fmt.Errorf("read glossary %s: %w", extraPath, err)
		}
		extra, err := parseGlossary(extraData)
		if err != nil {
			return nil, fmt.Errorf("parse glossary %s: %w", extraPath, err)
		}
		for k, v := range extra.Terms {
			base.Terms[k] = v
		}
	}

	return newGlossary(base.Source, base.Target, base.Terms), nil
}

func parseGlossary(data []byte) (*GlossaryFile, error) {
	var f GlossaryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Terms == nil {
		f.Terms = make(map[string]string)
	}
	return &f, nil
}

func newGlossary(source, target string, terms map[string]string) *Glossary {
	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := len([]rune(keys[i])), len([]rune(keys[j]))
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})

	// The model tag changes whenever the term list does, so cached
	// translations from an older glossary are not reused.
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k + "=" + terms[k] + "\n"))
	}

	return &Glossary{
		source: source,
		target: target,
		terms:  terms,
		keys:   keys,
		model:  "glossary-" + hex.EncodeToString(h.Sum(nil))[:12],
	}
}

func (g *Glossary) Model() string { return g.model }

// Len returns the number of terms.
func (g *Glossary) Len() int { return len(g.terms) }

// Translate substitutes known terms line by line. Confidence grows with the
// share of source-script characters that were replaced, from 0.5 to 0.95.
func (g *Glossary) Translate(ctx context.Context, text, sourceLang, targetLang string) (domain.Translation, error) {
	if err := validateInput(text, sourceLang, targetLang); err != nil {
		return domain.Translation{}, err
	}
	if !strings.EqualFold(sourceLang, g.source) || !strings.EqualFold(targetLang, g.target) {
		return domain.Translation{}, domain.TranslationError(
			fmt.Sprintf("glossary translates %s to %s only", g.source, g.target), nil).AsPermanent()
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = g.translateLine(line)
	}
	translated := strings.Join(lines, "\n")

	return domain.Translation{
		Text:       translated,
		Confidence: glossaryConfidence(text, translated),
	}, nil
}

func (g *Glossary) translateLine(line string) string {
	if strings.TrimSpace(line) == "" {
		return ""
	}
	out := line
	for _, k := range g.keys {
		if strings.Contains(out, k) {
			out = strings.ReplaceAll(out, k, g.terms[k])
		}
	}
	return strings.Join(strings.Fields(out), " ")
}

func glossaryConfidence(original, translated string) float64 {
	before := countArabicScript(original)
	if before == 0 {
		return 0.9
	}
	after := countArabicScript(translated)
	ratio := 1 - float64(after)/float64(before)
	conf := 0.5 + ratio*0.45
	if conf > 0.95 {
		conf = 0.95
	}
	return float64(int(conf*100+0.5)) / 100
}

func countArabicScript(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x0600 && r <= 0x06FF {
			n++
		}
	}
	return n
}
