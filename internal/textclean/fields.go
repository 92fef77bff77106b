package textclean

import (
	"regexp"
	"strings"
)

// Land record fields commonly present in translated revenue documents.
var fieldPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"survey_number", regexp.MustCompile(`(?i)Survey\s*No[.:]\s*(\d+[-/]?\d*)`)},
	{"khata_number", regexp.MustCompile(`(?i)Khata\s*No[.:]\s*(\d+)`)},
	{"khasra_number", regexp.MustCompile(`(?i)Khasra\s*No[.:]\s*(\d+[-/]?\d*)`)},
	{"area", regexp.MustCompile(`(?i)Area[:\s]*([\d.]+\s*(?:hectare|acre|kanal|marla|sq\.?\s*m))`)},
	{"owner_name", regexp.MustCompile(`(?im)Owner[:\s]*([A-Za-z][A-Za-z ]*?)\s*$`)},
	{"village", regexp.MustCompile(`(?im)Village[:\s]*([A-Za-z][A-Za-z ]*?)\s*$`)},
}

// ExtractFields pulls structured land record fields out of English text.
// Only the first match per field is kept; missing fields are omitted.
func ExtractFields(text string) map[string]string {
	fields := make(map[string]string)
	for _, fp := range fieldPatterns {
		if m := fp.pattern.FindStringSubmatch(text); len(m) > 1 {
			if v := strings.TrimSpace(m[1]); v != "" {
				fields[fp.name] = v
			}
		}
	}
	return fields
}
