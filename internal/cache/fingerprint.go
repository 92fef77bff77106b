package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const fingerprintVersion = "v1"

// FingerprintInput holds everything that determines a chunk's output.
// Job identity is deliberately absent so identical content shares entries.
type FingerprintInput struct {
	ModelVersion string
	SourceLang   string
	TargetLang   string
	Translate    bool
	PageDigests  []string
}

// Fingerprint returns the hex SHA-256 cache key for a chunk.
func Fingerprint(in FingerprintInput) string {
	parts := []string{
		fingerprintVersion,
		in.ModelVersion,
		in.SourceLang,
		in.TargetLang,
		strconv.FormatBool(in.Translate),
		strings.Join(in.PageDigests, ","),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// Key generates a backend key from components.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
