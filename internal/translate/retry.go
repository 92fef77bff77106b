package translate

import (
	"fmt"
	"net/http"

	"github.com/landrecords/rag-engine/internal/domain"
)

// shouldRetry determines if an HTTP status is worth another attempt
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests: // 429
		return true
	case http.StatusInternalServerError: // 500
		return true
	case http.StatusBadGateway: // 502
		return true
	case http.StatusServiceUnavailable: // 503
		return true
	case http.StatusGatewayTimeout: // 504
		return true
	default:
		return false
	}
}

// statusError converts a non-200 response into a domain error. Statuses the
// provider will keep rejecting are marked permanent so the pipeline does not
// retry them.
func statusError(statusCode int, body string) error {
	err := domain.TranslationError(fmt.Sprintf("API returned status %d: %s", statusCode, truncate(body, 512)), nil)
	if !shouldRetry(statusCode) {
		return err.AsPermanent()
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
