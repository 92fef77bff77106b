package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/observability"
)

const (
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel  = "google/gemini-2.5-flash"

	// llmConfidence is reported for every successful model translation; the
	// API exposes no per-response score.
	llmConfidence = 0.95
)

// ClientConfig configures the chat-completions translator.
type ClientConfig struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client translates text through an OpenRouter-compatible chat completions API.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *observability.Logger
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents message content in a response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewClient creates a new LLM translation client
func NewClient(cfg ClientConfig, logger *observability.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = openRouterURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Client{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Model returns the model identifier used for cache versioning.
func (c *Client) Model() string {
	return c.model
}

// Translate sends one translation request. It does not retry; the caller
// decides based on domain.IsPermanent.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (domain.Translation, error) {
	if err := validateInput(text, sourceLang, targetLang); err != nil {
		return domain.Translation{}, err
	}

	body, err := json.Marshal(c.buildRequest(text, sourceLang, targetLang))
	if err != nil {
		return domain.Translation{}, domain.TranslationError("failed to marshal request", err).AsPermanent()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return domain.Translation{}, domain.TranslationError("failed to build request", err).AsPermanent()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/landrecords/rag-engine")
	req.Header.Set("X-Title", "Land Record RAG Engine")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Translation{}, ctxErr
		}
		return domain.Translation{}, domain.TranslationError("failed to send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Translation{}, domain.TranslationError("failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.Translation{}, statusError(resp.StatusCode, string(respBody))
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.Translation{}, domain.TranslationError("failed to parse response", err)
	}
	if parsed.Error != nil {
		return domain.Translation{}, domain.TranslationError("provider error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return domain.Translation{}, domain.TranslationError("response has no choices", nil)
	}

	translated := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if translated == "" {
		return domain.Translation{}, domain.TranslationError("empty translation returned", nil)
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("input_chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("translation complete")

	return domain.Translation{Text: translated, Confidence: llmConfidence}, nil
}

// buildRequest constructs the chat request for one translation
func (c *Client) buildRequest(text, sourceLang, targetLang string) *Request {
	return &Request{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: buildPrompt(sourceLang, targetLang)},
			{Role: "user", Content: text},
		},
		Stream:      false,
		Temperature: 0,
	}
}

// buildPrompt creates the translation instructions
func buildPrompt(sourceLang, targetLang string) string {
	src, _ := LanguageName(sourceLang)
	tgt, _ := LanguageName(targetLang)

	return fmt.Sprintf(`You are translating OCR output from scanned land revenue records.

Translate the user's %s text into %s.

RULES:
- Output ONLY the translation, with no preamble or explanation
- Preserve line breaks and the order of entries
- Keep numbers, survey/khasra/khata numbers and dates exactly as written
- Transliterate personal names and place names; do not translate them
- Keep land record terms such as Jamabandi, Khasra, Khata, Khewat, Mauza, Tehsil and Patwari in transliterated form
- If a fragment is illegible OCR noise, leave it out rather than guessing`, src, tgt)
}
