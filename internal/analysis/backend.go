package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Backend sends one prompt to a completion service and returns the raw text
// of the answer.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Name identifies the provider in errors and logs.
	Name() string
}

// Provider names accepted by NewBackend.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Providers lists every supported provider.
var Providers = []string{ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama}

const (
	defaultMaxTokens   = 4000
	defaultTemperature = 0.7
)

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// NewBackend builds the Backend for cfg.Provider. Unset models and base URLs
// fall back to each provider's defaults.
func NewBackend(cfg BackendConfig) (Backend, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	client := &http.Client{Timeout: cfg.Timeout}
	base := strings.TrimRight(cfg.BaseURL, "/")
	needKey := func() error {
		if cfg.APIKey == "" {
			return fmt.Errorf("analysis: %s: api key is required", cfg.Provider)
		}
		return nil
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		if err := needKey(); err != nil {
			return nil, err
		}
		return &AnthropicBackend{APIKey: cfg.APIKey, Model: orDefault(cfg.Model, "claude-3-5-haiku-20241022"),
			BaseURL: orDefault(base, "https://api.anthropic.com"), MaxTokens: cfg.MaxTokens, Client: client}, nil
	case ProviderOpenAI:
		if err := needKey(); err != nil {
			return nil, err
		}
		return &OpenAIBackend{APIKey: cfg.APIKey, Model: orDefault(cfg.Model, "gpt-4o-mini"),
			BaseURL: orDefault(base, "https://api.openai.com/v1"), MaxTokens: cfg.MaxTokens, Client: client}, nil
	case ProviderGoogle:
		if err := needKey(); err != nil {
			return nil, err
		}
		return &GoogleBackend{APIKey: cfg.APIKey, Model: orDefault(cfg.Model, "gemini-1.5-flash"),
			BaseURL: orDefault(base, "https://generativelanguage.googleapis.com/v1beta"), MaxTokens: cfg.MaxTokens, Client: client}, nil
	case ProviderOllama:
		return &OllamaBackend{Model: orDefault(cfg.Model, "llama3.1"),
			BaseURL: orDefault(base, "http://localhost:11434"), Client: client}, nil
	default:
		return nil, fmt.Errorf("analysis: unsupported provider %q", cfg.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// StatusError is a non-2xx reply from a completion service.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether repeating the request can succeed. Auth and
// request-shape failures cannot.
func (e *StatusError) Retryable() bool {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	}
	return true
}

// postJSON sends body to url and decodes a 200 reply into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Provider: provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", provider, err)
	}
	return nil
}
