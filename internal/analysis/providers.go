package analysis

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Client    *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return ProviderAnthropic }

// Complete implements Backend.
func (b *AnthropicBackend) Complete(ctx context.Context, prompt string) (string, error) {
	var out anthropicResponse
	err := postJSON(ctx, b.Client, b.Name(), b.BaseURL+"/v1/messages",
		map[string]string{"x-api-key": b.APIKey, "anthropic-version": "2023-06-01"},
		anthropicRequest{
			Model:       b.Model,
			MaxTokens:   b.MaxTokens,
			Temperature: defaultTemperature,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
		}, &out)
	if err != nil {
		return "", err
	}
	for _, block := range out.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("anthropic returned no text content")
}

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Client    *http.Client
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return ProviderOpenAI }

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	var out openAIResponse
	err := postJSON(ctx, b.Client, b.Name(), b.BaseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + b.APIKey},
		openAIRequest{
			Model:       b.Model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: defaultTemperature,
			MaxTokens:   b.MaxTokens,
		}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// GoogleBackend calls the Gemini generateContent REST endpoint.
type GoogleBackend struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Client    *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Name implements Backend.
func (b *GoogleBackend) Name() string { return ProviderGoogle }

// Complete implements Backend.
func (b *GoogleBackend) Complete(ctx context.Context, prompt string) (string, error) {
	req := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}}
	req.GenerationConfig.Temperature = defaultTemperature
	req.GenerationConfig.MaxOutputTokens = b.MaxTokens

	endpoint := b.BaseURL + "/models/" + url.PathEscape(b.Model) + ":generateContent"
	var out geminiResponse
	if err := postJSON(ctx, b.Client, b.Name(), endpoint, map[string]string{"x-goog-api-key": b.APIKey}, req, &out); err != nil {
		return "", err
	}
	for _, c := range out.Candidates {
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			return sb.String(), nil
		}
	}
	return "", errors.New("google returned no candidates")
}

// OllamaBackend calls a local Ollama server.
type OllamaBackend struct {
	Model   string
	BaseURL string
	Client  *http.Client
}

type ollamaRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// Name implements Backend.
func (b *OllamaBackend) Name() string { return ProviderOllama }

// Complete implements Backend.
func (b *OllamaBackend) Complete(ctx context.Context, prompt string) (string, error) {
	req := ollamaRequest{Model: b.Model, Prompt: prompt}
	req.Options.Temperature = defaultTemperature
	var out ollamaResponse
	if err := postJSON(ctx, b.Client, b.Name(), b.BaseURL+"/api/generate", nil, req, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", errors.New("ollama returned an empty response")
	}
	return out.Response, nil
}
