package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOllamaHost = "http://localhost:11434"
	defaultPrompt     = "Translate this voice message transcript to %s. Return only the translation.\n\n%s"
)

// Ollama translates transcripts with a local Ollama model.
type Ollama struct {
	host   string
	model  string
	prompt string
	http   *http.Client
}

// OllamaOption configures Ollama.
type OllamaOption func(*Ollama)

// WithOllamaHost sets the server URL. Bare host:port values are accepted.
func WithOllamaHost(host string) OllamaOption {
	return func(o *Ollama) {
		if host != "" {
			o.host = NormalizeHost(host)
		}
	}
}

// WithPrompt sets the prompt template; it takes the target language and
// the text, in that order.
func WithPrompt(prompt string) OllamaOption {
	return func(o *Ollama) { o.prompt = prompt }
}

// NewOllama returns a translator using model.
func NewOllama(model string, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		host:   defaultOllamaHost,
		model:  model,
		prompt: defaultPrompt,
		http:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NormalizeHost adds the scheme and default port when missing.
func NormalizeHost(h string) string {
	h = strings.TrimRight(h, "/")
	if !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
		h = "http://" + h
	}
	rest := h[strings.Index(h, "://")+3:]
	if !strings.Contains(rest, ":") {
		h += ":11434"
	}
	return h
}

var translationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"translation": map[string]string{"type": "string"},
	},
	"required":             []string{"translation"},
	"additionalProperties": false,
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Format   map[string]any  `json:"format"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
}

// Translate implements chat.Translator.
func (o *Ollama) Translate(ctx context.Context, text, toLang string) (string, error) {
	if o.model == "" {
		return "", fmt.Errorf("ollama: model not set")
	}
	body, err := json.Marshal(ollamaRequest{
		Model:    o.model,
		Messages: []ollamaMessage{{Role: "user", Content: fmt.Sprintf(o.prompt, toLang, text)}},
		Format:   translationSchema,
		Options:  map[string]any{"temperature": 0},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama: server returned %d: %s", resp.StatusCode, string(b))
	}

	var chatResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	var result struct {
		Translation string `json:"translation"`
	}
	if err := json.Unmarshal([]byte(chatResp.Message.Content), &result); err != nil {
		return "", fmt.Errorf("ollama: decode translation: %w", err)
	}
	return result.Translation, nil
}
