// Package transcribe turns voice messages into text through a remote
// transcription server and optionally translates the result with Ollama.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Line is one timed transcript line.
type Line struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
}

// Result is the server's answer.
type Result struct {
	Text          string  `json:"text"`
	Lines         []Line  `json:"lines"`
	AudioDuration float64 `json:"audio_duration"`
	ProcessingMs  int64   `json:"processing_ms"`
	Model         string  `json:"model"`
	Lang          string  `json:"lang"`
}

// Client posts audio to a transcription server.
type Client struct {
	serverURL string
	token     string
	lang      string
	http      *http.Client
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the Bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLang sets the spoken language (e.g. "en", "es").
func WithLang(lang string) Option {
	return func(c *Client) { c.lang = lang }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for serverURL.
func New(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		http:      &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Transcribe implements chat.Transcriber.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	res, err := c.TranscribeResult(ctx, audio, filename(mimeType))
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// TranscribeResult uploads audio as filename and returns the full result.
func (c *Client) TranscribeResult(ctx context.Context, audio []byte, filename string) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.transcribeURL(), &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("transcribed",
		zap.Int("bytes", len(audio)),
		zap.Duration("took", time.Since(start)),
		zap.String("model", result.Model))
	return &result, nil
}

func (c *Client) transcribeURL() string {
	u := c.serverURL + "/transcribe"
	if c.lang != "" {
		u += "?" + url.Values{"lang": {c.lang}}.Encode()
	}
	return u
}

func filename(mimeType string) string {
	if strings.HasPrefix(mimeType, "audio/wav") || strings.HasPrefix(mimeType, "audio/x-wav") {
		return "voice.wav"
	}
	return "voice.ogg"
}
