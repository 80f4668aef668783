package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Kind classifies a transcription failure.
type Kind string

const (
	KindUnintelligible Kind = "unintelligible"
	KindUnavailable    Kind = "unavailable"
	KindFailed         Kind = "failed"
)

// Error is returned for every transcription failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcription %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config configures the HTTP transcriber.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// HTTPTranscriber calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// (OpenAI, whisper.cpp server, faster-whisper-server and friends).
type HTTPTranscriber struct {
	client   *resty.Client
	model    string
	language string
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// NewHTTPTranscriber creates a transcriber for the service at cfg.BaseURL.
func NewHTTPTranscriber(cfg Config) *HTTPTranscriber {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}

	c := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}

	return &HTTPTranscriber{client: c, model: cfg.Model, language: cfg.Language}
}

// Transcribe uploads the file and returns the recognized text.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", &Error{Kind: KindFailed, Err: fmt.Errorf("open audio: %w", err)}
	}
	defer f.Close()

	form := map[string]string{
		"model":           t.model,
		"response_format": "json",
	}
	if t.language != "" {
		form["language"] = t.language
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(audioPath), f).
		SetFormData(form).
		Post("/v1/audio/transcriptions")
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Err: fmt.Errorf("transcription request: %w", err)}
	}

	switch {
	case resp.StatusCode() == http.StatusOK:
	case resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests:
		return "", &Error{Kind: KindUnavailable, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	default:
		return "", &Error{Kind: KindFailed, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", &Error{Kind: KindFailed, Err: fmt.Errorf("decode response: %w", err)}
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", &Error{Kind: KindUnintelligible, Err: errors.New("no speech recognized")}
	}
	return text, nil
}
