package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Capture failure reasons the presentation layer maps to user feedback.
var (
	ErrNoSpeech         = errors.New("no-speech")
	ErrPermissionDenied = errors.New("permission-denied")
)

// Client calls the speech-to-text service. One invocation transcribes one
// finalized utterance.
type Client struct {
	BaseURL string
	Lang    string
	HTTP    *http.Client
}

// New creates a transcription client for the given language.
func New(baseURL, lang string) *Client {
	if lang == "" {
		lang = "fr-FR"
	}
	return &Client{
		BaseURL: baseURL,
		Lang:    lang,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Transcribe sends the captured audio and returns the recognized utterance.
// Distinguishable failures come back as ErrNoSpeech or ErrPermissionDenied;
// anything else is a generic error.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoSpeech
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url := fmt.Sprintf("%s/v1/transcribe?lang=%s", c.BaseURL, c.Lang)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech service request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrPermissionDenied
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return "", ErrNoSpeech
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("speech service error %s: %s", resp.Status, string(body))
	}

	var out struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Transcript == "" {
		return "", ErrNoSpeech
	}
	return out.Transcript, nil
}
