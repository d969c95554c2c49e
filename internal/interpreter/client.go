package interpreter

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"scanstudents/internal/command"
)

// FallbackFeedback is spoken when interpretation fails for any reason.
const FallbackFeedback = "Désolé, une erreur est survenue avec l'assistant vocal."

// Client calls the language-understanding service that turns a free-text
// utterance into a structured command.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with a conversational-latency timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Interpret translates the utterance into a Command. It never fails: any
// service error, malformed response, or unrecognized action is absorbed into
// a well-formed unknown command with an apology, so the dispatcher never has
// to special-case interpreter failure.
func (c *Client) Interpret(ctx context.Context, transcript string) command.Command {
	if c.Skip {
		return command.Command{
			Action:   command.ActionUnknown,
			Feedback: "Interprète vocal désactivé.",
		}
	}

	body, _ := json.Marshal(map[string]string{"transcript": transcript})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/interpret", bytes.NewReader(body))
	if err != nil {
		return unknown()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.Printf("interpreter: request failed: %v", err)
		return unknown()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("interpreter: service returned %s", resp.Status)
		return unknown()
	}

	var cmd command.Command
	if err := json.NewDecoder(resp.Body).Decode(&cmd); err != nil {
		log.Printf("interpreter: decode failed: %v", err)
		return unknown()
	}
	if !validAction(cmd.Action) {
		log.Printf("interpreter: unrecognized action %q", cmd.Action)
		return unknown()
	}
	if cmd.Feedback == "" {
		cmd.Feedback = FallbackFeedback
	}
	return cmd
}

func unknown() command.Command {
	return command.Command{Action: command.ActionUnknown, Feedback: FallbackFeedback}
}

func validAction(a command.Action) bool {
	switch a {
	case command.ActionNavigate, command.ActionView, command.ActionCamera,
		command.ActionRecord, command.ActionSearch, command.ActionFilter,
		command.ActionExport, command.ActionAddStudent, command.ActionUnknown:
		return true
	}
	return false
}
