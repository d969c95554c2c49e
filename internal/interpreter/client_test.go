package interpreter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"scanstudents/internal/command"
)

func TestInterpretReturnsStructuredCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Transcript string `json:"transcript"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Transcript != "démarre la caméra" {
			t.Errorf("unexpected transcript %q", req.Transcript)
		}
		json.NewEncoder(w).Encode(command.Command{
			Action:   command.ActionCamera,
			Payload:  &command.Payload{Operation: command.OpStart},
			Feedback: "Je démarre la caméra.",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	cmd := c.Interpret(context.Background(), "démarre la caméra")
	if cmd.Action != command.ActionCamera {
		t.Errorf("expected camera action, got %s", cmd.Action)
	}
	if cmd.Payload == nil || cmd.Payload.Operation != command.OpStart {
		t.Errorf("unexpected payload %+v", cmd.Payload)
	}
}

func TestInterpretAbsorbsServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	cmd := c.Interpret(context.Background(), "n'importe quoi")
	if cmd.Action != command.ActionUnknown {
		t.Errorf("expected unknown action, got %s", cmd.Action)
	}
	if cmd.Feedback != FallbackFeedback {
		t.Errorf("expected fallback feedback, got %q", cmd.Feedback)
	}
}

func TestInterpretAbsorbsUnreachableService(t *testing.T) {
	c := New("http://127.0.0.1:1", false)
	cmd := c.Interpret(context.Background(), "bonjour")
	if cmd.Action != command.ActionUnknown {
		t.Errorf("expected unknown action, got %s", cmd.Action)
	}
}

func TestInterpretRejectsBogusAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"action":"self_destruct","feedback":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	cmd := c.Interpret(context.Background(), "détruis tout")
	if cmd.Action != command.ActionUnknown {
		t.Errorf("expected unknown action, got %s", cmd.Action)
	}
}
