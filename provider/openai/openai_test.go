package openai_provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fedpulse/fedpulse/config"
)

func TestCompleteJSONStripsFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "```json\n{\"ok\": true}\n```"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	out, err := c.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"ok": true}` {
		t.Fatalf("fences not stripped: %q", out)
	}
}

func TestCompleteJSONEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{BaseURL: srv.URL})
	if _, err := c.CompleteJSON(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
