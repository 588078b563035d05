// Package testutil provides helpers for integration tests that run the SDK
// against a live in-process flag server.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagship-sdk/internal/flags"
	"github.com/TimurManjosov/goflagship-sdk/internal/simulator"
)

// StartSimulator starts the local flag server on an httptest listener.
// The listener is closed when the test ends.
func StartSimulator(t *testing.T) (*simulator.Server, *httptest.Server) {
	t.Helper()
	s := simulator.NewServer(zerolog.Nop())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

// SeedFlags upserts records into a running simulator over its HTTP API.
func SeedFlags(t *testing.T, baseURL string, records ...flags.FlagRecord) {
	t.Helper()
	for _, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("marshal flag %s: %v", rec.Key, err)
		}
		resp, err := http.Post(baseURL+"/v1/flags", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("upsert flag %s: %v", rec.Key, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("upsert flag %s: status %d", rec.Key, resp.StatusCode)
		}
	}
}

// PushPrompt publishes a feedback prompt to every connected push client.
func PushPrompt(t *testing.T, baseURL, featureID, question string) string {
	t.Helper()
	body := fmt.Sprintf(`{"featureId":%q,"question":%q}`, featureID, question)
	resp, err := http.Post(baseURL+"/v1/prompts", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("publish prompt: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		t.Fatalf("publish prompt: status %d", resp.StatusCode)
	}
	var out struct {
		PromptID string `json:"promptId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode prompt response: %v", err)
	}
	return out.PromptID
}

// HTTPRequest is a helper for making test HTTP requests against a handler.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if r.Body != "" {
		req = httptest.NewRequest(r.Method, r.Path, bytes.NewBufferString(r.Body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(r.Method, r.Path, nil)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
