package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagship-sdk/internal/fingerprint"
	"github.com/TimurManjosov/goflagship-sdk/internal/flags"
)

func TestFetchFlags_Success(t *testing.T) {
	var gotAuth, gotContext string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContext = r.URL.Query().Get("context")
		w.Header().Set("ETag", `W/"abc"`)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"flags": map[string]any{
				"beta": map[string]any{"key": "beta", "isEnabled": true, "version": 3},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-123", zerolog.Nop())
	ectx := fingerprint.Context{"user": {"id": "u-1"}}

	res, err := c.FetchFlags(context.Background(), ectx, "")
	if err != nil {
		t.Fatalf("FetchFlags failed: %v", err)
	}
	if !res.Flags.Enabled("beta") || res.Flags.Get("beta").Version != 3 {
		t.Errorf("decoded wrong flags: %+v", res.Flags)
	}
	if res.ETag != `W/"abc"` {
		t.Errorf("expected header ETag to be used, got %q", res.ETag)
	}
	if gotAuth != "Bearer key-123" {
		t.Errorf("missing bearer auth, got %q", gotAuth)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(gotContext)
	if err != nil {
		t.Fatalf("context param is not base64url: %v", err)
	}
	var sent fingerprint.Context
	if err := json.Unmarshal(decoded, &sent); err != nil {
		t.Fatalf("context param is not JSON: %v", err)
	}
	if sent.UserID() != "u-1" {
		t.Errorf("serialized context lost the user id: %v", sent)
	}
}

func TestFetchFlags_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `W/"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		t.Errorf("expected If-None-Match header, got %q", r.Header.Get("If-None-Match"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", zerolog.Nop())
	res, err := c.FetchFlags(context.Background(), fingerprint.Context{}, `W/"abc"`)
	if err != nil {
		t.Fatalf("FetchFlags failed: %v", err)
	}
	if !res.NotModified {
		t.Error("expected NotModified result")
	}
	if res.ETag != `W/"abc"` {
		t.Errorf("304 should echo the caller's etag, got %q", res.ETag)
	}
}

func TestFetchFlags_NonTwoHundredIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", zerolog.Nop())
	if _, err := c.FetchFlags(context.Background(), fingerprint.Context{}, ""); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestFetchFlags_MalformedBodyIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", zerolog.Nop())
	if _, err := c.FetchFlags(context.Background(), fingerprint.Context{}, ""); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestFetchFlags_EmptyFlagsBecomesEmptySet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", zerolog.Nop())
	res, err := c.FetchFlags(context.Background(), fingerprint.Context{}, "")
	if err != nil {
		t.Fatalf("FetchFlags failed: %v", err)
	}
	if res.Flags == nil {
		t.Error("missing flags object should decode to an empty set, not nil")
	}
	var _ flags.FlagSet = res.Flags
}
