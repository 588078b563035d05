// Package simulator is a local stand-in for the flag service: it serves
// evaluated flag snapshots with ETag semantics and pushes prompt messages
// over SSE, so the SDK and the CLI can be exercised without a production
// control plane.
package simulator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagship-sdk/internal/flags"
	"github.com/TimurManjosov/goflagship-sdk/internal/telemetry"
)

// Server holds the simulated flag snapshot and the connected prompt
// subscribers.
type Server struct {
	log zerolog.Logger

	mu    sync.Mutex
	flags flags.FlagSet
	etag  string
	subs  map[chan []byte]struct{}
}

// NewServer creates an empty simulator.
func NewServer(logger zerolog.Logger) *Server {
	s := &Server{
		log:   logger,
		flags: flags.FlagSet{},
		subs:  make(map[chan []byte]struct{}),
	}
	s.etag = computeETag(s.flags)
	return s
}

// Subscribers reports how many prompt stream clients are connected.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/v1/flags/evaluated", s.handleEvaluated)
	r.Post("/v1/flags", s.handleUpsertFlag)
	r.Get("/v1/prompts/stream", s.handlePromptStream)
	r.Post("/v1/prompts", s.handlePublishPrompt)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleEvaluated(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snapshot := s.flags
	etag := s.etag
	s.mu.Unlock()

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", etag)
	_ = json.NewEncoder(w).Encode(map[string]any{"flags": snapshot, "etag": etag})
}

func (s *Server) handleUpsertFlag(w http.ResponseWriter, r *http.Request) {
	var rec flags.FlagRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(rec.Key) == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	s.mu.Lock()
	if rec.Version == 0 {
		rec.Version = s.flags.Get(rec.Key).Version + 1
	}
	next := make(flags.FlagSet, len(s.flags)+1)
	for k, v := range s.flags {
		next[k] = v
	}
	next[rec.Key] = rec
	s.flags = next
	s.etag = computeETag(next)
	etag := s.etag
	count := len(next)
	s.mu.Unlock()

	telemetry.SimFlags.Set(float64(count))
	s.log.Info().Str("key", rec.Key).Bool("enabled", rec.IsEnabled).Msg("flag upserted")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "etag": etag})
}

// publishPromptRequest is what `flagsdk sim` accepts; window bounds default
// to an hour starting now.
type publishPromptRequest struct {
	PromptID   string `json:"promptId,omitempty"`
	FeatureID  string `json:"featureId"`
	Question   string `json:"question"`
	ShowAfter  int64  `json:"showAfter,omitempty"`
	ShowBefore int64  `json:"showBefore,omitempty"`
}

func (s *Server) handlePublishPrompt(w http.ResponseWriter, r *http.Request) {
	var req publishPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.FeatureID) == "" || strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "featureId and question are required")
		return
	}
	if req.PromptID == "" {
		req.PromptID = uuid.NewString()
	}
	now := time.Now()
	if req.ShowAfter == 0 {
		req.ShowAfter = now.UnixMilli()
	}
	if req.ShowBefore == 0 {
		req.ShowBefore = now.Add(time.Hour).UnixMilli()
	}

	payload, _ := json.Marshal(req)
	s.broadcast(payload)
	s.log.Info().Str("promptId", req.PromptID).Msg("prompt published")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "promptId": req.PromptID})
}

func (s *Server) handlePromptStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, unsub := s.subscribe()
	defer unsub()
	telemetry.PushClients.Inc()
	defer telemetry.PushClients.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case payload, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: prompt\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// subscribe registers a prompt listener and returns its channel and an
// unsubscribe func.
func (s *Server) subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 8)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	unsub := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, unsub
}

// broadcast fans a payload out to all listeners (non-blocking).
func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	for ch := range s.subs {
		select {
		case ch <- payload:
		default: // slow client, skip instead of blocking
		}
	}
	s.mu.Unlock()
}

func computeETag(set flags.FlagSet) string {
	blob, _ := json.Marshal(set)
	sum := sha256.Sum256(blob)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
