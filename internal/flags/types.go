// Package flags owns the client-side flag model and the evaluation cache:
// fetch, cache, revalidate, fallback, and per-fingerprint de-duplication.
package flags

import (
	"context"
	"encoding/json"

	"github.com/TimurManjosov/goflagship-sdk/internal/fingerprint"
)

// Hook bus event names emitted by the cache.
const (
	// EventUpdated fires after a fetched flag set is applied, so the host can
	// re-render with the new values.
	EventUpdated = "flags.updated"
	// EventCheck fires for every admitted Track call.
	EventCheck = "flags.check"
)

// FlagConfig is the optional remote config attached to a flag.
type FlagConfig struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FlagRecord is one evaluated flag. Immutable once produced by a fetch; a new
// fetch yields a wholly new set, never a partial patch.
type FlagRecord struct {
	Key       string      `json:"key"`
	IsEnabled bool        `json:"isEnabled"`
	Config    *FlagConfig `json:"config,omitempty"`
	Version   int         `json:"version"`
}

// FlagSet maps flag keys to their records.
type FlagSet map[string]FlagRecord

// Get returns the record for key. Unknown keys resolve to a disabled record
// with no config, so the caller always gets something usable.
func (s FlagSet) Get(key string) FlagRecord {
	if rec, ok := s[key]; ok {
		return rec
	}
	return FlagRecord{Key: key}
}

// Enabled reports whether key is enabled, defaulting to false.
func (s FlagSet) Enabled(key string) bool {
	return s.Get(key).IsEnabled
}

func (s FlagSet) clone() FlagSet {
	out := make(FlagSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// UpdatedEvent is the payload of EventUpdated.
type UpdatedEvent struct {
	Fingerprint string
	Flags       FlagSet
}

// CheckEvent is the payload of EventCheck.
type CheckEvent struct {
	Key     string
	Enabled bool
	Version int
}

// FetchResult is what a Fetcher produces for one context.
type FetchResult struct {
	Flags FlagSet
	// ETag identifies the server-side snapshot the set came from. Optional.
	ETag string
	// NotModified reports that the server confirmed the caller's ETag is
	// still current; Flags carries the previously fetched set.
	NotModified bool
}

// Fetcher is the external transport collaborator the cache pulls flags
// through. Any non-2xx response or malformed body must surface as an error.
type Fetcher interface {
	FetchFlags(ctx context.Context, ectx fingerprint.Context, etag string) (*FetchResult, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ectx fingerprint.Context, etag string) (*FetchResult, error)

func (f FetcherFunc) FetchFlags(ctx context.Context, ectx fingerprint.Context, etag string) (*FetchResult, error) {
	return f(ctx, ectx, etag)
}
