// Package fingerprint models the evaluation context supplied by the host
// application and turns it into a deterministic cache key. Two contexts that
// carry the same attributes are the same fingerprint regardless of insertion
// order, so the evaluation cache can treat them as one slot.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Conventional actor names. Hosts may add free-form actors next to these.
const (
	ActorUser    = "user"
	ActorCompany = "company"
)

// Attributes is a scalar attribute map for a single actor.
type Attributes map[string]any

// Context maps actor names (user, company, custom) to their attributes.
type Context map[string]Attributes

// UserID returns the string form of the user actor's "id" attribute, or ""
// when no user is present.
func (c Context) UserID() string {
	attrs, ok := c[ActorUser]
	if !ok {
		return ""
	}
	id, ok := attrs["id"]
	if !ok || id == nil {
		return ""
	}
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id)
}

// Clone returns a deep copy, so cached contexts stay immutable even when the
// host mutates the maps it handed in.
func (c Context) Clone() Context {
	if c == nil {
		return nil
	}
	out := make(Context, len(c))
	for actor, attrs := range c {
		copied := make(Attributes, len(attrs))
		for k, v := range attrs {
			copied[k] = v
		}
		out[actor] = copied
	}
	return out
}

// Canonical serializes the context deterministically: actors sorted by name,
// attribute keys sorted, nil attributes omitted, values JSON-encoded. Two
// contexts are cache-equivalent iff their canonical forms are byte-identical.
func Canonical(c Context) []byte {
	var buf bytes.Buffer

	actors := make([]string, 0, len(c))
	for actor := range c {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	for _, actor := range actors {
		attrs := c[actor]
		keys := make([]string, 0, len(attrs))
		for k, v := range attrs {
			if v == nil {
				continue
			}
			keys = append(keys, k)
		}
		if len(keys) == 0 {
			continue
		}
		sort.Strings(keys)

		buf.WriteString(actor)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(k)
			buf.WriteByte('=')
			val, err := json.Marshal(attrs[k])
			if err != nil {
				// Non-serializable values degrade to their Go formatting.
				val = []byte(fmt.Sprintf("%q", fmt.Sprintf("%v", attrs[k])))
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	return buf.Bytes()
}

// Fingerprint hashes the canonical serialization into the cache key. Pure,
// total and stable across process restarts.
func Fingerprint(c Context) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(Canonical(c)))
}
