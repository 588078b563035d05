package flags

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/TimurManjosov/goflagship-sdk/internal/fingerprint"
	"github.com/TimurManjosov/goflagship-sdk/internal/hooks"
	"github.com/TimurManjosov/goflagship-sdk/internal/ratelimit"
	"github.com/TimurManjosov/goflagship-sdk/internal/telemetry"
)

const (
	// DefaultTimeout bounds how long Resolve waits on a blocking fetch before
	// returning the caller's fallback.
	DefaultTimeout = 4 * time.Second
	// DefaultFreshness is how long a fetched entry is served without
	// revalidation.
	DefaultFreshness = 30 * time.Second
)

// entry is one cached flag set for a context fingerprint. Entries are
// immutable; revalidation replaces them wholesale.
type entry struct {
	ectx      fingerprint.Context
	flags     FlagSet
	etag      string
	fetchedAt time.Time
	staleAt   time.Time
}

// Cache resolves flag state for evaluation contexts with at most one
// in-flight fetch per fingerprint. Entries outlive their freshness window:
// they stay servable as stale data indefinitely if the network is down, and
// are evicted only when the host explicitly changes context.
type Cache struct {
	fetcher   Fetcher
	bus       *hooks.Bus
	limiter   *ratelimit.Limiter
	freshness time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	applied map[string]uint64 // last applied fetch sequence per fingerprint
	seq     uint64
	flight  singleflight.Group

	now func() time.Time
}

// NewCache creates a cache. A non-positive freshness falls back to
// DefaultFreshness.
func NewCache(fetcher Fetcher, bus *hooks.Bus, limiter *ratelimit.Limiter, freshness time.Duration, logger zerolog.Logger) *Cache {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Cache{
		fetcher:   fetcher,
		bus:       bus,
		limiter:   limiter,
		freshness: freshness,
		log:       logger,
		entries:   make(map[string]*entry),
		applied:   make(map[string]uint64),
		now:       time.Now,
	}
}

// ResolveOptions tunes a single Resolve call.
type ResolveOptions struct {
	// Fallback is returned when no cached or freshly fetched data is
	// available within the timeout. Defaults to an empty set.
	Fallback []FlagRecord
	// Timeout bounds the blocking fetch race. Defaults to DefaultTimeout.
	Timeout time.Duration
	// BlockOnStale disables stale-while-revalidate: a stale entry is not
	// served, Resolve blocks on the fetch as if the entry did not exist.
	BlockOnStale bool
}

// Resolve returns the flag set for ectx. It never returns an error: network
// and transport failures degrade to stale data, the caller's fallback, or an
// empty set where every key reads as disabled.
func (c *Cache) Resolve(ctx context.Context, ectx fingerprint.Context, opts ResolveOptions) FlagSet {
	fp := fingerprint.Fingerprint(ectx)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c.mu.Lock()
	e := c.entries[fp]
	now := c.now()
	if e != nil {
		if now.Before(e.staleAt) {
			c.mu.Unlock()
			telemetry.CacheResolves.WithLabelValues("fresh").Inc()
			return e.flags.clone()
		}
		if !opts.BlockOnStale {
			c.mu.Unlock()
			telemetry.CacheResolves.WithLabelValues("stale").Inc()
			go func() { <-c.fetch(fp, ectx) }()
			return e.flags.clone()
		}
	}
	c.mu.Unlock()

	res := c.fetch(fp, ectx)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-res:
		if r.err == nil {
			telemetry.CacheResolves.WithLabelValues("fetched").Inc()
			return r.flags.clone()
		}
		c.log.Debug().Str("fingerprint", fp).Err(r.err).Msg("flag fetch failed")
		if e != nil {
			// BlockOnStale with a failed revalidation: the stale entry is
			// still the best data available.
			telemetry.CacheResolves.WithLabelValues("stale").Inc()
			return e.flags.clone()
		}
		return c.fallback(opts.Fallback)
	case <-timer.C:
		// The fetch keeps running; its result is applied and announced via
		// EventUpdated when it lands.
		telemetry.ResolveTimeouts.Inc()
		return c.fallback(opts.Fallback)
	case <-ctx.Done():
		return c.fallback(opts.Fallback)
	}
}

func (c *Cache) fallback(records []FlagRecord) FlagSet {
	if len(records) == 0 {
		telemetry.CacheResolves.WithLabelValues("empty").Inc()
		return FlagSet{}
	}
	telemetry.CacheResolves.WithLabelValues("fallback").Inc()
	out := make(FlagSet, len(records))
	for _, rec := range records {
		out[rec.Key] = rec
	}
	return out
}

type fetchOutcome struct {
	flags FlagSet
	err   error
}

// fetch starts (or joins) the in-flight fetch for fp and returns a channel
// delivering its outcome. Concurrent callers for the same fingerprint share
// one network request.
func (c *Cache) fetch(fp string, ectx fingerprint.Context) <-chan fetchOutcome {
	out := make(chan fetchOutcome, 1)
	go func() {
		v, err, _ := c.flight.Do(fp, func() (any, error) {
			c.mu.Lock()
			c.seq++
			seq := c.seq
			var etag string
			if e := c.entries[fp]; e != nil {
				etag = e.etag
			}
			snapshot := ectx.Clone()
			c.mu.Unlock()

			res, err := c.fetcher.FetchFlags(context.Background(), snapshot, etag)
			if err != nil {
				telemetry.Fetches.WithLabelValues("error").Inc()
				if emitErr := c.bus.Emit(hooks.EventError, hooks.ErrorEvent{Op: "flags.fetch", Err: err}); emitErr != nil {
					c.log.Warn().Err(emitErr).Msg("sdk.error hook failed")
				}
				return nil, err
			}
			return c.apply(fp, snapshot, res, seq), nil
		})
		if err != nil {
			out <- fetchOutcome{err: err}
			return
		}
		out <- fetchOutcome{flags: v.(FlagSet)}
	}()
	return out
}

// apply stores a fetch result unless a newer fetch was applied (or the slot
// was evicted) after this fetch began. A slow fetch resolving after a newer
// one is discarded, never applied out of order.
func (c *Cache) apply(fp string, ectx fingerprint.Context, res *FetchResult, seq uint64) FlagSet {
	c.mu.Lock()
	if seq <= c.applied[fp] {
		c.mu.Unlock()
		telemetry.Fetches.WithLabelValues("discarded").Inc()
		c.log.Debug().Str("fingerprint", fp).Msg("discarding superseded fetch result")
		if res.Flags == nil {
			return FlagSet{}
		}
		return res.Flags
	}
	c.applied[fp] = seq
	now := c.now()
	prev := c.entries[fp]

	if res.NotModified && prev != nil && res.ETag != "" && prev.etag == res.ETag {
		// Server confirmed the snapshot is current: extend freshness, keep
		// the entry's data, and stay quiet on the bus.
		c.entries[fp] = &entry{
			ectx:      prev.ectx,
			flags:     prev.flags,
			etag:      prev.etag,
			fetchedAt: now,
			staleAt:   now.Add(c.freshness),
		}
		flagsOut := prev.flags
		c.mu.Unlock()
		telemetry.Fetches.WithLabelValues("not_modified").Inc()
		return flagsOut
	}

	set := res.Flags
	if set == nil {
		set = FlagSet{}
	}
	c.entries[fp] = &entry{
		ectx:      ectx,
		flags:     set,
		etag:      res.ETag,
		fetchedAt: now,
		staleAt:   now.Add(c.freshness),
	}
	c.mu.Unlock()
	telemetry.Fetches.WithLabelValues("ok").Inc()

	if err := c.bus.Emit(EventUpdated, UpdatedEvent{Fingerprint: fp, Flags: set.clone()}); err != nil {
		c.log.Warn().Str("fingerprint", fp).Err(err).Msg("flags.updated hook failed")
	}
	return set
}

// Evict drops the entry for fp and guarantees that fetches already in flight
// for it are discarded when they land. Called by the host-facing layer on
// explicit context changes.
func (c *Cache) Evict(fp string) {
	c.mu.Lock()
	delete(c.entries, fp)
	c.applied[fp] = c.seq
	c.mu.Unlock()
	c.flight.Forget(fp)
}

// Track routes a check event for flagKey through the rate limiter and, when
// admitted, forwards it on the hook bus. It never blocks and never surfaces
// failures to the caller.
func (c *Cache) Track(fp, flagKey string) {
	if !c.limiter.Allow(flagKey) {
		telemetry.ThrottledEvents.Inc()
		return
	}

	c.mu.Lock()
	rec := FlagRecord{Key: flagKey}
	if e := c.entries[fp]; e != nil {
		rec = e.flags.Get(flagKey)
	}
	c.mu.Unlock()

	if err := c.bus.Emit(EventCheck, CheckEvent{Key: flagKey, Enabled: rec.IsEnabled, Version: rec.Version}); err != nil {
		c.log.Debug().Str("flag", flagKey).Err(err).Msg("flags.check hook failed")
	}
}
