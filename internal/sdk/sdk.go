// Package sdk wires the runtime together and exposes the host-facing API:
// Resolve, Track, On/Off, SetContext, Close. One Client exists per host
// application process.
package sdk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagship-sdk/internal/completion"
	"github.com/TimurManjosov/goflagship-sdk/internal/config"
	"github.com/TimurManjosov/goflagship-sdk/internal/feedback"
	"github.com/TimurManjosov/goflagship-sdk/internal/fingerprint"
	"github.com/TimurManjosov/goflagship-sdk/internal/flags"
	"github.com/TimurManjosov/goflagship-sdk/internal/hooks"
	"github.com/TimurManjosov/goflagship-sdk/internal/ratelimit"
	"github.com/TimurManjosov/goflagship-sdk/internal/transport"
)

// Options configures New. Zero-value fields fall back to config defaults and
// the built-in HTTP transports.
type Options struct {
	// Config overrides environment-based loading.
	Config *config.Config
	// Context is the initial evaluation context.
	Context fingerprint.Context
	// Fetcher overrides the HTTP flag transport. Used by tests and by hosts
	// with their own networking stack.
	Fetcher flags.Fetcher
	// Display renders feedback prompts. When nil the prompt subsystem is
	// disabled: the push channel is not opened and inbound messages are
	// rejected.
	Display feedback.Display
	// Store overrides the durable completion store.
	Store completion.Store
	// Logger overrides the default stderr logger.
	Logger *zerolog.Logger
	// DisablePush keeps the push channel closed even with a Display; the
	// host feeds messages through HandlePromptMessage itself.
	DisablePush bool
}

// Client is the embedded runtime handle.
type Client struct {
	cfg       *config.Config
	log       zerolog.Logger
	bus       *hooks.Bus
	cache     *flags.Cache
	store     completion.Store
	push      *transport.PushChannel
	display   feedback.Display
	sessionID string

	mu        sync.Mutex
	ectx      fingerprint.Context
	fp        string
	scheduler *feedback.Scheduler
	closed    bool
}

// New builds and starts a client. The returned client is ready to resolve
// flags; Close releases its resources.
func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := defaultLogger(cfg)
	if opts.Logger != nil {
		log = *opts.Logger
	}

	bus := hooks.New(log)
	limiter := ratelimit.New(cfg.CheckRateLimit, time.Minute)

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = transport.NewClient(cfg.BaseURL, cfg.APIKey, log)
	}

	store := opts.Store
	if store == nil {
		store = openStore(cfg, log)
	}

	c := &Client{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		cache:     flags.NewCache(fetcher, bus, limiter, cfg.Freshness(), log),
		store:     store,
		display:   opts.Display,
		sessionID: uuid.NewString(),
	}
	c.swapContext(opts.Context)

	if opts.Display != nil && !opts.DisablePush {
		c.push = transport.NewPushChannel(cfg.BaseURL, cfg.APIKey, func(raw []byte) {
			c.HandlePromptMessage(raw)
		}, log)
		c.push.Start()
	}
	return c, nil
}

// openStore opens the durable completion store, degrading to memory-only
// tracking when local storage is unavailable.
func openStore(cfg *config.Config, log zerolog.Logger) completion.Store {
	store, err := completion.OpenBadger(completion.BadgerOptions{
		Path:   filepath.Join(cfg.StorageDir, "completions"),
		Logger: log,
	})
	if err != nil {
		log.Warn().Err(err).Msg("completion storage unavailable, tracking in memory for this session")
		return completion.NewMemoryStore()
	}
	return store
}

func defaultLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("component", "flagsdk").Logger()
}

// Resolve returns the flag set for the current context. It never fails: the
// worst case is the caller's fallback or an all-disabled empty set.
func (c *Client) Resolve(ctx context.Context, opts flags.ResolveOptions) flags.FlagSet {
	if opts.Timeout <= 0 {
		opts.Timeout = c.cfg.ResolveTimeout()
	}
	c.mu.Lock()
	ectx := c.ectx
	c.mu.Unlock()
	return c.cache.Resolve(ctx, ectx, opts)
}

// Track emits a rate-limited check event for flagKey on the hook bus. Fire
// and forget.
func (c *Client) Track(flagKey string) {
	c.mu.Lock()
	fp := c.fp
	c.mu.Unlock()
	c.cache.Track(fp, flagKey)
}

// On subscribes to a hook event and returns the unsubscribe function.
func (c *Client) On(event string, handler hooks.Handler) func() {
	return c.bus.On(event, handler)
}

// SetContext switches the runtime to a new evaluation context: the previous
// fingerprint's cache entry is evicted, pending prompt timers are cancelled,
// and a fresh scheduler is built for the new user.
func (c *Client) SetContext(ectx fingerprint.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	oldFp := c.fp
	c.mu.Unlock()

	if oldFp != "" {
		c.cache.Evict(oldFp)
	}
	c.swapContext(ectx)
}

func (c *Client) swapContext(ectx fingerprint.Context) {
	cloned := ectx.Clone()
	if cloned == nil {
		cloned = fingerprint.Context{}
	}

	var scheduler *feedback.Scheduler
	if c.display != nil {
		scheduler = feedback.NewScheduler(cloned.UserID(), c.store, c.display, c.bus, c.log)
	}

	c.mu.Lock()
	old := c.scheduler
	c.ectx = cloned
	c.fp = fingerprint.Fingerprint(cloned)
	c.scheduler = scheduler
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Context returns a copy of the current evaluation context.
func (c *Client) Context() fingerprint.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ectx.Clone()
}

// SessionID identifies this client instance for diagnostics.
func (c *Client) SessionID() string {
	return c.sessionID
}

// HandlePromptMessage routes one raw push-channel payload to the scheduler.
// Exposed for hosts that receive prompts over their own channel.
func (c *Client) HandlePromptMessage(raw []byte) feedback.Outcome {
	c.mu.Lock()
	scheduler := c.scheduler
	c.mu.Unlock()
	if scheduler == nil {
		c.log.Debug().Msg("prompt message dropped, no display configured")
		return feedback.OutcomeRejected
	}
	return scheduler.OnMessage(raw)
}

// Close tears the runtime down: push channel, prompt timers, storage.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	scheduler := c.scheduler
	c.mu.Unlock()

	if c.push != nil {
		c.push.Close()
	}
	if scheduler != nil {
		scheduler.Close()
	}
	return c.store.Close()
}
