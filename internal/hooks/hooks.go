// Package hooks provides the typed publish/subscribe bus the SDK uses to
// announce flag updates, check events and prompt lifecycle transitions to the
// host application.
package hooks

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// EventError is the diagnostic channel for failures the runtime absorbs
// instead of surfacing to a caller (failed fetches, storage writes).
const EventError = "sdk.error"

// ErrorEvent is the payload of EventError.
type ErrorEvent struct {
	Op  string
	Err error
}

// Handler receives the payload of an emitted event. A non-nil return value is
// collected by Emit but does not stop dispatch to later handlers.
type Handler func(payload any) error

type subscription struct {
	fn      Handler
	removed bool
}

// Bus dispatches events synchronously to subscribers in registration order.
// Handlers registered while a dispatch is running are not invoked for that
// dispatch. A failing handler never prevents later handlers from running.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]*subscription
	log      zerolog.Logger
}

// New creates an empty bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]*subscription),
		log:      logger,
	}
}

// On registers a handler for the given event and returns an unsubscribe
// function. Unsubscribing twice is a no-op.
func (b *Bus) On(event string, fn Handler) func() {
	sub := &subscription{fn: fn}

	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], sub)
	b.mu.Unlock()

	return func() {
		b.off(event, sub)
	}
}

func (b *Bus) off(event string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[event]
	for i, s := range subs {
		if s == sub {
			sub.removed = true
			b.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit dispatches payload to every handler currently registered for event, in
// registration order. Panicking or failing handlers are isolated; their
// failures are joined into the returned error.
func (b *Bus) Emit(event string, payload any) error {
	b.mu.Lock()
	// Snapshot so that handlers added during dispatch are excluded.
	subs := make([]*subscription, len(b.handlers[event]))
	copy(subs, b.handlers[event])
	b.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		b.mu.Lock()
		skip := sub.removed
		b.mu.Unlock()
		if skip {
			continue
		}
		if err := b.dispatch(event, sub, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		b.log.Warn().Str("event", event).Err(err).Msg("hook handler failed")
	}
	return joinErrors(errs)
}

func (b *Bus) dispatch(event string, sub *subscription, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook for %q panicked: %v", event, r)
		}
	}()
	return sub.fn(payload)
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("%d hook handlers failed, first: %w", len(errs), errs[0])
}
