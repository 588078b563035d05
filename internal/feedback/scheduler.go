package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagship-sdk/internal/completion"
	"github.com/TimurManjosov/goflagship-sdk/internal/hooks"
	"github.com/TimurManjosov/goflagship-sdk/internal/telemetry"
)

// Outcome is the scheduler's decision for one inbound message.
type Outcome int

const (
	// OutcomeRejected: not shown — invalid, already handled, or window passed.
	OutcomeRejected Outcome = iota
	// OutcomeScheduled: will show — a timer is armed for the window start.
	OutcomeScheduled
	// OutcomeDisplayed: showing now — the display collaborator was invoked.
	OutcomeDisplayed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeScheduled:
		return "scheduled"
	case OutcomeDisplayed:
		return "displayed"
	default:
		return "rejected"
	}
}

// Display is the UI collaborator that renders a prompt. completed must be
// invoked when the user dismisses or answers it; calling it more than once
// is safe.
type Display interface {
	Show(userID string, msg Message, completed func())
}

// DisplayFunc adapts a function to the Display interface.
type DisplayFunc func(userID string, msg Message, completed func())

func (f DisplayFunc) Show(userID string, msg Message, completed func()) {
	f(userID, msg, completed)
}

// Scheduler validates inbound prompt messages and enforces at-most-once
// delivery per invitation for a single user. One scheduler exists per user
// context; a context change tears it down and builds a new one.
type Scheduler struct {
	userID  string
	store   completion.Store
	display Display
	bus     *hooks.Bus
	log     zerolog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	handled map[string]bool // scheduled or displayed this session
	done    map[string]bool // completed; also the fallback when the store is down
	closed  bool

	now func() time.Time
}

// NewScheduler creates a scheduler for userID.
func NewScheduler(userID string, store completion.Store, display Display, bus *hooks.Bus, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		userID:  userID,
		store:   store,
		display: display,
		bus:     bus,
		log:     logger,
		timers:  make(map[string]*time.Timer),
		handled: make(map[string]bool),
		done:    make(map[string]bool),
		now:     time.Now,
	}
}

// OnMessage handles one raw push-channel payload: parse, validate, then
// either display immediately, arm a one-shot timer for the window start, or
// reject. Invalid messages are dropped with no side effect.
func (s *Scheduler) OnMessage(raw []byte) Outcome {
	msg, err := ParseMessage(raw)
	if err != nil {
		telemetry.PromptOutcomes.WithLabelValues("rejected").Inc()
		s.log.Debug().Err(err).Msg("prompt message rejected")
		return OutcomeRejected
	}
	outcome := s.handle(msg)
	telemetry.PromptOutcomes.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (s *Scheduler) handle(msg Message) Outcome {
	if s.alreadyHandled(msg.PromptID) {
		return OutcomeRejected
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return OutcomeRejected
	}
	now := s.now()
	if now.After(msg.ShowBefore) {
		s.mu.Unlock()
		s.log.Debug().Str("prompt", msg.PromptID).Msg("prompt window passed")
		return OutcomeRejected
	}
	if now.Before(msg.ShowAfter) {
		s.handled[msg.PromptID] = true
		s.timers[msg.PromptID] = time.AfterFunc(msg.ShowAfter.Sub(now), func() {
			s.fire(msg)
		})
		s.mu.Unlock()
		return OutcomeScheduled
	}
	s.handled[msg.PromptID] = true
	s.mu.Unlock()

	s.show(msg)
	return OutcomeDisplayed
}

// fire runs when a scheduled prompt's window opens. Completion may have
// arrived through another channel while waiting, so the veto state is checked
// again before displaying.
func (s *Scheduler) fire(msg Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, msg.PromptID)
	completed := s.done[msg.PromptID]
	s.mu.Unlock()

	if !completed && s.storeHasRecord(msg.PromptID) {
		completed = true
	}
	if completed {
		telemetry.PromptOutcomes.WithLabelValues("rejected").Inc()
		s.log.Debug().Str("prompt", msg.PromptID).Msg("prompt completed elsewhere while scheduled")
		return
	}
	s.show(msg)
	telemetry.PromptOutcomes.WithLabelValues("displayed").Inc()
}

func (s *Scheduler) show(msg Message) {
	ev := PromptEvent{UserID: s.userID, PromptID: msg.PromptID, FeatureID: msg.FeatureID, Question: msg.Question}
	if err := s.bus.Emit(EventDisplayed, ev); err != nil {
		s.log.Warn().Str("prompt", msg.PromptID).Err(err).Msg("prompt.displayed hook failed")
	}
	s.display.Show(s.userID, msg, func() {
		s.complete(msg)
	})
}

// complete writes the completion record for msg. Idempotent: the second and
// later calls are no-ops.
func (s *Scheduler) complete(msg Message) {
	s.mu.Lock()
	if s.done[msg.PromptID] {
		s.mu.Unlock()
		return
	}
	s.done[msg.PromptID] = true
	s.mu.Unlock()

	rec := completion.Record{
		UserID:      s.userID,
		PromptID:    msg.PromptID,
		CompletedAt: s.now(),
		ExpiresAt:   msg.ShowBefore,
	}
	if err := s.store.Set(context.Background(), rec); err != nil {
		// Accepted degradation: the in-memory done set carries the veto for
		// the rest of the session; the prompt may reappear next session.
		s.log.Warn().Str("prompt", msg.PromptID).Err(err).
			Msg("completion store unavailable, tracking in memory only")
		if emitErr := s.bus.Emit(hooks.EventError, hooks.ErrorEvent{Op: "completion.persist", Err: err}); emitErr != nil {
			s.log.Warn().Err(emitErr).Msg("sdk.error hook failed")
		}
	}

	ev := PromptEvent{UserID: s.userID, PromptID: msg.PromptID, FeatureID: msg.FeatureID, Question: msg.Question}
	if err := s.bus.Emit(EventCompleted, ev); err != nil {
		s.log.Warn().Str("prompt", msg.PromptID).Err(err).Msg("prompt.completed hook failed")
	}
}

func (s *Scheduler) alreadyHandled(promptID string) bool {
	s.mu.Lock()
	handled := s.handled[promptID] || s.done[promptID]
	s.mu.Unlock()
	if handled {
		return true
	}
	return s.storeHasRecord(promptID)
}

func (s *Scheduler) storeHasRecord(promptID string) bool {
	rec, err := s.store.Get(context.Background(), s.userID, promptID)
	if err != nil {
		// Degraded persistence: assume not completed rather than crash.
		s.log.Warn().Str("prompt", promptID).Err(err).Msg("completion lookup failed")
		return false
	}
	return rec != nil
}

// Close cancels all pending timers. No display may occur for a torn-down
// scheduler; the host calls this on context changes and shutdown.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
