package sdk

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagship-sdk/internal/completion"
	"github.com/TimurManjosov/goflagship-sdk/internal/config"
	"github.com/TimurManjosov/goflagship-sdk/internal/feedback"
	"github.com/TimurManjosov/goflagship-sdk/internal/fingerprint"
	"github.com/TimurManjosov/goflagship-sdk/internal/flags"
	"github.com/TimurManjosov/goflagship-sdk/internal/testutil"
)

// recordingDisplay captures shown prompts and completes them immediately.
type recordingDisplay struct {
	mu     sync.Mutex
	shown  []feedback.Message
	notify chan struct{}
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{notify: make(chan struct{}, 16)}
}

func (d *recordingDisplay) Show(userID string, msg feedback.Message, completed func()) {
	d.mu.Lock()
	d.shown = append(d.shown, msg)
	d.mu.Unlock()
	completed()
	d.notify <- struct{}{}
}

func (d *recordingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shown)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestClientAgainstSimulator(t *testing.T) {
	sim, ts := testutil.StartSimulator(t)
	testutil.SeedFlags(t, ts.URL,
		flags.FlagRecord{Key: "beta-dashboard", IsEnabled: true, Version: 1},
		flags.FlagRecord{Key: "dark-mode", IsEnabled: false, Version: 2},
	)

	nop := zerolog.Nop()
	display := newRecordingDisplay()
	client, err := New(Options{
		Config: &config.Config{
			BaseURL:          ts.URL,
			ResolveTimeoutMs: 2000,
			FreshnessSec:     30,
			CheckRateLimit:   60,
			LogLevel:         "disabled",
		},
		Context: fingerprint.Context{fingerprint.ActorUser: {"id": "u-int"}},
		Display: display,
		Store:   completion.NewMemoryStore(),
		Logger:  &nop,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Close()

	set := client.Resolve(context.Background(), flags.ResolveOptions{})
	if !set.Enabled("beta-dashboard") {
		t.Error("beta-dashboard should be enabled")
	}
	if set.Enabled("dark-mode") {
		t.Error("dark-mode should be disabled")
	}
	if rec := set.Get("dark-mode"); rec.Version != 2 {
		t.Errorf("dark-mode version = %d, want 2", rec.Version)
	}

	// A second resolve within the freshness window is served from the cache.
	again := client.Resolve(context.Background(), flags.ResolveOptions{})
	if len(again) != len(set) {
		t.Errorf("cached resolve returned %d flags, want %d", len(again), len(set))
	}

	// Wait for the push channel to connect, then publish a prompt and watch
	// it travel stream -> scheduler -> display -> completion.
	waitFor(t, 3*time.Second, func() bool { return sim.Subscribers() > 0 })

	completedCh := make(chan feedback.PromptEvent, 1)
	off := client.On(feedback.EventCompleted, func(p any) error {
		completedCh <- p.(feedback.PromptEvent)
		return nil
	})
	defer off()

	promptID := testutil.PushPrompt(t, ts.URL, "beta-dashboard", "How is the new dashboard?")

	select {
	case <-display.notify:
	case <-time.After(3 * time.Second):
		t.Fatal("prompt was never displayed")
	}
	select {
	case ev := <-completedCh:
		if ev.PromptID != promptID {
			t.Errorf("completed prompt %q, want %q", ev.PromptID, promptID)
		}
		if ev.UserID != "u-int" {
			t.Errorf("completed for user %q, want u-int", ev.UserID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("completion event never fired")
	}

	// Re-delivering the same prompt must be vetoed by the completion record.
	if got := client.HandlePromptMessage(rawPrompt(promptID)); got != feedback.OutcomeRejected {
		t.Errorf("re-delivery outcome = %v, want rejected", got)
	}
	if display.count() != 1 {
		t.Errorf("display shown %d times, want 1", display.count())
	}
}

func rawPrompt(promptID string) []byte {
	now := time.Now()
	return []byte(`{"promptId":"` + promptID + `","featureId":"beta-dashboard","question":"again?","showAfter":` +
		strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10) + `,"showBefore":` +
		strconv.FormatInt(now.Add(time.Hour).UnixMilli(), 10) + `}`)
}
