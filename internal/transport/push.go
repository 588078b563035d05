package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagship-sdk/internal/telemetry"
)

// MessageHandler receives each raw push-channel payload. Malformed messages
// are the receiver's problem to reject, not the channel's.
type MessageHandler func(raw []byte)

// PushChannel maintains a server-sent-events stream of prompt messages,
// reconnecting with exponential backoff. It delivers payloads unmodified.
type PushChannel struct {
	url     string
	apiKey  string
	client  *http.Client
	handler MessageHandler
	log     zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPushChannel creates a channel for baseURL's prompt stream. Start must be
// called to begin receiving.
func NewPushChannel(baseURL, apiKey string, handler MessageHandler, logger zerolog.Logger) *PushChannel {
	return &PushChannel{
		url:     strings.TrimRight(baseURL, "/") + "/v1/prompts/stream",
		apiKey:  apiKey,
		client:  &http.Client{}, // no client timeout: the stream is long-lived
		handler: handler,
		log:     logger,
		done:    make(chan struct{}),
	}
}

// Start begins consuming the stream in the background. Call Close to stop.
func (p *PushChannel) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

// Close tears the stream down and waits for the consumer loop to exit.
func (p *PushChannel) Close() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *PushChannel) run(ctx context.Context) {
	defer close(p.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute

	for {
		started := time.Now()
		err := p.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.log.Warn().Err(err).Msg("push channel disconnected")
		}
		// A connection that held for a while earns a fresh backoff schedule.
		if time.Since(started) > time.Minute {
			bo.Reset()
		}

		telemetry.PushReconnects.Inc()
		select {
		case <-time.After(bo.NextBackOff()):
		case <-ctx.Done():
			return
		}
	}
}

// stream opens one SSE connection and dispatches data payloads until the
// connection drops or ctx is cancelled.
func (p *PushChannel) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("stream error (status %d): %s", resp.StatusCode, string(body))
	}

	p.log.Debug().Str("url", p.url).Msg("push channel connected")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				p.handler(append([]byte(nil), data.Bytes()...))
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event names, ids and comments are irrelevant to the scheduler
		}
	}
	return scanner.Err()
}
