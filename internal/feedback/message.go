// Package feedback decides whether and when to show an in-product feedback
// prompt for a server-pushed survey invitation, exactly once per invitation.
package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Hook bus event names emitted by the scheduler.
const (
	EventDisplayed = "prompt.displayed"
	EventCompleted = "prompt.completed"
)

// Message is a validated survey invitation. The [ShowAfter, ShowBefore]
// interval is the only window during which it may be displayed.
type Message struct {
	PromptID   string
	FeatureID  string
	Question   string
	ShowAfter  time.Time
	ShowBefore time.Time
}

// wireMessage is the push-channel shape. Window bounds travel as epoch
// milliseconds.
type wireMessage struct {
	PromptID   string `json:"promptId"`
	FeatureID  string `json:"featureId"`
	Question   string `json:"question"`
	ShowAfter  int64  `json:"showAfter"`
	ShowBefore int64  `json:"showBefore"`
}

// ErrInvalidMessage wraps all message validation failures.
var ErrInvalidMessage = errors.New("invalid prompt message")

// ParseMessage decodes and validates a raw push-channel payload. A message
// failing any field constraint is invalid; the caller discards it with no
// side effect.
func ParseMessage(raw []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if strings.TrimSpace(wire.PromptID) == "" {
		return Message{}, fmt.Errorf("%w: promptId is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(wire.FeatureID) == "" {
		return Message{}, fmt.Errorf("%w: featureId is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(wire.Question) == "" {
		return Message{}, fmt.Errorf("%w: question is required", ErrInvalidMessage)
	}
	if wire.ShowAfter <= 0 || wire.ShowBefore <= 0 {
		return Message{}, fmt.Errorf("%w: showAfter and showBefore are required", ErrInvalidMessage)
	}
	if wire.ShowBefore < wire.ShowAfter {
		return Message{}, fmt.Errorf("%w: display window is inverted", ErrInvalidMessage)
	}
	return Message{
		PromptID:   wire.PromptID,
		FeatureID:  wire.FeatureID,
		Question:   wire.Question,
		ShowAfter:  time.UnixMilli(wire.ShowAfter),
		ShowBefore: time.UnixMilli(wire.ShowBefore),
	}, nil
}

// PromptEvent is the payload of EventDisplayed and EventCompleted.
type PromptEvent struct {
	UserID    string
	PromptID  string
	FeatureID string
	Question  string
}
