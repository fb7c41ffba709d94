// Package notify interrupts the user when a limit is reached and collects
// their answer.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/limitwatch/limitwatch/internal/rules"
)

const (
	Title   = "Screen Time Limit Reached"
	Message = "You have reached your screen time limit for this app or category."
)

// Action is the user's answer to a limit alert
type Action int

const (
	ActionAcknowledge Action = iota
	ActionExtend
)

func (a Action) String() string {
	if a == ActionExtend {
		return "extend"
	}
	return "acknowledge"
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	switch string(text) {
	case "acknowledge", "ok":
		*a = ActionAcknowledge
	case "extend":
		*a = ActionExtend
	default:
		return fmt.Errorf("unknown action %q", text)
	}
	return nil
}

// Response is the outcome of a notification
type Response struct {
	Action  Action `json:"action"`
	Minutes int    `json:"minutes,omitempty"` // grace period, Extend only
}

// Acknowledge dismisses the alert and resumes monitoring
func Acknowledge() Response {
	return Response{Action: ActionAcknowledge}
}

// Extend suppresses detection for the given number of minutes
func Extend(minutes int) Response {
	return Response{Action: ActionExtend, Minutes: minutes}
}

func (r Response) String() string {
	if r.Action == ActionExtend {
		return fmt.Sprintf("extend %dm", r.Minutes)
	}
	return r.Action.String()
}

// Alert describes the limit the user is being told about
type Alert struct {
	SessionID     string       `json:"session_id"`
	Signal        rules.Signal `json:"signal"`
	ExtendMinutes int          `json:"extend_minutes"` // offered by the Extend action
}

// ExtendLabel is the caption of the extend button
func (a Alert) ExtendLabel() string {
	return fmt.Sprintf("Extend %d Minutes", a.ExtendMinutes)
}

// Text is the full alert body including why it fired
func (a Alert) Text() string {
	if a.Signal.Reason == "" {
		return Message
	}
	return fmt.Sprintf("%s\n\nDetected: %s", Message, a.Signal.Reason)
}

// Notifier shows a limit alert. NotifyLimitReached may block until the user
// answers; it must return promptly once ctx is cancelled.
type Notifier interface {
	NotifyLimitReached(ctx context.Context, alert Alert) (Response, error)
}

// Func adapts a plain function to Notifier
type Func func(ctx context.Context, alert Alert) (Response, error)

func (f Func) NotifyLimitReached(ctx context.Context, alert Alert) (Response, error) {
	return f(ctx, alert)
}

// LogNotifier records the alert and acknowledges it immediately
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyLimitReached(ctx context.Context, alert Alert) (Response, error) {
	n.logger.Warn(Title,
		"session", alert.SessionID,
		"source", alert.Signal.Source.String(),
		"reason", alert.Signal.Reason,
	)
	return Acknowledge(), nil
}
