package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrNoPrompt is returned by Answer when no alert is waiting
var ErrNoPrompt = errors.New("no pending prompt")

// PromptNotifier parks the alert until some other surface, such as the web
// API or the TUI, answers it.
type PromptNotifier struct {
	mu      sync.Mutex
	pending *Alert
	answer  chan Response
}

func NewPromptNotifier() *PromptNotifier {
	return &PromptNotifier{}
}

func (n *PromptNotifier) NotifyLimitReached(ctx context.Context, alert Alert) (Response, error) {
	answer := make(chan Response, 1)

	n.mu.Lock()
	n.pending = &alert
	n.answer = answer
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		if n.answer == answer {
			n.pending = nil
			n.answer = nil
		}
		n.mu.Unlock()
	}()

	select {
	case resp := <-answer:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Pending returns the alert awaiting an answer
func (n *PromptNotifier) Pending() (Alert, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending == nil {
		return Alert{}, false
	}
	return *n.pending, true
}

// Answer resolves the pending alert
func (n *PromptNotifier) Answer(resp Response) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.answer == nil {
		return ErrNoPrompt
	}
	n.answer <- resp
	n.pending = nil
	n.answer = nil
	return nil
}
