package monitor

import (
	"fmt"
	"time"

	"github.com/limitwatch/limitwatch/internal/notify"
	"github.com/limitwatch/limitwatch/internal/rules"
)

// State is the monitor's position in its lifecycle
type State int

const (
	StateIdle State = iota
	StateMonitoring
	StateLimitReached
	StateExtended
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateMonitoring:   "monitoring",
	StateLimitReached: "limit_reached",
	StateExtended:     "extended",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Event names what caused a transition
type Event string

const (
	EventStart        Event = "start"
	EventTrigger      Event = "trigger"
	EventAcknowledge  Event = "acknowledge"
	EventExtend       Event = "extend"
	EventGraceElapsed Event = "grace_elapsed"
	EventStop         Event = "stop"
)

// Transition is published to subscribers on every state change
type Transition struct {
	SessionID string           `json:"session_id"`
	From      State            `json:"from"`
	To        State            `json:"to"`
	Event     Event            `json:"event"`
	Signal    *rules.Signal    `json:"signal,omitempty"`   // set for EventTrigger
	Response  *notify.Response `json:"response,omitempty"` // set for EventAcknowledge and EventExtend
	At        time.Time        `json:"at"`
}

// Status is a point-in-time copy of the monitor's state
type Status struct {
	State              State         `json:"state"`
	SessionID          string        `json:"session_id,omitempty"`
	Interval           time.Duration `json:"interval"`
	StartedAt          time.Time     `json:"started_at,omitzero"`
	LastCheckAt        time.Time     `json:"last_check_at,omitzero"`
	GraceDeadline      time.Time     `json:"grace_deadline,omitzero"`
	LastSignal         *rules.Signal `json:"last_signal,omitempty"`
	PendingPrompt      *notify.Alert `json:"pending_prompt,omitempty"`
	Triggers           int           `json:"triggers"`
	DroppedTransitions uint64        `json:"dropped_transitions"`
}

// allowed lists the legal transitions
var allowed = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateMonitoring,
	},
	StateMonitoring: {
		EventTrigger: StateLimitReached,
		EventStop:    StateIdle,
	},
	StateLimitReached: {
		EventAcknowledge: StateMonitoring,
		EventExtend:      StateExtended,
		EventStop:        StateIdle,
	},
	StateExtended: {
		EventGraceElapsed: StateMonitoring,
		EventStop:         StateIdle,
	},
}

// next returns the state reached from s on e
func next(s State, e Event) (State, error) {
	to, ok := allowed[s][e]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
	}
	return to, nil
}
