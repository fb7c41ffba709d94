package monitor

import (
	"time"

	"github.com/google/uuid"

	"github.com/limitwatch/limitwatch/internal/rules"
)

// session lives from Start to Stop and is only touched by the actor
type session struct {
	id            string
	startedAt     time.Time
	interval      time.Duration
	lastCheckAt   time.Time
	graceDeadline time.Time
	lastSignal    *rules.Signal
	triggers      int
}

func newSession(now time.Time, interval time.Duration) *session {
	return &session{
		id:        uuid.NewString(),
		startedAt: now,
		interval:  interval,
	}
}
