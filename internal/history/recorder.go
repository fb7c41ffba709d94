// Package history persists limit events and snapshot failures.
package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/limitwatch/limitwatch/internal/database"
	"github.com/limitwatch/limitwatch/internal/models"
	"github.com/limitwatch/limitwatch/internal/monitor"
	"github.com/limitwatch/limitwatch/internal/notify"
	"github.com/limitwatch/limitwatch/internal/snapshot"
)

// Recorder turns monitor transitions into LimitEvent rows
type Recorder struct {
	repo   *database.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(repo *database.Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger, now: time.Now}
}

// Run records transitions until the channel closes or ctx is done
func (r *Recorder) Run(ctx context.Context, transitions <-chan monitor.Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-transitions:
			if !ok {
				return
			}
			if err := r.Record(t); err != nil {
				r.logger.Error("failed to record transition", "session", t.SessionID, "event", string(t.Event), "err", err)
			}
		}
	}
}

// Record stores one transition. Only triggers and the answers to them are
// persisted.
func (r *Recorder) Record(t monitor.Transition) error {
	switch t.Event {
	case monitor.EventTrigger:
		if t.Signal == nil {
			return nil
		}
		return r.repo.CreateLimitEvent(&models.LimitEvent{
			SessionID:   t.SessionID,
			Source:      t.Signal.Source.String(),
			Marker:      t.Signal.Marker,
			Reason:      t.Signal.Reason,
			TriggeredAt: t.At,
		})

	case monitor.EventAcknowledge, monitor.EventExtend:
		response, minutes := models.ResponseAcknowledge, 0
		if t.Response != nil && t.Response.Action == notify.ActionExtend {
			response, minutes = models.ResponseExtend, t.Response.Minutes
		}
		return r.repo.RecordResponse(t.SessionID, response, minutes, t.At)

	case monitor.EventStop:
		if t.From != monitor.StateLimitReached {
			return nil
		}
		err := r.repo.RecordResponse(t.SessionID, models.ResponseStopped, 0, t.At)
		if errors.Is(err, database.ErrNoOpenEvent) {
			return nil
		}
		return err
	}
	return nil
}

// RecordReadError stores a failed capture. It is meant to be passed to
// snapshot.WithErrorHook.
func (r *Recorder) RecordReadError(rerr *snapshot.ReadError) {
	err := r.repo.CreateErrorLog(&models.ErrorLog{
		Timestamp: r.now(),
		Source:    rerr.Source.String(),
		Lister:    rerr.Lister,
		ErrorMsg:  rerr.Err.Error(),
	})
	if err != nil {
		r.logger.Error("failed to store snapshot error", "err", err, "original", rerr)
	}
}
