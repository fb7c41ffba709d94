package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/limitwatch/limitwatch/internal/database"
	"github.com/limitwatch/limitwatch/internal/logging"
	"github.com/limitwatch/limitwatch/internal/models"
	"github.com/limitwatch/limitwatch/internal/monitor"
	"github.com/limitwatch/limitwatch/internal/notify"
	"github.com/limitwatch/limitwatch/internal/rules"
	"github.com/limitwatch/limitwatch/internal/snapshot"
)

func newRecorder(t *testing.T) (*Recorder, *database.Repository) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	repo := database.NewRepository(db)
	return NewRecorder(repo, logging.Discard()), repo
}

var at = time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)

func trigger(session string) monitor.Transition {
	return monitor.Transition{
		SessionID: session,
		From:      monitor.StateMonitoring,
		To:        monitor.StateLimitReached,
		Event:     monitor.EventTrigger,
		Signal:    &rules.Signal{Triggered: true, Reason: "process enforcerd at 95.0% CPU", Source: snapshot.SourceProcess, Marker: "enforcerd"},
		At:        at,
	}
}

func TestRecordTriggerAndExtend(t *testing.T) {
	rec, repo := newRecorder(t)

	if err := rec.Record(trigger("s1")); err != nil {
		t.Fatalf("Record(trigger) error: %v", err)
	}
	resp := notify.Extend(15)
	if err := rec.Record(monitor.Transition{
		SessionID: "s1",
		From:      monitor.StateLimitReached,
		To:        monitor.StateExtended,
		Event:     monitor.EventExtend,
		Response:  &resp,
		At:        at.Add(time.Minute),
	}); err != nil {
		t.Fatalf("Record(extend) error: %v", err)
	}

	e, err := repo.GetLatest()
	if err != nil || e == nil {
		t.Fatalf("GetLatest() = %v, %v", e, err)
	}
	if e.Source != "process" || e.Marker != "enforcerd" || e.Response != models.ResponseExtend || e.ExtendMinutes != 15 {
		t.Errorf("event = %+v", e)
	}
}

func TestRecordStopWhilePending(t *testing.T) {
	rec, repo := newRecorder(t)

	_ = rec.Record(trigger("s1"))
	if err := rec.Record(monitor.Transition{SessionID: "s1", From: monitor.StateLimitReached, To: monitor.StateIdle, Event: monitor.EventStop, At: at}); err != nil {
		t.Fatalf("Record(stop) error: %v", err)
	}
	e, _ := repo.GetLatest()
	if e.Response != models.ResponseStopped {
		t.Errorf("Response = %q, want stopped", e.Response)
	}

	// stopping from monitoring has nothing to close
	if err := rec.Record(monitor.Transition{SessionID: "s1", From: monitor.StateMonitoring, To: monitor.StateIdle, Event: monitor.EventStop, At: at}); err != nil {
		t.Errorf("Record(stop from monitoring) error: %v", err)
	}
}

func TestRecordAcknowledgeWithoutTrigger(t *testing.T) {
	rec, _ := newRecorder(t)
	ack := notify.Acknowledge()
	err := rec.Record(monitor.Transition{SessionID: "nope", Event: monitor.EventAcknowledge, Response: &ack, At: at})
	if !errors.Is(err, database.ErrNoOpenEvent) {
		t.Errorf("error = %v, want ErrNoOpenEvent", err)
	}
}

func TestRun(t *testing.T) {
	rec, repo := newRecorder(t)

	ch := make(chan monitor.Transition, 4)
	ch <- monitor.Transition{SessionID: "s1", From: monitor.StateIdle, To: monitor.StateMonitoring, Event: monitor.EventStart, At: at}
	ch <- trigger("s1")
	close(ch)

	done := make(chan struct{})
	go func() {
		rec.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return when the channel closed")
	}

	events, err := repo.GetEventsBetween(at.Add(-time.Hour), at.Add(time.Hour))
	if err != nil || len(events) != 1 {
		t.Errorf("events = %d, %v; want 1", len(events), err)
	}
}

func TestRecordReadError(t *testing.T) {
	rec, repo := newRecorder(t)
	rec.now = func() time.Time { return at }

	rec.RecordReadError(&snapshot.ReadError{Source: snapshot.SourceWindow, Lister: "x11", Err: errors.New("no display")})

	n, err := repo.CountErrorsBetween(at.Add(-time.Second), at.Add(time.Second))
	if err != nil || n != 1 {
		t.Errorf("CountErrorsBetween() = %d, %v", n, err)
	}
}
