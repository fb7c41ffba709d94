package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/limitwatch/limitwatch/internal/database"
	"github.com/limitwatch/limitwatch/internal/models"
	"github.com/limitwatch/limitwatch/internal/monitor"
	"github.com/limitwatch/limitwatch/internal/notify"
	"github.com/limitwatch/limitwatch/internal/rules"
	"github.com/limitwatch/limitwatch/internal/snapshot"
)

type fakeController struct {
	mu         sync.Mutex
	status     monitor.Status
	startErr   error
	respondErr error
	responses  []notify.Response
	reasons    []string
	stops      int

	subs       chan monitor.Transition
	subscribed chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		status:     monitor.Status{State: monitor.StateIdle, Interval: 10 * time.Second},
		subs:       make(chan monitor.Transition, 4),
		subscribed: make(chan struct{}),
	}
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.status.State = monitor.StateMonitoring
	f.status.SessionID = "session-1"
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.status = monitor.Status{State: monitor.StateIdle}
}

func (f *fakeController) Respond(resp notify.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.respondErr != nil {
		return f.respondErr
	}
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeController) Simulate(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.State != monitor.StateMonitoring {
		return monitor.ErrInvalidTransition
	}
	f.reasons = append(f.reasons, reason)
	f.status.State = monitor.StateLimitReached
	return nil
}

func (f *fakeController) Status() monitor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) Subscribe() (<-chan monitor.Transition, func()) {
	close(f.subscribed)
	return f.subs, func() {}
}

func newTestHandler(t *testing.T, withRepo bool) (*Handler, *fakeController, *database.Repository, *http.ServeMux) {
	t.Helper()
	ctrl := newFakeController()

	var repo *database.Repository
	if withRepo {
		db, err := database.Open(filepath.Join(t.TempDir(), "web.db"))
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		repo = database.NewRepository(db)
	}

	h := NewHandler(ctrl, repo, nil)
	mux := http.NewServeMux()
	h.SetupRoutes(mux)
	return h, ctrl, repo, mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) StatusResponse {
	t.Helper()
	var st StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func TestStatusEndpoint(t *testing.T) {
	_, _, _, mux := newTestHandler(t, false)

	rec := do(t, mux, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if st := decodeStatus(t, rec); st.State != monitor.StateIdle {
		t.Errorf("State = %s, want idle", st.State)
	}

	if rec := do(t, mux, http.MethodPost, "/api/status", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status code = %d, want 405", rec.Code)
	}
}

func TestStatusReportsRemainingWhileExtended(t *testing.T) {
	h, ctrl, _, mux := newTestHandler(t, false)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	ctrl.status = monitor.Status{
		State:         monitor.StateExtended,
		GraceDeadline: now.Add(14*time.Minute + 30*time.Second),
	}

	st := decodeStatus(t, do(t, mux, http.MethodGet, "/api/status", ""))
	if st.Remaining != "14m30s" {
		t.Errorf("Remaining = %q, want 14m30s", st.Remaining)
	}
}

func TestStartStopSimulate(t *testing.T) {
	_, ctrl, _, mux := newTestHandler(t, false)

	rec := do(t, mux, http.MethodPost, "/api/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start code = %d, want 200", rec.Code)
	}
	if st := decodeStatus(t, rec); st.State != monitor.StateMonitoring || st.SessionID != "session-1" {
		t.Errorf("after start = %+v", st.Status)
	}

	rec = do(t, mux, http.MethodPost, "/api/simulate", `{"reason":"test trigger"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("simulate code = %d, want 200", rec.Code)
	}
	if len(ctrl.reasons) != 1 || ctrl.reasons[0] != "test trigger" {
		t.Errorf("reasons = %v", ctrl.reasons)
	}

	// Simulating again outside monitoring conflicts
	if rec := do(t, mux, http.MethodPost, "/api/simulate", ""); rec.Code != http.StatusConflict {
		t.Errorf("second simulate code = %d, want 409", rec.Code)
	}

	rec = do(t, mux, http.MethodPost, "/api/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop code = %d, want 200", rec.Code)
	}
	if ctrl.stops != 1 {
		t.Errorf("stops = %d, want 1", ctrl.stops)
	}

	if rec := do(t, mux, http.MethodGet, "/api/start", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET start code = %d, want 405", rec.Code)
	}
}

func TestSimulateDefaultReason(t *testing.T) {
	_, ctrl, _, mux := newTestHandler(t, false)
	do(t, mux, http.MethodPost, "/api/start", "")

	if rec := do(t, mux, http.MethodPost, "/api/simulate", ""); rec.Code != http.StatusOK {
		t.Fatalf("simulate code = %d, want 200", rec.Code)
	}
	if len(ctrl.reasons) != 1 || ctrl.reasons[0] == "" {
		t.Errorf("reasons = %v, want one non-empty reason", ctrl.reasons)
	}
}

func TestStartAuthorizationFailure(t *testing.T) {
	_, ctrl, _, mux := newTestHandler(t, false)
	ctrl.startErr = &monitor.AuthorizationError{Reason: "no window access", Err: errors.New("denied")}

	if rec := do(t, mux, http.MethodPost, "/api/start", ""); rec.Code != http.StatusForbidden {
		t.Errorf("start code = %d, want 403", rec.Code)
	}

	ctrl.startErr = monitor.ErrClosed
	if rec := do(t, mux, http.MethodPost, "/api/start", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("closed start code = %d, want 503", rec.Code)
	}
}

func TestRespond(t *testing.T) {
	_, ctrl, _, mux := newTestHandler(t, false)

	tests := []struct {
		body string
		want notify.Response
	}{
		{`{"action":"acknowledge"}`, notify.Acknowledge()},
		{`{"action":"extend","minutes":5}`, notify.Extend(5)},
		{`{"action":"extend"}`, notify.Extend(0)},
	}
	for _, tt := range tests {
		if rec := do(t, mux, http.MethodPost, "/api/respond", tt.body); rec.Code != http.StatusOK {
			t.Fatalf("respond %s code = %d, want 200", tt.body, rec.Code)
		}
	}
	for i, tt := range tests {
		if ctrl.responses[i] != tt.want {
			t.Errorf("responses[%d] = %+v, want %+v", i, ctrl.responses[i], tt.want)
		}
	}

	for _, body := range []string{`{"action":"snooze"}`, `{"action":"extend","minutes":-1}`, `not json`} {
		if rec := do(t, mux, http.MethodPost, "/api/respond", body); rec.Code != http.StatusBadRequest {
			t.Errorf("respond %s code = %d, want 400", body, rec.Code)
		}
	}

	ctrl.respondErr = monitor.ErrInvalidTransition
	if rec := do(t, mux, http.MethodPost, "/api/respond", `{"action":"acknowledge"}`); rec.Code != http.StatusConflict {
		t.Errorf("respond while idle code = %d, want 409", rec.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	_, _, _, mux := newTestHandler(t, false)

	for _, path := range []string{"/api/events", "/api/events/latest", "/api/report"} {
		if rec := do(t, mux, http.MethodGet, path, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s code = %d, want 503", path, rec.Code)
		}
	}
}

func TestEventsAndReport(t *testing.T) {
	_, _, repo, mux := newTestHandler(t, true)

	if rec := do(t, mux, http.MethodGet, "/api/events/latest", ""); rec.Code != http.StatusNotFound {
		t.Errorf("latest on empty db code = %d, want 404", rec.Code)
	}

	now := time.Now()
	for i, src := range []string{"window", "process", "process"} {
		err := repo.CreateLimitEvent(&models.LimitEvent{
			SessionID:   "s1",
			Source:      src,
			Marker:      "screentimed",
			Reason:      "limit",
			TriggeredAt: now.Add(-time.Duration(3-i) * time.Second),
		})
		if err != nil {
			t.Fatalf("CreateLimitEvent() error: %v", err)
		}
	}

	var events []models.LimitEvent
	rec := do(t, mux, http.MethodGet, "/api/events?period=day", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events code = %d, want 200", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("len(events) = %d, want 3", len(events))
	}

	rec = do(t, mux, http.MethodGet, "/api/events?limit=2", "")
	events = nil
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len(events) with limit = %d, want 2", len(events))
	}

	if rec := do(t, mux, http.MethodGet, "/api/events?period=year", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad period code = %d, want 400", rec.Code)
	}

	var report models.Report
	rec = do(t, mux, http.MethodGet, "/api/report?period=day", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("report code = %d, want 200", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", report.TotalEvents)
	}

	rec = do(t, mux, http.MethodGet, "/api/report?format=yaml", "")
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("yaml Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "total_events: 3") {
		t.Errorf("yaml report missing total_events:\n%s", rec.Body.String())
	}

	if rec := do(t, mux, http.MethodGet, "/api/report?format=xml", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("xml format code = %d, want 400", rec.Code)
	}
}

func TestHealthAndIndex(t *testing.T) {
	_, _, _, mux := newTestHandler(t, false)

	if rec := do(t, mux, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health code = %d, want 200", rec.Code)
	}

	rec := do(t, mux, http.MethodGet, "/", "")
	if !strings.Contains(rec.Body.String(), "<title>limitwatch</title>") {
		t.Error("index page missing title")
	}

	if rec := do(t, mux, http.MethodGet, "/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path code = %d, want 404", rec.Code)
	}
}

func TestWebSocketStreamsTransitions(t *testing.T) {
	h, ctrl, _, mux := newTestHandler(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	select {
	case <-ctrl.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never subscribed")
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var greeting struct {
		Type    string         `json:"type"`
		Payload monitor.Status `json:"payload"`
	}
	if err := conn.ReadJSON(&greeting); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if greeting.Type != MsgStatus || greeting.Payload.State != monitor.StateIdle {
		t.Errorf("greeting = %+v", greeting)
	}

	sig := rules.Signal{Triggered: true, Reason: "window matched", Source: snapshot.SourceWindow, Marker: "Time Limit"}
	ctrl.subs <- monitor.Transition{
		SessionID: "session-1",
		From:      monitor.StateMonitoring,
		To:        monitor.StateLimitReached,
		Event:     monitor.EventTrigger,
		Signal:    &sig,
		At:        time.Now(),
	}

	var msg struct {
		Type    string             `json:"type"`
		Payload monitor.Transition `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read transition: %v", err)
	}
	if msg.Type != MsgTransition {
		t.Errorf("Type = %s, want %s", msg.Type, MsgTransition)
	}
	if msg.Payload.To != monitor.StateLimitReached || msg.Payload.Signal == nil || msg.Payload.Signal.Marker != "Time Limit" {
		t.Errorf("payload = %+v", msg.Payload)
	}

	// Ending the feed disconnects clients
	cancel()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after feed ends")
	}
}

func TestControlRejectsCrossOrigin(t *testing.T) {
	_, ctrl, _, mux := newTestHandler(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/stop", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-origin stop code = %d, want 403", rec.Code)
	}
	if ctrl.stops != 0 {
		t.Errorf("stops = %d, want 0", ctrl.stops)
	}

	// httptest requests are addressed to example.com
	req = httptest.NewRequest(http.MethodPost, "/api/stop", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://EXAMPLE.com")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("same-origin stop code = %d, want 200", rec.Code)
	}
	if ctrl.stops != 1 {
		t.Errorf("stops = %d, want 1", ctrl.stops)
	}
}

func TestControlRequiresJSON(t *testing.T) {
	_, ctrl, _, mux := newTestHandler(t, false)

	tests := []struct {
		contentType string
		want        int
	}{
		{"", http.StatusUnsupportedMediaType},
		{"text/plain", http.StatusUnsupportedMediaType},
		{"application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"application/json; charset=utf-8", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/respond", strings.NewReader(`{"action":"acknowledge"}`))
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("Content-Type %q code = %d, want %d", tt.contentType, rec.Code, tt.want)
		}
	}
	if len(ctrl.responses) != 1 {
		t.Errorf("responses = %v, want exactly one", ctrl.responses)
	}
}

func TestWebSocketRejectsCrossOrigin(t *testing.T) {
	_, _, _, mux := newTestHandler(t, false)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatal("cross-origin dial succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-origin dial response = %v, want 403", resp)
	}

	header = http.Header{"Origin": []string{srv.URL}}
	conn, _, err = websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("same-origin Dial() error: %v", err)
	}
	conn.Close()
}
