package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/limitwatch/limitwatch/internal/database"
	"github.com/limitwatch/limitwatch/internal/models"
	"github.com/limitwatch/limitwatch/internal/monitor"
	"github.com/limitwatch/limitwatch/internal/notify"
	"github.com/limitwatch/limitwatch/internal/reporter"
	"github.com/limitwatch/limitwatch/pkg/utils"
)

// Controller is the part of the monitor the web API drives
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Respond(resp notify.Response) error
	Simulate(reason string) error
	Status() monitor.Status
	Subscribe() (<-chan monitor.Transition, func())
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	monitor.Status
	Remaining string `json:"remaining,omitempty"`
}

type respondRequest struct {
	Action  notify.Action `json:"action"`
	Minutes int           `json:"minutes"`
}

type simulateRequest struct {
	Reason string `json:"reason"`
}

type Handler struct {
	ctrl        Controller
	repo        *database.Repository
	reporter    *reporter.Reporter
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	now         func() time.Time
}

// NewHandler builds the API. repo may be nil, in which case the history
// endpoints answer 503.
func NewHandler(ctrl Controller, repo *database.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		ctrl:        ctrl,
		repo:        repo,
		broadcaster: NewBroadcaster(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
		logger: logger,
		now:    time.Now,
	}
	if repo != nil {
		h.reporter = reporter.New(repo)
	}
	return h
}

// Run streams monitor transitions to websocket clients until ctx is done
func (h *Handler) Run(ctx context.Context) {
	transitions, unsubscribe := h.ctrl.Subscribe()
	defer unsubscribe()
	h.broadcaster.Run(ctx, transitions)
}

func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/start", control(h.handleStart))
	mux.HandleFunc("/api/stop", control(h.handleStop))
	mux.HandleFunc("/api/respond", control(h.handleRespond))
	mux.HandleFunc("/api/simulate", control(h.handleSimulate))
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/events/latest", h.handleLatestEvent)
	mux.HandleFunc("/api/report", h.handleReport)

	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/health", h.handleHealth)

	mux.HandleFunc("/", h.handleIndex)
}

// sameOrigin accepts requests without an Origin header (CLI and other
// non-browser clients) and browser requests whose Origin host matches the
// host they were sent to.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// control wraps the state-changing endpoints: POST only, same origin, JSON
// body.
func control(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !sameOrigin(r) {
			http.Error(w, "Cross-origin request refused", http.StatusForbidden)
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
		next(w, r)
	}
}

func (h *Handler) status() StatusResponse {
	st := h.ctrl.Status()
	resp := StatusResponse{Status: st}
	if st.State == monitor.StateExtended && !st.GraceDeadline.IsZero() {
		resp.Remaining = utils.FormatRemaining(h.now(), st.GraceDeadline)
	}
	return resp
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, h.status())
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Start(r.Context()); err != nil {
		h.respondControlError(w, err)
		return
	}
	respondJSON(w, h.status())
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Stop()
	respondJSON(w, h.status())
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Minutes < 0 {
		http.Error(w, "minutes must not be negative", http.StatusBadRequest)
		return
	}

	resp := notify.Acknowledge()
	if req.Action == notify.ActionExtend {
		resp = notify.Extend(req.Minutes)
	}
	if err := h.ctrl.Respond(resp); err != nil {
		h.respondControlError(w, err)
		return
	}
	respondJSON(w, h.status())
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "simulated from web"
	}

	if err := h.ctrl.Simulate(req.Reason); err != nil {
		h.respondControlError(w, err)
		return
	}
	respondJSON(w, h.status())
}

func (h *Handler) respondControlError(w http.ResponseWriter, err error) {
	var authErr *monitor.AuthorizationError
	switch {
	case errors.As(err, &authErr):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, monitor.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, monitor.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error("control request failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.repo == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	limit := 100 // default
	if l, err := strconv.Atoi(query.Get("limit")); err == nil && l > 0 {
		limit = l
	}

	var (
		events []*models.LimitEvent
		err    error
	)
	if periodType := query.Get("period"); periodType != "" {
		period, perr := reporter.GetPeriod(periodType, h.now())
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		events, err = h.repo.GetEventsBetween(period.Start, period.End)
		if len(events) > limit {
			events = events[len(events)-limit:]
		}
	} else {
		events, err = h.repo.GetRecent(limit)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch events: %v", err), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*models.LimitEvent{}
	}

	respondJSON(w, events)
}

func (h *Handler) handleLatestEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.repo == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}

	event, err := h.repo.GetLatest()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch latest event: %v", err), http.StatusInternalServerError)
		return
	}
	if event == nil {
		http.Error(w, "No events found", http.StatusNotFound)
		return
	}

	respondJSON(w, event)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.reporter == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}

	periodType := r.URL.Query().Get("period")
	if periodType == "" {
		periodType = "day"
	}
	if _, err := reporter.GetPeriod(periodType, h.now()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.reporter.GenerateReport(periodType)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate report: %v", err), http.StatusInternalServerError)
		return
	}

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		respondJSON(w, report)
	case "text", "yaml":
		body, err := h.reporter.Format(report, format)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to format report: %v", err), http.StatusInternalServerError)
			return
		}
		contentType := "text/plain; charset=utf-8"
		if format == "yaml" {
			contentType = "application/yaml"
		}
		w.Header().Set("Content-Type", contentType)
		fmt.Fprint(w, body)
	default:
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
	}
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade error", "err", err)
		return
	}

	c := h.broadcaster.AddClient(conn, h.ctrl.Status())
	h.logger.Debug("ws client connected", "remote", r.RemoteAddr)

	// Reads only detect disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.broadcaster.RemoveClient(c)
	h.logger.Debug("ws client disconnected", "remote", r.RemoteAddr)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   h.now().Format(time.RFC3339),
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
