package http

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"

	loaderrors "pitloader/internal/errors"
	"pitloader/pkg/contracts"
)

// LoadStatus is the outcome of the most recent dataset load
type LoadStatus struct {
	Dataset  string    `json:"dataset"`
	Finished time.Time `json:"finished"`
	Days     int       `json:"days"`
	Assets   int       `json:"assets"`
	Error    string    `json:"error,omitempty"`

	err error
}

// StatusTracker records load outcomes for the health endpoints
type StatusTracker struct {
	mu      sync.RWMutex
	started time.Time
	last    *LoadStatus
}

// NewStatusTracker creates a tracker whose uptime starts now
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{started: time.Now()}
}

// Record stores the outcome of a load; err is nil on success
func (s *StatusTracker) Record(status LoadStatus, err error) {
	if err != nil {
		status.Error = err.Error()
		status.err = err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &status
}

// Last returns the most recent load, if any
func (s *StatusTracker) Last() (LoadStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return LoadStatus{}, false
	}
	return *s.last, true
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status   string                `json:"status"`
	Uptime   string                `json:"uptime"`
	Version  contracts.VersionInfo `json:"version"`
	LastLoad *LoadStatus           `json:"last_load,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	tracker *StatusTracker
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(tracker *StatusTracker, logger *slog.Logger) *HealthHandler {
	if tracker == nil {
		tracker = NewStatusTracker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		tracker: tracker,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.tracker.started).Round(time.Second).String(),
		Version: contracts.GetVersionInfo(),
	}
	if last, ok := h.tracker.Last(); ok {
		resp.LastLoad = &last
		if last.Error != "" {
			resp.Status = "degraded"
		}
	}
	render.JSON(w, r, resp)
}

// ReadinessCheck handles GET /readyz. It succeeds once a load has
// completed without error.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	last, ok := h.tracker.Last()
	switch {
	case !ok:
		loaderrors.RenderProblem(w, r, loaderrors.NewProblemDetails(http.StatusServiceUnavailable,
			loaderrors.TypeServiceDown, "Not Ready", "no load has completed yet", r.URL.Path))
	case last.err != nil:
		h.logger.DebugContext(r.Context(), "Not ready", slog.String("error", last.Error))
		loaderrors.RenderProblem(w, r, loaderrors.ProblemFromError(http.StatusServiceUnavailable, last.err, r.URL.Path).
			WithExtension("dataset", last.Dataset))
	default:
		render.JSON(w, r, map[string]string{"status": "ready"})
	}
}

// Version handles GET /version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
