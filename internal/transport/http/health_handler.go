package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"panelrecon/internal/operations"
)

// RunSource exposes the most recent pipeline run
type RunSource interface {
	LastRun() (*operations.RunState, bool)
}

// RunView describes a pipeline run
type RunView struct {
	ID       string               `json:"id"`
	Status   operations.RunStatus `json:"status"`
	Started  time.Time            `json:"started_at"`
	Duration string               `json:"duration"`
	Error    string               `json:"error,omitempty"`
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	LastRun *RunView `json:"last_run,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	runs    RunSource
	version string
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler. runs may be nil.
func NewHealthHandler(runs RunSource, version string, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		runs:    runs,
		version: version,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: h.version}

	if h.runs != nil {
		if run, ok := h.runs.LastRun(); ok {
			view := &RunView{
				ID:       run.ID,
				Status:   run.GetStatus(),
				Started:  run.StartTime,
				Duration: run.Duration().String(),
			}
			if err := run.Err(); err != nil {
				view.Error = err.Error()
			}
			resp.LastRun = view
		}
	}

	render.JSON(w, r, resp)
}
