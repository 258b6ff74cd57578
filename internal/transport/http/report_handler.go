package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "panelrecon/internal/errors"
	"panelrecon/internal/exporter"
	"panelrecon/pkg/contracts/domain"
)

// ReportSource supplies the comparison to serve
type ReportSource interface {
	Comparison() (domain.Comparison, bool)
}

// DetectorView is one detector's summary without its anomaly list
type DetectorView struct {
	DetectorID  string               `json:"detector_id"`
	Convention  string               `json:"convention"`
	Total       int                  `json:"total"`
	Rate        float64              `json:"rate_percent"`
	Top         []domain.TickerCount `json:"top_tickers"`
	Diagnostics map[string]int       `json:"diagnostics,omitempty"`
}

// OverlapView summarizes the cross-detector overlap
type OverlapView struct {
	Total    int                  `json:"total"`
	Rate     float64              `json:"rate_percent"`
	ByTicker []domain.TickerCount `json:"by_ticker"`
}

// ReportView is the body of GET /api/v1/report
type ReportView struct {
	PanelRows int            `json:"panel_rows"`
	Detectors []DetectorView `json:"detectors"`
	Overlap   OverlapView    `json:"overlap"`
}

func newReportView(cmp domain.Comparison) ReportView {
	view := func(d domain.DetectorSummary) DetectorView {
		return DetectorView{
			DetectorID:  d.DetectorID,
			Convention:  d.Convention,
			Total:       d.Total,
			Rate:        d.Rate,
			Top:         d.Top,
			Diagnostics: d.Diagnostics,
		}
	}
	return ReportView{
		PanelRows: cmp.PanelRows,
		Detectors: []DetectorView{view(cmp.A), view(cmp.B)},
		Overlap: OverlapView{
			Total:    len(cmp.Overlap),
			Rate:     cmp.OverlapRate,
			ByTicker: cmp.OverlapCounts,
		},
	}
}

// ReportHandler serves the comparison routes
type ReportHandler struct {
	source       ReportSource
	defaultTop   int
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewReportHandler creates a new report handler
func NewReportHandler(source ReportSource, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ReportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger)
	}
	return &ReportHandler{
		source:       source,
		logger:       logger.With(slog.String("handler", "report")),
		errorHandler: errorHandler,
	}
}

// WithDefaultTop limits /counts to n tickers when the request has no
// top parameter. Zero or less returns every count.
func (h *ReportHandler) WithDefaultTop(n int) *ReportHandler {
	h.defaultTop = n
	return h
}

// Routes returns the report routes
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/report", h.GetReport)
	r.Get("/report.txt", h.GetReportText)
	r.Route("/detectors/{detector}", func(r chi.Router) {
		r.Get("/anomalies", h.GetAnomalies)
		r.Get("/counts", h.GetCounts)
	})
	r.Get("/overlap", h.GetOverlap)

	return r
}

func (h *ReportHandler) comparison(w http.ResponseWriter, r *http.Request) (domain.Comparison, bool) {
	cmp, ok := h.source.Comparison()
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.ErrReportNotReady)
		return domain.Comparison{}, false
	}
	return cmp, true
}

func (h *ReportHandler) detector(w http.ResponseWriter, r *http.Request) (domain.DetectorSummary, bool) {
	cmp, ok := h.comparison(w, r)
	if !ok {
		return domain.DetectorSummary{}, false
	}
	id := chi.URLParam(r, "detector")
	d, ok := cmp.Detector(id)
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("detector "+id))
		return domain.DetectorSummary{}, false
	}
	return d, true
}

// GetReport handles GET /api/v1/report
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	cmp, ok := h.comparison(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, newReportView(cmp))
}

// GetReportText handles GET /api/v1/report.txt
func (h *ReportHandler) GetReportText(w http.ResponseWriter, r *http.Request) {
	cmp, ok := h.comparison(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := exporter.RenderSummaryText(w, cmp); err != nil {
		h.logger.ErrorContext(r.Context(), "render summary failed", slog.String("error", err.Error()))
	}
}

// GetAnomalies handles GET /api/v1/detectors/{detector}/anomalies
func (h *ReportHandler) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	d, ok := h.detector(w, r)
	if !ok {
		return
	}

	ticker := tickerParam(r)
	out := make([]domain.CanonicalAnomaly, 0, len(d.Anomalies))
	for _, a := range d.Anomalies {
		if ticker == "" || a.Ticker == ticker {
			out = append(out, a)
		}
	}
	render.JSON(w, r, out)
}

// GetCounts handles GET /api/v1/detectors/{detector}/counts
func (h *ReportHandler) GetCounts(w http.ResponseWriter, r *http.Request) {
	d, ok := h.detector(w, r)
	if !ok {
		return
	}

	counts := d.Counts
	limit := h.defaultTop
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.errorHandler.HandleError(w, r, apierrors.InvalidParameterError("top", raw))
			return
		}
		limit = n
	} else if limit <= 0 {
		limit = len(counts)
	}
	if limit < len(counts) {
		counts = counts[:limit]
	}
	if counts == nil {
		counts = []domain.TickerCount{}
	}
	render.JSON(w, r, counts)
}

// GetOverlap handles GET /api/v1/overlap
func (h *ReportHandler) GetOverlap(w http.ResponseWriter, r *http.Request) {
	cmp, ok := h.comparison(w, r)
	if !ok {
		return
	}

	ticker := tickerParam(r)
	out := make([]domain.OverlapRecord, 0, len(cmp.Overlap))
	for _, o := range cmp.Overlap {
		if ticker == "" || o.Ticker == ticker {
			out = append(out, o)
		}
	}
	render.JSON(w, r, out)
}

func tickerParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("ticker"))
}
