package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/domain"
	"github.com/vertextoedge/sharelink/internal/service/maintenance"
)

// AdminHandler serves maintenance triggers and operator reports
type AdminHandler struct {
	maintenance *maintenance.Service
	logger      *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(m *maintenance.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		maintenance: m,
		logger:      logger,
	}
}

type sweepResponse struct {
	Job      string `json:"job"`
	Affected int    `json:"affected"`
}

// HandleMaintenance runs one maintenance job on demand:
// POST /admin/maintenance/{job}
func (h *AdminHandler) HandleMaintenance(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")

	var sweep func(context.Context) (int, error)
	switch job {
	case "sweep-expired":
		sweep = h.maintenance.SweepExpired
	case "sweep-exhausted":
		sweep = h.maintenance.SweepExhausted
	case "cleanup":
		h.handleCleanup(w, r)
		return
	default:
		writeErrorMessage(w, http.StatusNotFound, "unknown maintenance job")
		return
	}

	n, err := sweep(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	h.logger.Info("maintenance job triggered", zap.String("job", job), zap.Int("affected", n))
	writeJSON(w, http.StatusOK, sweepResponse{Job: job, Affected: n})
}

func (h *AdminHandler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	retentionDays := 0
	if v := r.URL.Query().Get("retention_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 {
			writeError(w, domain.NewValidationError("retention_days", "must be a positive integer"), h.logger)
			return
		}
		retentionDays = days
	}

	report, err := h.maintenance.CleanupLogs(r.Context(), retentionDays)
	if err != nil {
		// partial cleanups still report what they removed
		h.logger.Error("cleanup finished with errors", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleSuspicious lists IPs with excessive activity:
// GET /admin/suspicious?window=1h&threshold=100
func (h *AdminHandler) HandleSuspicious(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, domain.NewValidationError("window", "must be a positive duration such as 1h"), h.logger)
			return
		}
		window = d
	}

	var threshold int64
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			writeError(w, domain.NewValidationError("threshold", "must be a positive integer"), h.logger)
			return
		}
		threshold = n
	}

	report, err := h.maintenance.DetectSuspicious(r.Context(), window, threshold)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleUsage returns the global usage and health report: GET /admin/usage
func (h *AdminHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	report, err := h.maintenance.UsageAnalytics(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
