package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/monitor"
)

// PassRunner is the slice of the scheduler the API drives.
type PassRunner interface {
	RunPass(ctx context.Context) (monitor.PassReport, error)
	LastReport() (monitor.PassReport, bool)
	State() monitor.State
}

// PassHandler triggers and reports monitoring passes.
type PassHandler struct {
	passes PassRunner
	logger *zap.Logger
}

// NewPassHandler wires the scheduler and logger.
func NewPassHandler(passes PassRunner, logger *zap.Logger) *PassHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PassHandler{passes: passes, logger: logger}
}

// Run handles POST /v1/passes. It runs one pass synchronously and returns
// its report, or 409 when a pass is already running.
func (h *PassHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.passes == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	report, err := h.passes.RunPass(r.Context())
	switch {
	case errors.Is(err, monitor.ErrPassInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("manual pass failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "pass aborted")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": toReportDTO(report)})
}

// Last handles GET /v1/passes/last. It always returns the scheduler state
// and includes the most recent report once one pass has finished.
func (h *PassHandler) Last(w http.ResponseWriter, _ *http.Request) {
	if h.passes == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	resp := map[string]any{"state": h.passes.State().String()}
	if report, ok := h.passes.LastReport(); ok {
		resp["report"] = toReportDTO(report)
	}
	writeJSON(w, http.StatusOK, resp)
}

type reportDTO struct {
	StartedAt        time.Time      `json:"started_at"`
	DurationMs       int64          `json:"duration_ms"`
	Rules            int            `json:"rules"`
	Updated          int            `json:"updated"`
	Skipped          map[string]int `json:"skipped"`
	SkippedTotal     int            `json:"skipped_total"`
	StoreFailures    int            `json:"store_failures"`
	Notified         int            `json:"notified"`
	DeliveryFailures int            `json:"delivery_failures"`
}

func toReportDTO(r monitor.PassReport) reportDTO {
	skipped := r.Skipped
	if skipped == nil {
		skipped = map[string]int{}
	}
	return reportDTO{
		StartedAt:        r.StartedAt,
		DurationMs:       r.Duration.Milliseconds(),
		Rules:            r.Rules,
		Updated:          r.Updated,
		Skipped:          skipped,
		SkippedTotal:     r.SkippedTotal(),
		StoreFailures:    r.StoreFailures,
		Notified:         r.Notified,
		DeliveryFailures: r.DeliveryFailures,
	}
}
