package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/core/ingest"
	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/payroll"
	"punchclock.service/internal/core/payrun"
)

type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

type TerminalLister interface {
	Terminal(ctx context.Context) ([]model.QueuedPunch, error)
}

type PayrollRuns interface {
	Finalize(ctx context.Context, period payroll.Period) (payrun.Summary, error)
	Preview(ctx context.Context, period payroll.Period) ([]payrun.PreviewLine, error)
}

type PunchHandler struct {
	Service Ingester
	Queue   TerminalLister
}

type PayrollHandler struct {
	Runs PayrollRuns
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// Punch records one card tap.
func (h *PunchHandler) Punch(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.Service.Ingest(r.Context(), req)
	if err != nil {
		status, code := classify(err)
		if status == http.StatusInternalServerError {
			log.Ctx(r.Context()).Error().Err(err).Msg("Punch ingestion failed")
			writeError(w, status, code, "Internal server error")
			return
		}
		log.Ctx(r.Context()).Info().Err(err).Str("code", code).Msg("Punch rejected")
		// Identity failures are collapsed before anything leaves the service.
		writeError(w, status, code, model.Public(err).Error())
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

func classify(err error) (int, string) {
	switch err := model.Public(err); {
	case errors.Is(err, ingest.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, model.ErrNotRecognized):
		return http.StatusNotFound, "not_recognized"
	case errors.Is(err, model.ErrDuplicatePunch):
		return http.StatusConflict, "duplicate_punch"
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrTransient):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// Terminal lists queued punches flagged for manual review.
func (h *PunchHandler) Terminal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Queue.Terminal(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Listing terminal queue entries failed")
		writeError(w, http.StatusInternalServerError, "internal", "Could not read offline queue")
		return
	}
	if entries == nil {
		entries = []model.QueuedPunch{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func periodVar(w http.ResponseWriter, r *http.Request) (payroll.Period, bool) {
	period, err := payroll.ParsePeriod(mux.Vars(r)["period"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Period must be YYYY-MM")
		return payroll.Period{}, false
	}
	return period, true
}

// Finalize queues the payroll calculation for a period.
func (h *PayrollHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	period, ok := periodVar(w, r)
	if !ok {
		return
	}

	summary, err := h.Runs.Finalize(r.Context(), period)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("period", period.String()).Msg("Finalizing payroll period failed")
		writeError(w, http.StatusInternalServerError, "internal", "Could not queue payroll run")
		return
	}
	writeJSON(w, http.StatusAccepted, summary)
}

// Preview computes a period for all active employees without exporting it.
func (h *PayrollHandler) Preview(w http.ResponseWriter, r *http.Request) {
	period, ok := periodVar(w, r)
	if !ok {
		return
	}

	lines, err := h.Runs.Preview(r.Context(), period)
	if err != nil {
		if errors.Is(err, model.ErrTransient) {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "System of record unavailable")
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Str("period", period.String()).Msg("Payroll preview failed")
		writeError(w, http.StatusInternalServerError, "internal", "Could not compute payroll preview")
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

// Health reports liveness. Punch acceptance does not depend on the system
// of record being up, so neither does this.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
