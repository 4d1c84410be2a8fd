package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"custodia/internal/compliance"
	"custodia/internal/domain"
	"custodia/pkg/logger"
)

// FlaggedLister exposes the monitor-flagged transaction backlog to operators.
type FlaggedLister interface {
	FindFlagged(ctx context.Context, limit int) ([]*domain.Transaction, error)
}

type ComplianceHandler struct {
	service *compliance.Service
	flagged FlaggedLister
	logger  logger.Logger
}

func NewComplianceHandler(service *compliance.Service, flagged FlaggedLister, log logger.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		service: service,
		flagged: flagged,
		logger:  log,
	}
}

// GenerateReport runs an on-demand batch AML sweep over the requested range.
func (h *ComplianceHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid 'from' parameter (RFC 3339 required)")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid 'to' parameter (RFC 3339 required)")
		return
	}
	if !to.After(from) {
		h.respondError(w, http.StatusBadRequest, "'to' must be after 'from'")
		return
	}

	report, err := h.service.GenerateReport(r.Context(), from, to)
	if err != nil {
		h.logger.Error("report generation failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to generate report")
		return
	}

	h.respondJSON(w, http.StatusOK, report)
}

// ListFlagged returns the flagged transaction backlog for operator review.
func (h *ComplianceHandler) ListFlagged(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			h.respondError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	txs, err := h.flagged.FindFlagged(r.Context(), limit)
	if err != nil {
		h.logger.Error("flagged listing failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch flagged transactions")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	return time.Parse(time.RFC3339, r.URL.Query().Get(name))
}

func (h *ComplianceHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *ComplianceHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
