package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"custodia/internal/payment"
	pkgerrors "custodia/pkg/errors"
	"custodia/pkg/logger"
	"custodia/pkg/validator"
)

type PaymentHandler struct {
	service   *payment.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewPaymentHandler(service *payment.Service, v *validator.Validator, log logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		validator: v,
		logger:    log,
	}
}

// Authorize runs the pre-signing gate sequence for a candidate transfer.
func (h *PaymentHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req payment.AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Authorize(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrTransactionDeclined):
			h.respondError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, pkgerrors.ErrAdditionalAuthInvalid):
			h.respondError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, pkgerrors.ErrCustomerNotFound):
			h.respondError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("authorization failed", map[string]interface{}{"error": err.Error()})
			h.respondError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

type confirmRequest struct {
	Signature string `json:"signature" validate:"required"`
}

// Confirm records the on-chain signature for an authorized transfer.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Confirm(r.Context(), id, req.Signature); err != nil {
		if errors.Is(err, pkgerrors.ErrTransactionNotFound) {
			h.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("confirm failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

type failRequest struct {
	Reason string `json:"reason"`
}

// Fail marks an authorized transfer that never landed on chain.
func (h *PaymentHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	var req failRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.Fail(r.Context(), id, req.Reason); err != nil {
		if errors.Is(err, pkgerrors.ErrTransactionNotFound) {
			h.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("fail mark failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "failed"})
}

func (h *PaymentHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *PaymentHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
