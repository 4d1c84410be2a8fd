package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"custodia/internal/authz"
	"custodia/internal/domain"
	pkgerrors "custodia/pkg/errors"
	"custodia/pkg/logger"
)

// CustomerStore is the customer access the enrollment flow needs.
type CustomerStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error
}

// AuthzHandler manages step-up factor enrollment. The secret is persisted
// only after the customer proves possession with a valid first code.
type AuthzHandler struct {
	verifier  *authz.TOTPVerifier
	customers CustomerStore
	logger    logger.Logger

	// pending holds generated secrets awaiting activation, keyed by customer.
	mu      sync.Mutex
	pending map[uuid.UUID]string
}

func NewAuthzHandler(verifier *authz.TOTPVerifier, customers CustomerStore, log logger.Logger) *AuthzHandler {
	return &AuthzHandler{
		verifier:  verifier,
		customers: customers,
		logger:    log,
		pending:   make(map[uuid.UUID]string),
	}
}

type enrollRequest struct {
	CustomerID uuid.UUID `json:"customer_id" validate:"required"`
}

func (h *AuthzHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == uuid.Nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	customer, err := h.customers.FindByID(r.Context(), req.CustomerID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrCustomerNotFound) {
			h.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	secret, url, err := h.verifier.Enroll(customer.Email)
	if err != nil {
		h.logger.Error("TOTP enrollment failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.mu.Lock()
	h.pending[customer.ID] = secret
	h.mu.Unlock()

	h.respondJSON(w, http.StatusOK, map[string]string{
		"secret":           secret,
		"provisioning_url": url,
	})
}

type activateRequest struct {
	CustomerID uuid.UUID `json:"customer_id" validate:"required"`
	Code       string    `json:"code" validate:"required"`
}

func (h *AuthzHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == uuid.Nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.mu.Lock()
	secret, ok := h.pending[req.CustomerID]
	h.mu.Unlock()
	if !ok {
		h.respondError(w, http.StatusBadRequest, "No enrollment in progress")
		return
	}

	candidate := &domain.Customer{ID: req.CustomerID, TOTPSecret: &secret}
	if err := h.verifier.Verify(r.Context(), candidate, req.Code); err != nil {
		h.respondError(w, http.StatusForbidden, pkgerrors.ErrAdditionalAuthInvalid.Error())
		return
	}

	if err := h.customers.SetTOTPSecret(r.Context(), req.CustomerID, secret); err != nil {
		h.logger.Error("failed to persist TOTP secret", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.mu.Lock()
	delete(h.pending, req.CustomerID)
	h.mu.Unlock()

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "enrolled"})
}

func (h *AuthzHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuthzHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
