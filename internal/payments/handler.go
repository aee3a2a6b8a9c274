package payments

import (
	"errors"
	"io"
	"net/http"

	"instafund/internal/accounts"
	"instafund/internal/httputil"

	"github.com/rs/zerolog/log"
)

const maxWebhookBody = 65536

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := h.svc.CreateCheckout(r.Context(), userID)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, accounts.ErrKYCRequired):
			status = http.StatusForbidden
		case errors.Is(err, ErrNotConfigured):
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "error reading request body"})
		return
	}
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "Stripe-Signature header required"})
		return
	}
	traderID, err := h.svc.HandleWebhook(r.Context(), payload, signature)
	if err != nil {
		log.Warn().Err(err).Msg("stripe webhook rejected")
		var status int
		switch {
		case errors.Is(err, ErrInvalidEvent), errors.Is(err, ErrMissingTraderID):
			status = http.StatusBadRequest
		case errors.Is(err, ErrNotConfigured):
			status = http.StatusServiceUnavailable
		default:
			status = accounts.StatusFor(err)
		}
		httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "trader_id": traderID})
}

type confirmRequest struct {
	TraderID  string `json:"trader_id"`
	Reference string `json:"reference"`
}

// Confirm is the internal endpoint other gateways call after settlement.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.TraderID == "" || req.Reference == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "trader_id and reference are required"})
		return
	}
	if err := h.svc.Confirm(r.Context(), req.TraderID, req.Reference); err != nil {
		httputil.WriteJSON(w, accounts.StatusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "activated", "trader_id": req.TraderID})
}
