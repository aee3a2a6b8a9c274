package accounts

import (
	"errors"
	"net/http"

	"instafund/internal/challenge"
	"instafund/internal/httputil"

	"github.com/rs/zerolog/log"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, challenge.ErrAccountBreached),
		errors.Is(err, ErrAlreadyActive),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrPaymentApplied):
		return http.StatusConflict
	case errors.Is(err, ErrKYCRequired):
		return http.StatusForbidden
	case errors.Is(err, challenge.ErrInvalidTradeInput),
		errors.Is(err, challenge.ErrProfitTargetNotMet),
		errors.Is(err, challenge.ErrMinTradesNotMet),
		errors.Is(err, challenge.ErrAlreadyAtFinalPhase),
		errors.Is(err, challenge.ErrNotEligible),
		errors.Is(err, challenge.ErrBelowMinimumWithdrawal),
		errors.Is(err, ErrInvalidPayout),
		errors.Is(err, ErrMissingPaymentRef),
		errors.Is(err, errMissingTraderID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("account request failed")
		msg = "internal error"
	}
	httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: msg})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	acc, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request, userID string) {
	p, err := h.svc.Progress(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) RecordTrade(w http.ResponseWriter, r *http.Request, userID string) {
	var req challenge.TradeInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	res, err := h.svc.RecordTrade(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request, userID string) {
	res, err := h.svc.Advance(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, userID string) {
	var req PayoutDetails
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	rec, err := h.svc.RequestWithdrawal(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) Withdrawals(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.svc.Withdrawals(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []WithdrawalRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
