package kyc

import (
	"errors"
	"net/http"

	"instafund/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidDetails), errors.Is(err, ErrNotStarted):
		status = http.StatusBadRequest
	case errors.Is(err, ErrAlreadyVerified):
		status = http.StatusConflict
	}
	httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: err.Error()})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request, userID string) {
	rec, err := h.svc.Status(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request, userID string) {
	var req Details
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	rec, err := h.svc.Start(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request, userID string) {
	rec, err := h.svc.Submit(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}
