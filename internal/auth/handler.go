package auth

import (
	"context"
	"errors"
	"net/http"

	"instafund/internal/accounts"
	"instafund/internal/challenge"
	"instafund/internal/httputil"

	"github.com/rs/zerolog/log"
)

// ChallengeReader looks up the trader's current challenge for the profile.
type ChallengeReader interface {
	Get(ctx context.Context, traderID string) (*challenge.Account, error)
}

type Handler struct {
	svc        *Service
	challenges ChallengeReader
}

func NewHandler(svc *Service, challenges ChallengeReader) *Handler {
	return &Handler{svc: svc, challenges: challenges}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type challengeSummary struct {
	Phase   challenge.Phase  `json:"phase"`
	Status  challenge.Status `json:"status"`
	Balance string           `json:"balance"`
}

type profile struct {
	User
	Challenge *challengeSummary `json:"challenge"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidProfile):
		status = http.StatusBadRequest
	case errors.Is(err, ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrUserNotFound):
		status = http.StatusNotFound
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("auth request failed")
		msg = "internal error"
	}
	httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: msg})
}

// Register creates the trader and signs them in. The challenge itself starts
// only after KYC and payment.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req Registration
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	id, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.svc.SignToken(id)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Info().Str("trader_id", id).Msg("trader registered")
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id":      id,
		"access_token": token,
		"next_step":    "kyc",
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

// Me returns the trader profile with a summary of their challenge, which is
// null until the first payment is confirmed.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := profile{User: user}
	if h.challenges != nil {
		acc, err := h.challenges.Get(r.Context(), userID)
		switch {
		case err == nil:
			out.Challenge = &challengeSummary{Phase: acc.Phase, Status: acc.Status, Balance: acc.Balance().StringFixed(2)}
		case !errors.Is(err, accounts.ErrNotFound):
			writeError(w, err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
