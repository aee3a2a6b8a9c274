package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"instafund/internal/accounts"
	"instafund/internal/challenge"
	"instafund/internal/events"
	"instafund/internal/httputil"
	"instafund/internal/settings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminUsername  = "admin"
	tokenTTL       = 24 * time.Hour
	minPasswordLen = 8
)

// Handler serves the admin panel.
type Handler struct {
	mu           sync.RWMutex
	passwordHash []byte
	jwtSecret    []byte
	settings     *settings.Store
	accounts     *accounts.Service
	bus          *events.Bus
}

// NewHandler creates a new admin handler
func NewHandler(passwordHash, jwtSecret string, store *settings.Store, accountSvc *accounts.Service, bus *events.Bus) *Handler {
	return &Handler{
		passwordHash: []byte(passwordHash),
		jwtSecret:    []byte(jwtSecret),
		settings:     store,
		accounts:     accountSvc,
		bus:          bus,
	}
}

// Login handles admin login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request"})
		return
	}
	if !h.checkPassword(req.Password) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("admin login failed")
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid credentials"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      adminUsername,
		"username": adminUsername,
		"role":     "admin",
		"exp":      time.Now().Add(tokenTTL).Unix(),
	})
	tokenStr, err := token.SignedString(h.jwtSecret)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "token generation failed"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"token":    tokenStr,
		"username": adminUsername,
	})
}

func (h *Handler) checkPassword(password string) bool {
	h.mu.RLock()
	hash := h.passwordHash
	h.mu.RUnlock()
	return len(hash) > 0 && bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// ChangePassword replaces the admin password for this process. The
// configured ADMIN_PASSWORD_HASH applies again after a restart.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request"})
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "new password must be at least 8 characters"})
		return
	}
	if !h.checkPassword(req.CurrentPassword) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("admin password change rejected")
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid credentials"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "hash failed"})
		return
	}
	h.mu.Lock()
	h.passwordHash = hash
	h.mu.Unlock()
	log.Info().Msg("admin password changed")
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Me returns admin info
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	username, _ := r.Context().Value(adminUsernameKey).(string)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"username": username,
		"role":     "admin",
	})
}

func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.settings.Current())
}

func (h *Handler) UpdateRules(w http.ResponseWriter, r *http.Request) {
	var patch settings.RulesPatch
	if err := httputil.ReadJSON(r, &patch); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	snap, err := h.settings.UpdateRules(patch)
	h.respondUpdate(w, snap, err, "rules")
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.AdminPatch
	if err := httputil.ReadJSON(r, &patch); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	snap, err := h.settings.UpdateAdmin(patch)
	h.respondUpdate(w, snap, err, "settings")
}

func (h *Handler) respondUpdate(w http.ResponseWriter, snap settings.Snapshot, err error, what string) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, challenge.ErrInvalidRules) {
			status = http.StatusBadRequest
		}
		httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	log.Info().Str("section", what).Msg("admin updated settings")
	if h.bus != nil {
		h.bus.Publish(events.Event{Type: events.TypeSettingsUpdated, Data: snap})
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

type userSummary struct {
	TraderID      string           `json:"trader_id"`
	Phase         challenge.Phase  `json:"phase"`
	Status        challenge.Status `json:"status"`
	Balance       string           `json:"account_balance"`
	CumulativePnL string           `json:"cumulative_pnl"`
	Trades        int              `json:"trades"`
	BreachReason  string           `json:"breach_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.List(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	out := make([]userSummary, 0, len(list))
	for _, acc := range list {
		out = append(out, userSummary{
			TraderID:      acc.TraderID,
			Phase:         acc.Phase,
			Status:        acc.Status,
			Balance:       acc.Balance().StringFixed(2),
			CumulativePnL: acc.CumulativePnL.StringFixed(2),
			Trades:        len(acc.Trades),
			BreachReason:  acc.BreachReason,
			CreatedAt:     acc.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) UserDetail(w http.ResponseWriter, r *http.Request) {
	traderID := chi.URLParam(r, "traderID")
	acc, err := h.accounts.Get(r.Context(), traderID)
	if err != nil {
		httputil.WriteJSON(w, accounts.StatusFor(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	ws, err := h.accounts.Withdrawals(r.Context(), traderID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if ws == nil {
		ws = []accounts.WithdrawalRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"account":     acc,
		"withdrawals": ws,
	})
}

// AdminAuthMiddleware validates admin JWT token
func AdminAuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "missing authorization"})
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid authorization format"})
				return
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("invalid signing method")
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "invalid token"})
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid claims"})
				return
			}
			// trader tokens share the secret but carry no role
			if role, _ := claims["role"].(string); role != "admin" {
				httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "admin access required"})
				return
			}
			username, _ := claims["username"].(string)
			ctx := context.WithValue(r.Context(), adminUsernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type contextKey string

const adminUsernameKey contextKey = "admin_username"
