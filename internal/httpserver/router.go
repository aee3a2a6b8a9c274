package httpserver

import (
	"net/http"

	"instafund/internal/accounts"
	"instafund/internal/admin"
	"instafund/internal/auth"
	"instafund/internal/kyc"
	"instafund/internal/payments"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	AuthHandler     *auth.Handler
	AccountsHandler *accounts.Handler
	KYCHandler      *kyc.Handler
	PaymentsHandler *payments.Handler
	AdminHandler    *admin.Handler
	AuthService     TokenParser
	HealthHandler   http.Handler
	WSHandler       http.Handler
	InternalToken   string
	JWTSecret       string
	CORSOrigin      string
	RateLimiter     *RateLimiter
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(CORS(d.CORSOrigin))
	r.Use(SecurityHeaders)
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Middleware)
	}

	if d.HealthHandler != nil {
		r.Get("/health", d.HealthHandler.ServeHTTP)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.AuthHandler.Register)
			r.Post("/login", d.AuthHandler.Login)
		})
		if d.WSHandler != nil {
			r.Get("/ws", d.WSHandler.ServeHTTP)
		}
		r.Post("/payments/stripe/webhook", d.PaymentsHandler.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", withUser(d.AuthHandler.Me))

			r.Get("/kyc/status", withUser(d.KYCHandler.Status))
			r.Post("/kyc/start", withUser(d.KYCHandler.Start))
			r.Post("/kyc/submit", withUser(d.KYCHandler.Submit))

			r.Post("/payments/checkout", withUser(d.PaymentsHandler.Checkout))

			r.Get("/account", withUser(d.AccountsHandler.Get))
			r.Get("/dashboard/stats", withUser(d.AccountsHandler.Stats))
			r.Post("/account/trades", withUser(d.AccountsHandler.RecordTrade))
			r.Post("/account/advance", withUser(d.AccountsHandler.Advance))
			r.Post("/account/withdraw", withUser(d.AccountsHandler.Withdraw))
			r.Get("/account/withdrawals", withUser(d.AccountsHandler.Withdrawals))
		})
		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Post("/internal/payments/confirm", d.PaymentsHandler.Confirm)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", d.AdminHandler.Login)
			r.Group(func(r chi.Router) {
				r.Use(admin.AdminAuthMiddleware(d.JWTSecret))
				r.Get("/me", d.AdminHandler.Me)
				r.Post("/password", d.AdminHandler.ChangePassword)
				r.Get("/settings", d.AdminHandler.Settings)
				r.Post("/settings", d.AdminHandler.UpdateSettings)
				r.Post("/rules", d.AdminHandler.UpdateRules)
				r.Get("/users", d.AdminHandler.Users)
				r.Get("/users/{traderID}", d.AdminHandler.UserDetail)
			})
		})
	})
	return r
}
