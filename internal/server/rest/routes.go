package rest

import (
	"net/http"

	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/middleware"
	"github.com/dmitrijs2005/fitcoach/internal/server/models"
	"github.com/dmitrijs2005/fitcoach/internal/server/observability"
	"github.com/dmitrijs2005/fitcoach/internal/server/ratelimit"
	"github.com/gorilla/mux"
)

// Limiters selects the rate-limit policy per public route. A nil limiter
// leaves the route unlimited.
type Limiters struct {
	Register       ratelimit.Limiter
	Login          ratelimit.Limiter
	ForgotPassword ratelimit.Limiter
	ConfirmEmail   ratelimit.Limiter
}

type RouterOptions struct {
	APIKey   middleware.APIKeyOptions
	Verifier middleware.TokenVerifier
	Limiters Limiters
}

// NewRouter builds the API handler. Every request passes through request
// logging, panic recovery and the API-key gate, in that order, before
// routing.
func NewRouter(h *Handler, opts RouterOptions, l logging.Logger, metrics *observability.Metrics) http.Handler {
	limit := func(lim ratelimit.Limiter, next http.HandlerFunc) http.Handler {
		if lim == nil {
			return next
		}
		return middleware.RateLimit(lim, l, metrics)(next)
	}

	r := mux.NewRouter()
	r.Use(middleware.RouteTemplate)

	a := r.PathPrefix("/auth").Subrouter()
	a.Handle("/register", limit(opts.Limiters.Register, h.Register)).Methods(http.MethodPost)
	a.Handle("/login", limit(opts.Limiters.Login, h.Login)).Methods(http.MethodPost)
	a.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	a.Handle("/confirm-email", limit(opts.Limiters.ConfirmEmail, h.ConfirmEmail)).Methods(http.MethodPost)
	a.Handle("/confirm-email-by-identifier", limit(opts.Limiters.ConfirmEmail, h.ConfirmEmailByIdentifier)).Methods(http.MethodPost)
	a.Handle("/forgot-password", limit(opts.Limiters.ForgotPassword, h.ForgotPassword)).Methods(http.MethodPost)
	a.Handle("/reset-password", limit(opts.Limiters.ForgotPassword, h.ResetPassword)).Methods(http.MethodPost)

	authenticate := middleware.Authenticate(opts.Verifier, h.cookies, l)

	u := r.PathPrefix("/users").Subrouter()
	u.Use(authenticate)
	u.HandleFunc("/me", h.Me).Methods(http.MethodGet)

	ad := r.PathPrefix("/admin").Subrouter()
	ad.Use(authenticate, middleware.RequireRole(string(models.RoleAdmin)))
	ad.HandleFunc("/users", h.ListAccounts).Methods(http.MethodGet)
	ad.HandleFunc("/users/{id}/approve", h.Approve).Methods(http.MethodPost)
	ad.HandleFunc("/users/{id}/reject", h.Reject).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Recurso não encontrado.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Método não permitido.")
	})

	var handler http.Handler = r
	handler = middleware.APIKey(opts.APIKey, l, metrics)(handler)
	handler = middleware.Recover(l)(handler)
	handler = middleware.RequestLogger(l, metrics)(handler)
	return handler
}
