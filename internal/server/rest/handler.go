package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/fitcoach/internal/common"
	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/auth"
	"github.com/dmitrijs2005/fitcoach/internal/server/middleware"
	"github.com/dmitrijs2005/fitcoach/internal/server/models"
	"github.com/dmitrijs2005/fitcoach/internal/server/services"
	"github.com/gorilla/mux"
)

const msgLoggedOut = "Sessão encerrada."

// AuthService is the account workflow used by the public routes.
type AuthService interface {
	Register(ctx context.Context, userName, email, password string) (*models.Account, error)
	Login(ctx context.Context, identifier, password string) (*services.LoginResult, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
	ConfirmEmail(ctx context.Context, accountID, code string) (string, error)
	ConfirmEmailByIdentifier(ctx context.Context, identifier, code string) (string, error)
	Me(ctx context.Context, accountID string) (*models.Account, error)
}

// AdminService is the approval workflow used by the admin routes.
type AdminService interface {
	Approve(ctx context.Context, accountID, approvedBy string) (*models.Account, error)
	Reject(ctx context.Context, accountID, rejectedBy, reason string) (*models.Account, error)
	ListAccounts(ctx context.Context, status models.AccountStatus) ([]*models.Account, error)
}

type Handler struct {
	auth    AuthService
	admin   AdminService
	cookies auth.CookieSettings
	logger  logging.Logger
}

func NewHandler(as AuthService, ad AdminService, cookies auth.CookieSettings, l logging.Logger) *Handler {
	return &Handler{
		auth:    as,
		admin:   ad,
		cookies: cookies,
		logger:  l.With("module", "rest"),
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserName string `json:"userName"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	acc, err := h.auth.Register(r.Context(), req.UserName, req.Email, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{Message: services.MsgRegistered, UserID: acc.ID})
}

// Login returns the token in the body and also sets it as an HttpOnly
// cookie for browser clients on sibling subdomains.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserNameOrEmail string `json:"userNameOrEmail"`
		Password        string `json:"password"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := h.auth.Login(r.Context(), req.UserNameOrEmail, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}

	h.cookies.Set(w, res.Token, res.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.Token,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		User:        toAccountResponse(res.Account),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: msgLoggedOut})
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Code   string `json:"code"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	msg, err := h.auth.ConfirmEmail(r.Context(), req.UserID, req.Code)
	h.message(w, r, msg, err)
}

func (h *Handler) ConfirmEmailByIdentifier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmailOrUsername string `json:"emailOrUsername"`
		Code            string `json:"code"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	msg, err := h.auth.ConfirmEmailByIdentifier(r.Context(), req.EmailOrUsername, req.Code)
	h.message(w, r, msg, err)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	msg, err := h.auth.ForgotPassword(r.Context(), req.Email)
	h.message(w, r, msg, err)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	msg, err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword)
	h.message(w, r, msg, err)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	acc, err := h.auth.Me(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

type decisionRequest struct {
	ApprovedBy string `json:"approvedBy"`
	Reason     string `json:"reason"`
}

// actor is who gets stamped on an approval decision: the name in the body
// when given, otherwise the admin's own session.
func actor(r *http.Request, named string) string {
	if named = strings.TrimSpace(named); named != "" {
		return named
	}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		return claims.UniqueName
	}
	return ""
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	acc, err := h.admin.Approve(r.Context(), mux.Vars(r)["id"], actor(r, req.ApprovedBy))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	acc, err := h.admin.Reject(r.Context(), mux.Vars(r)["id"], actor(r, req.ApprovedBy), req.Reason)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// ListAccounts serves GET /admin/users?status=Pending. The status defaults
// to Pending.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	status := models.StatusPending
	if q := r.URL.Query().Get("status"); q != "" {
		st, ok := models.ParseAccountStatus(q)
		if !ok {
			writeServiceError(r.Context(), w, h.logger,
				&common.Error{Kind: common.ErrorInvalidInput, Field: "status", Msg: "Status inválido."})
			return
		}
		status = st
	}

	list, err := h.admin.ListAccounts(r.Context(), status)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}

	out := make([]accountResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) message(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}
