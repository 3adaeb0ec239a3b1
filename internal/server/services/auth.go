// Package services implements the account workflows: registration, login,
// email confirmation, password reset and admin approval.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/common"
	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/email"
	"github.com/dmitrijs2005/fitcoach/internal/server/models"
	"github.com/dmitrijs2005/fitcoach/internal/server/observability"
	"github.com/dmitrijs2005/fitcoach/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fitcoach/internal/server/validation"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Success messages returned to clients.
const (
	MsgRegistered       = "Cadastro realizado. Aguarde a aprovação do administrador."
	MsgForgotPassword   = "Se o e-mail estiver cadastrado, você receberá um link para redefinir a senha."
	MsgPasswordReset    = "Senha redefinida com sucesso."
	MsgEmailConfirmed   = "E-mail confirmado com sucesso."
	MsgAlreadyConfirmed = "E-mail já confirmado."
)

// resetTokenBytes is the entropy of a password reset token.
const resetTokenBytes = 32

// TokenIssuer signs session tokens. *auth.Issuer implements it.
type TokenIssuer interface {
	Issue(account *models.Account) (string, time.Time, error)
}

// EmailQueue accepts messages for background delivery. *email.Outbox
// implements it.
type EmailQueue interface {
	Enqueue(m email.Message) bool
}

// AuthOptions carries the tunables of AuthService.
type AuthOptions struct {
	BcryptCost    int
	ResetTokenTTL time.Duration
	ResetURL      string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Account   *models.Account
	Token     string
	ExpiresAt time.Time
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	issuer      TokenIssuer
	outbox      EmailQueue
	opts        AuthOptions
	logger      logging.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, issuer TokenIssuer, outbox EmailQueue,
	opts AuthOptions, l logging.Logger, metrics *observability.Metrics) *AuthService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		db:          db,
		repomanager: m,
		issuer:      issuer,
		outbox:      outbox,
		opts:        opts,
		logger:      l.With("module", "auth_service"),
		metrics:     metrics,
		now:         time.Now,
	}
}

// Register validates the credentials and stores a Pending, unconfirmed
// account. It does not log the user in.
func (s *AuthService) Register(ctx context.Context, userName, emailAddr, password string) (acc *models.Account, err error) {
	defer func() { s.record("register", err) }()

	if !validation.IsValidUserName(userName) {
		return nil, common.ErrInvalidUserName
	}
	emailAddr = validation.NormalizeEmail(emailAddr)
	if !validation.IsValidEmail(emailAddr) {
		return nil, common.ErrInvalidEmail
	}
	if !validation.IsStrongPassword(password) {
		return nil, common.ErrWeakPassword
	}

	repo := s.repomanager.Accounts(s.db)

	exists, err := repo.ExistsByUserNameOrEmail(ctx, userName, emailAddr)
	if err != nil {
		return nil, fmt.Errorf("error checking account uniqueness: %w", err)
	}
	if exists {
		return nil, common.ErrAccountConflict
	}

	hash, err := hashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	acc = &models.Account{
		ID:           uuid.NewString(),
		UserName:     userName,
		Email:        emailAddr,
		PasswordHash: hash,
		Status:       models.StatusPending,
		Role:         models.RoleUser,
	}

	// The unique indexes decide races between concurrent registrations.
	acc, err = repo.Create(ctx, acc)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrAccountConflict
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}

	s.logger.Info(ctx, "account registered", "account_id", acc.ID, "username", acc.UserName)
	return acc, nil
}

// Login checks, in order: the account exists, the password matches, the
// account is approved and the email is confirmed. Each failure has its own
// error because clients branch on the message.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (res *LoginResult, err error) {
	defer func() { s.record("login", err) }()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, common.ErrBadCredentials
	}

	acc, err := s.repomanager.Accounts(s.db).GetByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrBadCredentials
		}
		return nil, fmt.Errorf("error loading account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, common.ErrWrongPassword
	}
	if !acc.CanLogIn() {
		if acc.Status != models.StatusApproved {
			return nil, common.ErrNotApproved
		}
		return nil, common.ErrEmailNotVerified
	}

	token, expiresAt, err := s.issuer.Issue(acc)
	if err != nil {
		return nil, fmt.Errorf("error issuing token: %w", err)
	}

	s.logger.Info(ctx, "login succeeded", "account_id", acc.ID)
	return &LoginResult{Account: acc, Token: token, ExpiresAt: expiresAt}, nil
}

// ForgotPassword stores a fresh reset token for the account owning
// emailAddr and queues the reset email. The returned message is the same
// whether or not the account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) (msg string, err error) {
	defer func() { s.record("forgot_password", err) }()

	repo := s.repomanager.Accounts(s.db)

	acc, err := repo.GetByEmail(ctx, validation.NormalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return MsgForgotPassword, nil
		}
		return "", fmt.Errorf("error loading account: %w", err)
	}

	token, err := common.MakeRandHexString(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("error generating reset token: %w", err)
	}
	expiresAt := s.now().Add(s.opts.ResetTokenTTL)

	if err := repo.SetPasswordReset(ctx, acc.ID, common.HashToken(token), expiresAt); err != nil {
		return "", fmt.Errorf("error storing reset token: %w", err)
	}

	m, err := email.PasswordResetMessage(acc.Email, acc.UserName, resetLink(s.opts.ResetURL, token), s.opts.ResetTokenTTL)
	if err != nil {
		s.logger.Error(ctx, "error rendering reset email", "account_id", acc.ID, "error", err)
		return MsgForgotPassword, nil
	}
	if !s.outbox.Enqueue(m) {
		s.logger.Warn(ctx, "reset email not queued", "account_id", acc.ID)
	}

	s.logger.Info(ctx, "password reset requested", "account_id", acc.ID)
	return MsgForgotPassword, nil
}

// ResetPassword replaces the password of the account holding token and
// clears the token so it cannot be used twice. Unknown, expired and already
// used tokens produce the same error.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (msg string, err error) {
	defer func() { s.record("reset_password", err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return "", common.ErrResetTokenInvalid
	}

	repo := s.repomanager.Accounts(s.db)
	tokenHash := common.HashToken(token)

	if _, err := repo.GetByResetTokenHash(ctx, tokenHash, s.now()); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrResetTokenInvalid
		}
		return "", fmt.Errorf("error loading account: %w", err)
	}

	if !validation.IsStrongPassword(newPassword) {
		return "", common.ErrWeakPassword
	}
	hash, err := hashPassword(newPassword, s.opts.BcryptCost)
	if err != nil {
		return "", err
	}

	// The token may have been used or replaced since the lookup; only the
	// statement that clears it wins.
	id, err := repo.ResetPassword(ctx, tokenHash, s.now(), hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrResetTokenInvalid
		}
		return "", fmt.Errorf("error updating password: %w", err)
	}

	s.logger.Info(ctx, "password reset", "account_id", id)
	return MsgPasswordReset, nil
}

// ConfirmEmail checks code against the account with id accountID.
func (s *AuthService) ConfirmEmail(ctx context.Context, accountID, code string) (msg string, err error) {
	defer func() { s.record("confirm_email", err) }()

	acc, err := loadAccount(ctx, s.repomanager.Accounts(s.db), accountID)
	if err != nil {
		return "", err
	}
	return s.confirm(ctx, acc, code)
}

// ConfirmEmailByIdentifier is ConfirmEmail keyed by user name or email.
func (s *AuthService) ConfirmEmailByIdentifier(ctx context.Context, identifier, code string) (msg string, err error) {
	defer func() { s.record("confirm_email", err) }()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", common.ErrAccountNotFound
	}

	acc, err := s.repomanager.Accounts(s.db).GetByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrAccountNotFound
		}
		return "", fmt.Errorf("error loading account: %w", err)
	}
	return s.confirm(ctx, acc, code)
}

// confirm is idempotent for confirmed accounts. A wrong code leaves the
// stored code in place so the user can retry. The write only lands while
// the checked code is still pending.
func (s *AuthService) confirm(ctx context.Context, acc *models.Account, code string) (string, error) {
	if acc.EmailConfirmed {
		return MsgAlreadyConfirmed, nil
	}
	if acc.EmailVerificationCode == nil {
		return "", common.ErrNoPendingCode
	}

	code = strings.TrimSpace(code)
	if subtle.ConstantTimeCompare([]byte(code), []byte(*acc.EmailVerificationCode)) != 1 {
		s.logger.Info(ctx, "wrong verification code", "account_id", acc.ID)
		return "", common.ErrInvalidCode
	}

	repo := s.repomanager.Accounts(s.db)
	if err := repo.ConfirmEmail(ctx, acc.ID, *acc.EmailVerificationCode); err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return "", fmt.Errorf("error confirming email: %w", err)
		}
		current, err := loadAccount(ctx, repo, acc.ID)
		if err != nil {
			return "", err
		}
		if current.EmailConfirmed {
			return MsgAlreadyConfirmed, nil
		}
		return "", common.ErrInvalidCode
	}

	acc.EmailConfirmed = true
	acc.EmailVerificationCode = nil

	s.logger.Info(ctx, "email confirmed", "account_id", acc.ID)
	return MsgEmailConfirmed, nil
}

// Me returns the account behind a session.
func (s *AuthService) Me(ctx context.Context, accountID string) (*models.Account, error) {
	return loadAccount(ctx, s.repomanager.Accounts(s.db), accountID)
}

func (s *AuthService) record(operation string, err error) {
	s.metrics.AuthEvent(operation, outcome(err))
}

// outcome is the metrics label for err.
func outcome(err error) string {
	var ce *common.Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ce):
		return strings.ReplaceAll(ce.Kind.Error(), " ", "_")
	default:
		return "error"
	}
}

func hashPassword(password string, cost int) (string, error) {
	if len(password) > 72 {
		return "", common.ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(hash), nil
}

func resetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
