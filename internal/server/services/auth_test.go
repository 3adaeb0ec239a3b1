package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/common"
	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/auth"
	"github.com/dmitrijs2005/fitcoach/internal/server/email"
	"github.com/dmitrijs2005/fitcoach/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "Senha@123"
)

type authFixture struct {
	svc    *AuthService
	repo   *memRepo
	rm     *fakeRepoManager
	queue  *queue
	issuer *auth.Issuer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	issuer, err := auth.NewIssuer([]byte(testSecret), "fitcoach-api", "fitcoach-app", time.Hour)
	require.NoError(t, err)

	repo := newMemRepo()
	rm := &fakeRepoManager{repo: repo}
	q := &queue{}
	svc := NewAuthService(nil, rm, issuer, q, AuthOptions{
		BcryptCost:    bcrypt.MinCost,
		ResetTokenTTL: time.Hour,
		ResetURL:      "https://app.example.com/reset-password",
	}, logging.NopLogger{}, nil)

	return &authFixture{svc: svc, repo: repo, rm: rm, queue: q, issuer: issuer}
}

// interleave makes the next call to the named read run fn before returning.
func (f *authFixture) interleave(after string, fn func()) {
	f.rm.repo = &interleave{memRepo: f.repo, after: after, fn: fn}
}

// register creates an account and returns its id.
func (f *authFixture) register(t *testing.T, userName, emailAddr string) string {
	t.Helper()
	acc, err := f.svc.Register(context.Background(), userName, emailAddr, testPassword)
	require.NoError(t, err)
	return acc.ID
}

// activate approves and confirms the account directly in the store.
func (f *authFixture) activate(id string) {
	f.repo.mutate(id, func(a *models.Account) {
		a.Status = models.StatusApproved
		a.EmailConfirmed = true
	})
}

func TestRegister_CreatesPendingAccount(t *testing.T) {
	f := newAuthFixture(t)

	acc, err := f.svc.Register(context.Background(), "joao123", "  Joao@Email.com ", testPassword)
	require.NoError(t, err)

	stored := f.repo.stored(t, acc.ID)
	assert.Equal(t, "joao@email.com", stored.Email)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, models.RoleUser, stored.Role)
	assert.False(t, stored.EmailConfirmed)
	assert.Nil(t, stored.EmailVerificationCode)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(testPassword)))
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		email    string
		password string
		want     error
	}{
		{"short username", "jo", "joao@email.com", testPassword, common.ErrInvalidUserName},
		{"username with space", "joao silva", "joao@email.com", testPassword, common.ErrInvalidUserName},
		{"bad email", "joao123", "joao.email.com", testPassword, common.ErrInvalidEmail},
		{"no special", "joao123", "joao@email.com", "Senha1234", common.ErrWeakPassword},
		{"too short", "joao123", "joao@email.com", "Se@1", common.ErrWeakPassword},
		{"too long for bcrypt", "joao123", "joao@email.com", "Aa1@" + strings.Repeat("x", 70), common.ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			_, err := f.svc.Register(context.Background(), tt.userName, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, common.ErrorInvalidInput)
		})
	}
}

func TestRegister_Conflict(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "joao123", "joao@email.com")

	_, err := f.svc.Register(context.Background(), "joao123", "outro@email.com", testPassword)
	assert.ErrorIs(t, err, common.ErrAccountConflict)

	_, err = f.svc.Register(context.Background(), "outro", "JOAO@email.com", testPassword)
	assert.ErrorIs(t, err, common.ErrAccountConflict)
}

func TestRegister_UniqueIndexDecidesRace(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "joao123", "joao@email.com")
	f.repo.skipExists = true

	_, err := f.svc.Register(context.Background(), "joao123", "outro@email.com", testPassword)
	assert.ErrorIs(t, err, common.ErrAccountConflict)
	assert.ErrorIs(t, err, common.ErrorConflict)
}

func TestLogin_NotApproved(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "joao123", "joao@email.com")

	_, err := f.svc.Login(context.Background(), "joao123", testPassword)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "não aprovado")
}

func TestLogin_EmailNotVerified(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	f.repo.mutate(id, func(a *models.Account) { a.Status = models.StatusApproved })

	_, err := f.svc.Login(context.Background(), "joao123", testPassword)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "não verificado")
}

func TestLogin_Gates(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")

	// The password is checked before the approval gates.
	_, err := f.svc.Login(context.Background(), "joao123", "Errada@123")
	assert.ErrorIs(t, err, common.ErrWrongPassword)

	_, err = f.svc.Login(context.Background(), "ninguem", testPassword)
	assert.ErrorIs(t, err, common.ErrBadCredentials)

	_, err = f.svc.Login(context.Background(), "   ", testPassword)
	assert.ErrorIs(t, err, common.ErrBadCredentials)

	f.repo.mutate(id, func(a *models.Account) { a.EmailConfirmed = true })
	_, err = f.svc.Login(context.Background(), "joao123", testPassword)
	assert.ErrorIs(t, err, common.ErrNotApproved)

	f.repo.mutate(id, func(a *models.Account) { a.Status = models.StatusRejected })
	_, err = f.svc.Login(context.Background(), "joao123", testPassword)
	assert.ErrorIs(t, err, common.ErrNotApproved)

	// Approval is reported before a missing confirmation.
	f.repo.mutate(id, func(a *models.Account) { a.Status, a.EmailConfirmed = models.StatusPending, false })
	_, err = f.svc.Login(context.Background(), "joao123", testPassword)
	assert.ErrorIs(t, err, common.ErrNotApproved)
}

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	f.activate(id)

	res, err := f.svc.Login(context.Background(), " joao123 ", testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.True(t, res.ExpiresAt.After(time.Now()))
	assert.Equal(t, id, res.Account.ID)

	claims, err := f.issuer.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Subject)
	assert.Equal(t, "User", claims.Role)
	assert.Equal(t, "joao123", claims.UniqueName)
}

func TestLogin_MixedCaseEmail(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	f.activate(id)

	res, err := f.svc.Login(context.Background(), "JOAO@EMAIL.COM", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "joao@email.com", res.Account.Email)
}

func TestLogin_RepoError(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.getErr = errBoom

	_, err := f.svc.Login(context.Background(), "joao123", testPassword)
	assert.ErrorIs(t, err, errBoom)
	var ce *common.Error
	assert.False(t, errors.As(err, &ce))
}

func TestForgotPassword_UniformMessage(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	f.activate(id)

	existing, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
	require.NoError(t, err)
	missing, err := f.svc.ForgotPassword(context.Background(), "ninguem@email.com")
	require.NoError(t, err)

	assert.Equal(t, []byte(existing), []byte(missing))
	assert.Equal(t, MsgForgotPassword, existing)

	stored := f.repo.stored(t, id)
	require.NotNil(t, stored.PasswordResetTokenHash)
	require.NotNil(t, stored.PasswordResetExpiresAt)
	assert.True(t, stored.PasswordResetExpiresAt.After(time.Now()))

	sent := f.queue.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, email.KindPasswordReset, sent[0].Kind)
	assert.Equal(t, "joao@email.com", sent[0].To)
}

func TestForgotPassword_QueueFullStillSucceeds(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	f.queue.full = true

	msg, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
	require.NoError(t, err)
	assert.Equal(t, MsgForgotPassword, msg)
	assert.NotNil(t, f.repo.stored(t, id).PasswordResetTokenHash)
}

func TestForgotPassword_StoreError(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "joao123", "joao@email.com")
	f.repo.writeErr = errBoom

	_, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
	assert.ErrorIs(t, err, errBoom)
}

// resetToken extracts the raw token from the queued reset email.
func resetToken(t *testing.T, q *queue) string {
	t.Helper()
	sent := q.sent()
	require.NotEmpty(t, sent)
	body := sent[len(sent)-1].Body

	i := strings.Index(body, "https://app.example.com/reset-password?")
	require.GreaterOrEqual(t, i, 0, "reset link missing from email body")
	rest := body[i:]
	end := strings.IndexAny(rest, "\"< ")
	require.Greater(t, end, 0)

	u, err := url.Parse(strings.ReplaceAll(rest[:end], "&amp;", "&"))
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func TestResetPassword_Flow(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	f.activate(id)

	_, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
	require.NoError(t, err)
	token := resetToken(t, f.queue)

	stored := f.repo.stored(t, id)
	assert.Equal(t, common.HashToken(token), *stored.PasswordResetTokenHash)

	_, err = f.svc.ResetPassword(context.Background(), token, "fraca")
	assert.ErrorIs(t, err, common.ErrWeakPassword)
	assert.ErrorIs(t, err, common.ErrorInvalidInput)

	msg, err := f.svc.ResetPassword(context.Background(), token, "NovaSenha#9")
	require.NoError(t, err)
	assert.Equal(t, MsgPasswordReset, msg)

	_, err = f.svc.Login(context.Background(), "joao123", "NovaSenha#9")
	assert.NoError(t, err)
	_, err = f.svc.Login(context.Background(), "joao123", testPassword)
	assert.ErrorIs(t, err, common.ErrWrongPassword)

	// Tokens are single use.
	_, err = f.svc.ResetPassword(context.Background(), token, "OutraSenha#9")
	assert.ErrorIs(t, err, common.ErrResetTokenInvalid)
	assert.Nil(t, f.repo.stored(t, id).PasswordResetTokenHash)
}

func TestResetPassword_TokenConsumedBetweenLookupAndWrite(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	f.activate(id)

	_, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
	require.NoError(t, err)
	token := resetToken(t, f.queue)

	var first error
	f.interleave("GetByResetTokenHash", func() {
		_, first = f.svc.ResetPassword(context.Background(), token, "Primeira#99")
	})

	_, err = f.svc.ResetPassword(context.Background(), token, "Segunda#99")
	require.NoError(t, first)
	assert.ErrorIs(t, err, common.ErrResetTokenInvalid)

	_, err = f.svc.Login(context.Background(), "joao123", "Primeira#99")
	assert.NoError(t, err)
	_, err = f.svc.Login(context.Background(), "joao123", "Segunda#99")
	assert.ErrorIs(t, err, common.ErrWrongPassword)
	assert.Nil(t, f.repo.stored(t, id).PasswordResetTokenHash)
}

func TestResetPassword_TokenReplacedBetweenLookupAndWrite(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	f.activate(id)

	_, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
	require.NoError(t, err)
	oldToken := resetToken(t, f.queue)

	f.interleave("GetByResetTokenHash", func() {
		_, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
		require.NoError(t, err)
	})

	_, err = f.svc.ResetPassword(context.Background(), oldToken, "NovaSenha#9")
	assert.ErrorIs(t, err, common.ErrResetTokenInvalid)

	newToken := resetToken(t, f.queue)
	require.NotEqual(t, oldToken, newToken)
	_, err = f.svc.ResetPassword(context.Background(), newToken, "NovaSenha#9")
	require.NoError(t, err)
	_, err = f.svc.Login(context.Background(), "joao123", "NovaSenha#9")
	assert.NoError(t, err)
}

func TestResetPassword_StoreError(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "joao123", "joao@email.com")

	_, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
	require.NoError(t, err)
	token := resetToken(t, f.queue)
	f.repo.writeErr = errBoom

	_, err = f.svc.ResetPassword(context.Background(), token, "NovaSenha#9")
	assert.ErrorIs(t, err, errBoom)
	var ce *common.Error
	assert.False(t, errors.As(err, &ce))
}

func TestResetPassword_UnknownToken(t *testing.T) {
	f := newAuthFixture(t)

	for _, tok := range []string{"", "deadbeef"} {
		_, err := f.svc.ResetPassword(context.Background(), tok, "NovaSenha#9")
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "inválido") || strings.Contains(err.Error(), "expirado"))
		assert.ErrorIs(t, err, common.ErrorInvalidToken)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")

	_, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
	require.NoError(t, err)
	token := resetToken(t, f.queue)

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = f.svc.ResetPassword(context.Background(), token, "NovaSenha#9")
	assert.ErrorIs(t, err, common.ErrResetTokenInvalid)
	assert.NotNil(t, f.repo.stored(t, id).PasswordResetTokenHash)
}

func withCode(f *authFixture, id, code string) {
	f.repo.mutate(id, func(a *models.Account) {
		a.Status = models.StatusApproved
		a.EmailConfirmed = false
		a.EmailVerificationCode = &code
	})
}

func TestConfirmEmail_WrongCodeKeepsCode(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	withCode(f, id, "123456")

	_, err := f.svc.ConfirmEmail(context.Background(), id, "654321")
	assert.ErrorIs(t, err, common.ErrInvalidCode)

	stored := f.repo.stored(t, id)
	assert.False(t, stored.EmailConfirmed)
	require.NotNil(t, stored.EmailVerificationCode)
	assert.Equal(t, "123456", *stored.EmailVerificationCode)
}

func TestConfirmEmail_Success(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	withCode(f, id, "123456")

	msg, err := f.svc.ConfirmEmail(context.Background(), id, " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, MsgEmailConfirmed, msg)

	stored := f.repo.stored(t, id)
	assert.True(t, stored.EmailConfirmed)
	assert.Nil(t, stored.EmailVerificationCode)

	msg, err = f.svc.ConfirmEmail(context.Background(), id, "000000")
	require.NoError(t, err)
	assert.Equal(t, MsgAlreadyConfirmed, msg)

	_, err = f.svc.Login(context.Background(), "joao123", testPassword)
	assert.NoError(t, err)
}

func TestConfirmEmail_CodeReplacedBeforeWrite(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	withCode(f, id, "123456")

	// A re-approval issues a new code while the old one is being checked.
	f.interleave("GetByID", func() { withCode(f, id, "999999") })

	_, err := f.svc.ConfirmEmail(context.Background(), id, "123456")
	assert.ErrorIs(t, err, common.ErrInvalidCode)

	stored := f.repo.stored(t, id)
	assert.False(t, stored.EmailConfirmed)
	require.NotNil(t, stored.EmailVerificationCode)
	assert.Equal(t, "999999", *stored.EmailVerificationCode)
}

func TestConfirmEmail_ConcurrentConfirmations(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	withCode(f, id, "123456")

	var first string
	f.interleave("GetByID", func() {
		var err error
		first, err = f.svc.ConfirmEmail(context.Background(), id, "123456")
		require.NoError(t, err)
	})

	msg, err := f.svc.ConfirmEmail(context.Background(), id, "123456")
	require.NoError(t, err)
	assert.Equal(t, MsgEmailConfirmed, first)
	assert.Equal(t, MsgAlreadyConfirmed, msg)
	assert.True(t, f.repo.stored(t, id).EmailConfirmed)
}

func TestForgotPassword_KeepsConcurrentConfirmation(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	withCode(f, id, "123456")

	f.interleave("GetByEmail", func() {
		_, err := f.svc.ConfirmEmail(context.Background(), id, "123456")
		require.NoError(t, err)
	})

	_, err := f.svc.ForgotPassword(context.Background(), "joao@email.com")
	require.NoError(t, err)

	stored := f.repo.stored(t, id)
	assert.True(t, stored.EmailConfirmed)
	assert.Nil(t, stored.EmailVerificationCode)
	assert.NotNil(t, stored.PasswordResetTokenHash)
}

func TestConfirmEmail_NoPendingCode(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")

	_, err := f.svc.ConfirmEmail(context.Background(), id, "123456")
	assert.ErrorIs(t, err, common.ErrNoPendingCode)
}

func TestConfirmEmail_UnknownAccount(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.ConfirmEmail(context.Background(), "not-a-uuid", "123456")
	assert.ErrorIs(t, err, common.ErrAccountNotFound)

	_, err = f.svc.ConfirmEmail(context.Background(), "4b6c8a52-3d0e-4f59-9f2a-0a1b2c3d4e5f", "123456")
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.svc.ConfirmEmailByIdentifier(context.Background(), "ninguem", "123456")
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestConfirmEmailByIdentifier(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")
	withCode(f, id, "123456")

	msg, err := f.svc.ConfirmEmailByIdentifier(context.Background(), "JOAO@email.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, MsgEmailConfirmed, msg)
	assert.True(t, f.repo.stored(t, id).EmailConfirmed)
}

func TestMe(t *testing.T) {
	f := newAuthFixture(t)
	id := f.register(t, "joao123", "joao@email.com")

	acc, err := f.svc.Me(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "joao123", acc.UserName)

	_, err = f.svc.Me(context.Background(), "bogus")
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestResetLink(t *testing.T) {
	assert.Equal(t, "https://x.test/r?token=abc", resetLink("https://x.test/r", "abc"))
	assert.Equal(t, "https://x.test/r?lang=pt&token=abc", resetLink("https://x.test/r?lang=pt", "abc"))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "conflict", outcome(common.ErrAccountConflict))
	assert.Equal(t, "invalid_input", outcome(common.ErrWeakPassword))
	assert.Equal(t, "error", outcome(errBoom))
}
