package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fitcoach/internal/common"
	"github.com/dmitrijs2005/fitcoach/internal/dbx"
	"github.com/dmitrijs2005/fitcoach/internal/server/email"
	"github.com/dmitrijs2005/fitcoach/internal/server/models"
	"github.com/dmitrijs2005/fitcoach/internal/server/repositories/accounts"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// memRepo is an in-memory accounts.Repository with the same unique
// constraints as the accounts table.
type memRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Account

	// skipExists makes ExistsByUserNameOrEmail always report false, which
	// simulates losing a registration race.
	skipExists bool
	writeErr   error
	getErr     error
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*models.Account{}}
}

func clone(a *models.Account) *models.Account {
	c := *a
	return &c
}

func (r *memRepo) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.byID {
		if x.UserName == a.UserName || x.Email == a.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	c := clone(a)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.byID[c.ID] = c
	return clone(c), nil
}

func (r *memRepo) ExistsByUserNameOrEmail(_ context.Context, userName, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skipExists {
		return false, nil
	}
	for _, x := range r.byID {
		if x.UserName == userName || x.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	a, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(a), nil
}

func (r *memRepo) GetByLogin(_ context.Context, identifier string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	lower := strings.ToLower(identifier)
	var byEmail *models.Account
	for _, x := range r.byID {
		if x.UserName == identifier {
			return clone(x), nil
		}
		if x.Email == lower {
			byEmail = x
		}
	}
	if byEmail == nil {
		return nil, common.ErrorNotFound
	}
	return clone(byEmail), nil
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, x := range r.byID {
		if x.Email == email {
			return clone(x), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memRepo) GetByResetTokenHash(_ context.Context, hash string, now time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.byID {
		if x.PasswordResetTokenHash != nil && *x.PasswordResetTokenHash == hash &&
			x.PasswordResetExpiresAt != nil && x.PasswordResetExpiresAt.After(now) {
			return clone(x), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memRepo) ListByStatus(_ context.Context, status models.AccountStatus) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Account
	for _, x := range r.byID {
		if x.Status == status {
			out = append(out, clone(x))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserName < out[j].UserName })
	return out, nil
}

// write applies fn to the stored account when cond holds, mirroring a
// conditional single-row UPDATE.
func (r *memRepo) write(id string, cond func(a *models.Account) bool, fn func(a *models.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	a, ok := r.byID[id]
	if !ok || (cond != nil && !cond(a)) {
		return common.ErrorNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) Approve(_ context.Context, id string, by *string, at time.Time, code string) error {
	return r.write(id,
		func(a *models.Account) bool { return a.Status != models.StatusApproved },
		func(a *models.Account) {
			a.Status = models.StatusApproved
			a.ApprovedAt, a.ApprovedBy = &at, by
			a.RejectionReason = nil
			a.EmailConfirmed = false
			a.EmailVerificationCode = &code
		})
}

func (r *memRepo) Reject(_ context.Context, id string, by *string, at time.Time, reason *string) error {
	return r.write(id,
		func(a *models.Account) bool { return a.Status != models.StatusRejected },
		func(a *models.Account) {
			a.Status = models.StatusRejected
			a.ApprovedAt, a.ApprovedBy = &at, by
			a.RejectionReason = reason
			a.EmailVerificationCode = nil
		})
}

func (r *memRepo) ConfirmEmail(_ context.Context, id, code string) error {
	return r.write(id,
		func(a *models.Account) bool {
			return !a.EmailConfirmed && a.EmailVerificationCode != nil && *a.EmailVerificationCode == code
		},
		func(a *models.Account) {
			a.EmailConfirmed = true
			a.EmailVerificationCode = nil
		})
}

func (r *memRepo) SetPasswordReset(_ context.Context, id, hash string, expiresAt time.Time) error {
	return r.write(id, nil, func(a *models.Account) {
		a.PasswordResetTokenHash, a.PasswordResetExpiresAt = &hash, &expiresAt
	})
}

func (r *memRepo) ResetPassword(_ context.Context, hash string, now time.Time, passwordHash string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return "", r.writeErr
	}
	for id, x := range r.byID {
		if x.PasswordResetTokenHash != nil && *x.PasswordResetTokenHash == hash &&
			x.PasswordResetExpiresAt != nil && x.PasswordResetExpiresAt.After(now) {
			x.PasswordHash = passwordHash
			x.PasswordResetTokenHash, x.PasswordResetExpiresAt = nil, nil
			x.UpdatedAt = time.Now()
			return id, nil
		}
	}
	return "", common.ErrorNotFound
}

func (r *memRepo) SetPassword(_ context.Context, id, passwordHash string) error {
	return r.write(id, nil, func(a *models.Account) {
		a.PasswordHash = passwordHash
		a.PasswordResetTokenHash, a.PasswordResetExpiresAt = nil, nil
	})
}

func (r *memRepo) SetRole(_ context.Context, userName string, role models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.byID {
		if x.UserName == userName {
			x.Role = role
			return nil
		}
	}
	return common.ErrorNotFound
}

func (r *memRepo) PurgeExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, x := range r.byID {
		if x.PasswordResetExpiresAt != nil && !x.PasswordResetExpiresAt.After(now) {
			x.PasswordResetTokenHash, x.PasswordResetExpiresAt = nil, nil
			n++
		}
	}
	return n, nil
}

// stored returns the persisted copy of the account with the given id.
func (r *memRepo) stored(t *testing.T, id string) *models.Account {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		t.Fatalf("account %s not stored", id)
	}
	return clone(a)
}

// mutate edits the persisted account in place, the way an operator would
// with SQL.
func (r *memRepo) mutate(id string, fn func(a *models.Account)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.byID[id])
}

// interleave wraps memRepo and runs a callback once, right after the named
// read returns. Tests use it to land a competing operation between a
// workflow's read and its write.
type interleave struct {
	*memRepo
	after string
	fn    func()
}

func (r *interleave) fire(method string) {
	if r.fn != nil && r.after == method {
		fn := r.fn
		r.fn = nil
		fn()
	}
}

func (r *interleave) GetByID(ctx context.Context, id string) (*models.Account, error) {
	a, err := r.memRepo.GetByID(ctx, id)
	r.fire("GetByID")
	return a, err
}

func (r *interleave) GetByLogin(ctx context.Context, identifier string) (*models.Account, error) {
	a, err := r.memRepo.GetByLogin(ctx, identifier)
	r.fire("GetByLogin")
	return a, err
}

func (r *interleave) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := r.memRepo.GetByEmail(ctx, email)
	r.fire("GetByEmail")
	return a, err
}

func (r *interleave) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*models.Account, error) {
	a, err := r.memRepo.GetByResetTokenHash(ctx, hash, now)
	r.fire("GetByResetTokenHash")
	return a, err
}

type fakeRepoManager struct {
	repo accounts.Repository
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository    { return f.repo }

// queue records enqueued emails.
type queue struct {
	mu       sync.Mutex
	messages []email.Message
	full     bool
}

func (q *queue) Enqueue(m email.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.messages = append(q.messages, m)
	return true
}

func (q *queue) sent() []email.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]email.Message(nil), q.messages...)
}

// sender records synchronous sends.
type sender struct {
	mu   sync.Mutex
	to   []string
	body []string
	err  error
}

func (s *sender) Send(_ context.Context, to, _, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.to = append(s.to, to)
	s.body = append(s.body, body)
	return nil
}

var errBoom = errors.New("boom")
