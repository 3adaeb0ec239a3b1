// Package accounts is the persistence layer for user accounts.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/server/models"
)

// Repository is the account store contract used by the services.
//
// Lookups return common.ErrorNotFound when nothing matches. Create returns
// common.ErrorAlreadyExists when a unique index rejects the row.
//
// Writes touch only the columns their operation owns and carry their
// precondition in the WHERE clause, so concurrent workflows on one account
// never overwrite each other. A write whose precondition no longer holds
// returns common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	ExistsByUserNameOrEmail(ctx context.Context, userName, email string) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// GetByLogin matches userName exactly or email against the lower-cased identifier.
	GetByLogin(ctx context.Context, identifier string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// GetByResetTokenHash only matches tokens that expire after now.
	GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error)
	ListByStatus(ctx context.Context, status models.AccountStatus) ([]*models.Account, error)
	// Approve sets status Approved and a fresh verification code unless the
	// account is already approved.
	Approve(ctx context.Context, id string, approvedBy *string, approvedAt time.Time, code string) error
	// Reject sets status Rejected unless the account is already rejected.
	Reject(ctx context.Context, id string, rejectedBy *string, rejectedAt time.Time, reason *string) error
	// ConfirmEmail marks the email confirmed only while code is still the
	// pending verification code.
	ConfirmEmail(ctx context.Context, id, code string) error
	SetPasswordReset(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	// ResetPassword consumes a live reset token and stores passwordHash in one
	// statement. It returns the account id.
	ResetPassword(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (string, error)
	// SetPassword stores passwordHash and drops any pending reset token.
	SetPassword(ctx context.Context, id, passwordHash string) error
	SetRole(ctx context.Context, userName string, role models.Role) error
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}
