package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/common"
	"github.com/dmitrijs2005/fitcoach/internal/dbx"
	"github.com/dmitrijs2005/fitcoach/internal/server/models"
)

const accountColumns = `id, username, email, password_hash, email_confirmed,
		email_verification_code, status, approved_at, approved_by, rejection_reason,
		role, password_reset_token_hash, password_reset_expires_at, perfil_id,
		created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.Account, error) {
	a := &models.Account{}
	var status, role string

	err := s.Scan(&a.ID, &a.UserName, &a.Email, &a.PasswordHash, &a.EmailConfirmed,
		&a.EmailVerificationCode, &status, &a.ApprovedAt, &a.ApprovedBy, &a.RejectionReason,
		&role, &a.PasswordResetTokenHash, &a.PasswordResetExpiresAt, &a.PerfilID,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Status = models.AccountStatus(status)
	a.Role = models.Role(role)
	return a, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (id, username, email, password_hash, email_confirmed,
		 email_verification_code, status, role, perfil_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.UserName, a.Email, a.PasswordHash, a.EmailConfirmed,
		a.EmailVerificationCode, string(a.Status), string(a.Role), a.PerfilID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		if _, ok := dbx.IsUniqueViolation(err); ok {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) ExistsByUserNameOrEmail(ctx context.Context, userName, email string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1 OR email = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userName, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByLogin(ctx context.Context, identifier string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE username = $1 OR email = $2
		 ORDER BY (username = $1) DESC
		 LIMIT 1`
	return r.getOne(ctx, query, identifier, strings.ToLower(identifier))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE password_reset_token_hash = $1 AND password_reset_expires_at > $2`
	return r.getOne(ctx, query, tokenHash, now)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status models.AccountStatus) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE status = $1
		 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// exec runs a single-row UPDATE and reports common.ErrorNotFound when its
// WHERE clause matched nothing.
func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Approve(ctx context.Context, id string, approvedBy *string, approvedAt time.Time, code string) error {
	return r.exec(ctx,
		`UPDATE accounts SET
		   status = $2,
		   approved_at = $3,
		   approved_by = $4,
		   rejection_reason = NULL,
		   email_confirmed = FALSE,
		   email_verification_code = $5,
		   updated_at = NOW()
		 WHERE id = $1 AND status <> $2`,
		id, string(models.StatusApproved), approvedAt, approvedBy, code)
}

func (r *PostgresRepository) Reject(ctx context.Context, id string, rejectedBy *string, rejectedAt time.Time, reason *string) error {
	return r.exec(ctx,
		`UPDATE accounts SET
		   status = $2,
		   approved_at = $3,
		   approved_by = $4,
		   rejection_reason = $5,
		   email_verification_code = NULL,
		   updated_at = NOW()
		 WHERE id = $1 AND status <> $2`,
		id, string(models.StatusRejected), rejectedAt, rejectedBy, reason)
}

func (r *PostgresRepository) ConfirmEmail(ctx context.Context, id, code string) error {
	return r.exec(ctx,
		`UPDATE accounts
		 SET email_confirmed = TRUE, email_verification_code = NULL, updated_at = NOW()
		 WHERE id = $1 AND NOT email_confirmed AND email_verification_code = $2`,
		id, code)
}

func (r *PostgresRepository) SetPasswordReset(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.exec(ctx,
		`UPDATE accounts
		 SET password_reset_token_hash = $2, password_reset_expires_at = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, tokenHash, expiresAt)
}

func (r *PostgresRepository) ResetPassword(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (string, error) {
	query :=
		`UPDATE accounts
		 SET password_hash = $3, password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = NOW()
		 WHERE password_reset_token_hash = $1 AND password_reset_expires_at > $2
		 RETURNING id`

	var id string
	if err := r.db.QueryRowContext(ctx, query, tokenHash, now, passwordHash).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx,
		`UPDATE accounts
		 SET password_hash = $2, password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id, passwordHash)
}

func (r *PostgresRepository) SetRole(ctx context.Context, userName string, role models.Role) error {
	return r.exec(ctx,
		`UPDATE accounts SET role = $2, updated_at = NOW() WHERE username = $1`,
		userName, string(role))
}

func (r *PostgresRepository) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = NOW()
		 WHERE password_reset_expires_at IS NOT NULL AND password_reset_expires_at <= $1`,
		now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
