package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/common"
	"github.com/dmitrijs2005/fitcoach/internal/dbx"
	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/email"
	"github.com/dmitrijs2005/fitcoach/internal/server/models"
	"github.com/dmitrijs2005/fitcoach/internal/server/observability"
	"github.com/dmitrijs2005/fitcoach/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/fitcoach/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fitcoach/internal/server/validation"
	"github.com/google/uuid"
)

// AdminService runs the approval workflow and the operator commands.
type AdminService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sender      email.Sender
	bcryptCost  int
	logger      logging.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewAdminService(db *sql.DB, m repomanager.RepositoryManager, sender email.Sender, bcryptCost int,
	l logging.Logger, metrics *observability.Metrics) *AdminService {
	return &AdminService{
		db:          db,
		repomanager: m,
		sender:      sender,
		bcryptCost:  bcryptCost,
		logger:      l.With("module", "admin_service"),
		metrics:     metrics,
		now:         time.Now,
	}
}

// Approve moves the account to Approved and starts a fresh email
// confirmation round. The verification email is sent before the
// transaction commits, so a delivery failure leaves the account untouched.
// Of two concurrent approvals only one passes the conditional write and
// sends an email; the other gets ErrAlreadyApproved.
func (s *AdminService) Approve(ctx context.Context, accountID, approvedBy string) (acc *models.Account, err error) {
	defer func() { s.metrics.AuthEvent("approve", outcome(err)) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		acc, err = loadAccount(ctx, repo, accountID)
		if err != nil {
			return err
		}
		if acc.Status == models.StatusApproved {
			return common.ErrAlreadyApproved
		}

		code, err := common.MakeNumericCode(common.VerificationCodeLength)
		if err != nil {
			return fmt.Errorf("error generating verification code: %w", err)
		}

		now := s.now().UTC()
		by := optional(approvedBy)
		if err := repo.Approve(ctx, acc.ID, by, now, code); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAlreadyApproved
			}
			return fmt.Errorf("error approving account: %w", err)
		}

		acc.Status = models.StatusApproved
		acc.ApprovedAt = &now
		acc.ApprovedBy = by
		acc.RejectionReason = nil
		acc.EmailConfirmed = false
		acc.EmailVerificationCode = &code

		m, err := email.VerificationMessage(acc.Email, acc.UserName, code)
		if err != nil {
			return fmt.Errorf("error rendering verification email: %w", err)
		}
		err = s.sender.Send(ctx, m.To, m.Subject, m.Body)
		s.metrics.EmailSent(m.Kind, err)
		if err != nil {
			s.logger.Error(ctx, "verification email failed", "account_id", acc.ID, "error", err)
			return common.ErrEmailDelivery
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account approved", "account_id", acc.ID, "approved_by", approvedBy)
	return acc, nil
}

// Reject moves the account to Rejected. An empty reason is stored as NULL.
func (s *AdminService) Reject(ctx context.Context, accountID, rejectedBy, reason string) (acc *models.Account, err error) {
	defer func() { s.metrics.AuthEvent("reject", outcome(err)) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		acc, err = loadAccount(ctx, repo, accountID)
		if err != nil {
			return err
		}
		if acc.Status == models.StatusRejected {
			return common.ErrAlreadyRejected
		}

		now := s.now().UTC()
		by, why := optional(rejectedBy), optional(reason)
		if err := repo.Reject(ctx, acc.ID, by, now, why); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAlreadyRejected
			}
			return fmt.Errorf("error rejecting account: %w", err)
		}

		acc.Status = models.StatusRejected
		acc.ApprovedAt = &now
		acc.ApprovedBy = by
		acc.RejectionReason = why
		acc.EmailVerificationCode = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account rejected", "account_id", acc.ID, "rejected_by", rejectedBy)
	return acc, nil
}

// ListAccounts returns the accounts in the given status, oldest first.
func (s *AdminService) ListAccounts(ctx context.Context, status models.AccountStatus) ([]*models.Account, error) {
	list, err := s.repomanager.Accounts(s.db).ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("error listing accounts: %w", err)
	}
	return list, nil
}

// SetRole changes the role of the account named userName. It is the
// out-of-band path for creating administrators.
func (s *AdminService) SetRole(ctx context.Context, userName string, role models.Role) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return &common.Error{Kind: common.ErrorInvalidInput, Field: "role", Msg: "Perfil inválido."}
	}
	if err := s.repomanager.Accounts(s.db).SetRole(ctx, userName, role); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrAccountNotFound
		}
		return fmt.Errorf("error setting role: %w", err)
	}
	s.logger.Info(ctx, "role changed", "username", userName, "role", string(role))
	return nil
}

// SetPassword overwrites the password of userName without a reset token.
func (s *AdminService) SetPassword(ctx context.Context, userName, password string) error {
	if !validation.IsStrongPassword(password) {
		return common.ErrWeakPassword
	}
	hash, err := hashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)
		acc, err := repo.GetByLogin(ctx, userName)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAccountNotFound
			}
			return fmt.Errorf("error loading account: %w", err)
		}
		if err := repo.SetPassword(ctx, acc.ID, hash); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		s.logger.Info(ctx, "password set by operator", "account_id", acc.ID)
		return nil
	})
}

// PurgeExpiredResetTokens clears reset tokens whose expiry has passed.
func (s *AdminService) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Accounts(s.db).PurgeExpiredResetTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("error purging reset tokens: %w", err)
	}
	s.metrics.ResetTokensPurgedAdd(n)
	return n, nil
}

func loadAccount(ctx context.Context, repo accounts.Repository, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrAccountNotFound
	}
	acc, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAccountNotFound
		}
		return nil, fmt.Errorf("error loading account: %w", err)
	}
	return acc, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
