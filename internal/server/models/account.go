package models

import (
	"strings"
	"time"
)

// AccountStatus is the admin approval state of an account.
type AccountStatus string

const (
	StatusPending  AccountStatus = "Pending"
	StatusApproved AccountStatus = "Approved"
	StatusRejected AccountStatus = "Rejected"
)

// ParseAccountStatus accepts the exact enum spelling, case-insensitively.
func ParseAccountStatus(s string) (AccountStatus, bool) {
	for _, st := range []AccountStatus{StatusPending, StatusApproved, StatusRejected} {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// Role is embedded in session tokens and checked by admin routes.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// Account is the persisted identity record.
//
// EmailVerificationCode is non-nil exactly while an email confirmation is
// outstanding. PasswordResetTokenHash holds the SHA-256 digest of the reset
// token sent by email, never the token itself.
type Account struct {
	ID                     string
	UserName               string
	Email                  string
	PasswordHash           string
	EmailConfirmed         bool
	EmailVerificationCode  *string
	Status                 AccountStatus
	ApprovedAt             *time.Time
	ApprovedBy             *string
	RejectionReason        *string
	Role                   Role
	PasswordResetTokenHash *string
	PasswordResetExpiresAt *time.Time
	PerfilID               *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// CanLogIn reports whether both login gates hold.
func (a *Account) CanLogIn() bool {
	return a.Status == StatusApproved && a.EmailConfirmed
}
