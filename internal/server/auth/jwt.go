// Package auth issues and verifies session tokens and delivers them as an
// HttpOnly cookie alongside the bearer token returned in login responses.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/common"
	"github.com/dmitrijs2005/fitcoach/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the smallest HS256 secret accepted, in bytes.
const MinSecretLength = 32

// Claims carried by a session token. The JSON keys are fixed: "sub" comes
// from RegisteredClaims and "role" is read back verbatim by the
// authorization layer.
type Claims struct {
	UniqueName string `json:"unique_name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens. It holds no mutable state
// and is safe for concurrent use.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewIssuer returns an Issuer, or an error wrapping common.ErrorWeakSigningKey
// when secret is shorter than MinSecretLength.
func NewIssuer(secret []byte, issuer, audience string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret has %d bytes: %w", len(secret), common.ErrorWeakSigningKey)
	}
	if ttl <= 0 {
		return nil, errors.New("token validity must be positive")
	}
	return &Issuer{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Issue signs a token for account and returns it with its expiry.
func (i *Issuer) Issue(account *models.Account) (string, time.Time, error) {
	now := i.now().Truncate(jwt.TimePrecision)
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		UniqueName: account.UserName,
		Email:      account.Email,
		Role:       string(account.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry with no
// clock-skew allowance. Every failure wraps common.ErrorInvalidToken.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrorInvalidToken
	}

	return claims, nil
}
