// Package common contains shared constants, sentinel errors and small
// helpers used across fitcoach components.
package common

// Default header names understood by the API.
const (
	// DefaultAPIKeyHeaderName carries the shared perimeter secret.
	DefaultAPIKeyHeaderName = "x-api-key"

	// AuthorizationHeaderName carries "Bearer <token>" session credentials.
	AuthorizationHeaderName = "Authorization"

	// ForwardedForHeaderName is consulted for rate-limit partitioning.
	ForwardedForHeaderName = "X-Forwarded-For"

	// RequestIDHeaderName is echoed back on every response.
	RequestIDHeaderName = "X-Request-ID"
)

// VerificationCodeLength is the number of digits in an email confirmation code.
const VerificationCodeLength = 6
