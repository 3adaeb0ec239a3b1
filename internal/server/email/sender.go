// Package email delivers account emails: verification codes after admin
// approval and password reset links.
package email

import "context"

// Sender delivers one message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Message is a rendered email waiting in the Outbox. Kind labels metrics
// and logs ("verification", "password_reset").
type Message struct {
	Kind    string
	To      string
	Subject string
	Body    string
}
