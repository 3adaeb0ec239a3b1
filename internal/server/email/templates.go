package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// VerificationMessage renders the email carrying a 6-digit confirmation code.
func VerificationMessage(to, userName, code string) (Message, error) {
	body, err := render("verification_email.html", map[string]string{
		"UserName": userName,
		"Code":     code,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindVerification,
		To:      to,
		Subject: "Seu cadastro foi aprovado: confirme seu e-mail",
		Body:    body,
	}, nil
}

// PasswordResetMessage renders the email carrying the reset link.
func PasswordResetMessage(to, userName, link string, ttl time.Duration) (Message, error) {
	body, err := render("password_reset_email.html", map[string]any{
		"UserName": userName,
		"Link":     link,
		"Minutes":  int(ttl.Minutes()),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindPasswordReset,
		To:      to,
		Subject: "Redefinição de senha",
		Body:    body,
	}, nil
}
