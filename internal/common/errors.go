package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level kinds. User-facing errors below unwrap to one of these.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorInvalidInput = errors.New("invalid input")
	ErrorConflict     = errors.New("conflict")
	ErrorUpstream     = errors.New("upstream dependency failure")

	// Auth errors (invalid, expired or malformed token).
	ErrorInvalidToken = errors.New("invalid token")

	// Startup errors.
	ErrorWeakSigningKey = errors.New("signing key must be at least 32 bytes")
)

// Error is an error whose message is safe to show to API clients.
// The mobile client branches on substrings of Msg, so the texts are part
// of the public contract.
type Error struct {
	Kind  error
	Field string
	Msg   string
}

func (e *Error) Error() string { return e.Msg }

// Unwrap exposes the kind so callers can use errors.Is(err, ErrorConflict).
func (e *Error) Unwrap() error { return e.Kind }

// Registration and credential shape.
var (
	ErrInvalidUserName = &Error{Kind: ErrorInvalidInput, Field: "userName",
		Msg: "Nome de usuário inválido: use de 3 a 32 letras ou números, sem espaços ou símbolos."}
	ErrWeakPassword = &Error{Kind: ErrorInvalidInput, Field: "password",
		Msg: "Senha fraca: use pelo menos 8 caracteres com letra maiúscula, letra minúscula, número e caractere especial."}
	ErrPasswordTooLong = &Error{Kind: ErrorInvalidInput, Field: "password",
		Msg: "Senha muito longa: use no máximo 72 bytes."}
	ErrInvalidEmail = &Error{Kind: ErrorInvalidInput, Field: "email",
		Msg: "E-mail inválido."}
	ErrAccountConflict = &Error{Kind: ErrorConflict,
		Msg: "Nome de usuário ou e-mail já cadastrado."}
)

// Login gates. Each one is distinct on purpose.
var (
	ErrBadCredentials = &Error{Kind: ErrorUnauthorized,
		Msg: "Usuário ou senha incorretos."}
	ErrWrongPassword = &Error{Kind: ErrorUnauthorized,
		Msg: "Senha incorreta."}
	ErrNotApproved = &Error{Kind: ErrorUnauthorized,
		Msg: "Usuário não aprovado pelo administrador."}
	ErrEmailNotVerified = &Error{Kind: ErrorUnauthorized,
		Msg: "E-mail não verificado. Confirme o código enviado para o seu e-mail."}
)

// Password reset and email confirmation.
var (
	ErrResetTokenInvalid = &Error{Kind: ErrorInvalidToken,
		Msg: "Token inválido ou expirado."}
	ErrNoPendingCode = &Error{Kind: ErrorInvalidInput,
		Msg: "Nenhum código de verificação pendente para este usuário."}
	ErrInvalidCode = &Error{Kind: ErrorInvalidInput,
		Msg: "Código inválido."}
)

// Admin workflow.
var (
	ErrAccountNotFound = &Error{Kind: ErrorNotFound,
		Msg: "Usuário não encontrado."}
	ErrAlreadyApproved = &Error{Kind: ErrorConflict,
		Msg: "Usuário já aprovado."}
	ErrAlreadyRejected = &Error{Kind: ErrorConflict,
		Msg: "Usuário já rejeitado."}
	ErrEmailDelivery = &Error{Kind: ErrorUpstream,
		Msg: "Não foi possível enviar o e-mail de verificação."}
)
