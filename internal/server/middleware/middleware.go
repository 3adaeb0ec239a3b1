// Package middleware holds the HTTP wrappers applied in front of the
// fitcoach handlers: request logging, panic recovery, the API-key gate,
// per-route rate limiting, session authentication and role checks.
package middleware

import (
	"encoding/json"
	"net/http"
)

type ctxKey string

const (
	claimsKey      ctxKey = "claims"
	requestInfoKey ctxKey = "requestInfo"
)

// Messages returned by the middleware themselves.
const (
	msgAPIKeyMissing   = "Chave de API ausente ou inválida."
	msgUnauthenticated = "Sessão inválida ou expirada."
	msgForbidden       = "Acesso negado."
	msgTooManyRequests = "Muitas requisições. Tente novamente em instantes."
	msgInternal        = "Erro interno do servidor."
)

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
