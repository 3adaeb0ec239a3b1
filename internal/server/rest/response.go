package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/server/models"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type loginResponse struct {
	AccessToken string          `json:"accessToken"`
	TokenType   string          `json:"tokenType"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	User        accountResponse `json:"user"`
}

// accountResponse is the public view of an account. Hashes, codes and
// reset tokens never leave the server.
type accountResponse struct {
	ID             string     `json:"id"`
	UserName       string     `json:"userName"`
	Email          string     `json:"email"`
	CreatedAt      time.Time  `json:"createdAt"`
	EmailConfirmed bool       `json:"emailConfirmed"`
	Status         string     `json:"status"`
	Role           string     `json:"role"`
	ApprovedAt     *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy     *string    `json:"approvedBy,omitempty"`
	PerfilID       *string    `json:"perfilId,omitempty"`
}

func toAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		UserName:       a.UserName,
		Email:          a.Email,
		CreatedAt:      a.CreatedAt,
		EmailConfirmed: a.EmailConfirmed,
		Status:         string(a.Status),
		Role:           string(a.Role),
		ApprovedAt:     a.ApprovedAt,
		ApprovedBy:     a.ApprovedBy,
		PerfilID:       a.PerfilID,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a single JSON object from the request body. An empty body
// decodes to the zero value.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
