package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/fitcoach/internal/common"
	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/middleware"
)

const (
	msgInternal   = "Erro interno do servidor."
	msgBadRequest = "Requisição inválida."
)

// statusFor maps an error kind to its HTTP status. Login failures are 400,
// not 401, because the mobile client reads the message body on 400.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorInvalidInput),
		errors.Is(err, common.ErrorInvalidToken),
		errors.Is(err, common.ErrorUnauthorized):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorConflict), errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError sends the user-facing message of err, or a generic
// message when err carries internal detail.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log logging.Logger, err error) {
	status := statusFor(err)

	if status == http.StatusInternalServerError {
		log.Error(ctx, "request failed", "request_id", middleware.RequestID(ctx), "error", err)
		writeError(w, status, msgInternal)
		return
	}

	var ce *common.Error
	if !errors.As(err, &ce) {
		writeError(w, status, http.StatusText(status))
		return
	}
	writeJSON(w, status, errorResponse{Error: ce.Msg, Field: ce.Field})
}
