package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sixfold/sixfold/errors"
)

// statusFor maps sentinel errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes an error response for err. Client errors surface the
// error message; internal errors are logged and hidden behind a generic
// message.
func handleError(w http.ResponseWriter, logger *zap.SugaredLogger, err error, context string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorw(context, "error", err)
		writeError(w, status, context)
		return
	}
	writeError(w, status, err.Error())
}
