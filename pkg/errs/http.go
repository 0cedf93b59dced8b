package errs

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// HTTPErrorResponse writes err as a JSON error body with a status derived
// from its kind. Only the innermost message is sent; the full error with its
// operation trail is logged.
func HTTPErrorResponse(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := HTTPStatus(err)

	event := logger.Info()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}

	event.Err(err).Strs("ops", OpStack(err)).Int("status", status).Msg("request failed")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: Message(err)})
}

// HTTPStatus maps the kind of err to a response status.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch {
	case KindIs(Invalid, err), KindIs(InvalidRequest, err), KindIs(Validation, err):
		return http.StatusBadRequest
	case KindIs(Unauthenticated, err):
		return http.StatusUnauthorized
	case KindIs(Unauthorized, err):
		return http.StatusForbidden
	case KindIs(NotExist, err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message is the text of the innermost error that is not an *Error.
func Message(err error) string {
	for {
		e, ok := err.(*Error)
		if !ok || e.Err == nil {
			break
		}

		err = e.Err
	}

	if err == nil {
		return ""
	}

	if e, ok := err.(*Error); ok && e.Kind != Other {
		return e.Kind.String()
	}

	return err.Error()
}
