package docstore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mschirtzinger/famtasks/internal/model"
)

// Wire error codes shared by Server and Client.
const (
	codeNotFound         = "not_found"
	codeInvalidArgument  = "invalid_argument"
	codePermissionDenied = "permission_denied"
	codeUnavailable      = "unavailable"
	codeInternal         = "internal"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// classify maps an error onto its wire code and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return codeNotFound, http.StatusNotFound
	case errors.Is(err, model.ErrInvalidArgument):
		return codeInvalidArgument, http.StatusBadRequest
	case errors.Is(err, model.ErrPermissionDenied):
		return codePermissionDenied, http.StatusForbidden
	case errors.Is(err, model.ErrUnavailable):
		return codeUnavailable, http.StatusServiceUnavailable
	default:
		return codeInternal, http.StatusInternalServerError
	}
}

// fromWire reconstructs a sentinel-wrapping error from a wire error.
// Server-side failures are transient from the client's point of view.
func fromWire(status int, body errorBody) error {
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch body.Code {
	case codeNotFound:
		return fmt.Errorf("%s: %w", msg, model.ErrNotFound)
	case codeInvalidArgument:
		return fmt.Errorf("%s: %w", msg, model.ErrInvalidArgument)
	case codePermissionDenied:
		return fmt.Errorf("%s: %w", msg, model.ErrPermissionDenied)
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, model.ErrNotFound)
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", msg, model.ErrPermissionDenied)
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout:
		return fmt.Errorf("%s: %w", msg, model.ErrInvalidArgument)
	}
	return fmt.Errorf("%s: %w", msg, model.ErrUnavailable)
}
