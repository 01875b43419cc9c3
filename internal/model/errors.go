package model

import (
	"errors"
	"fmt"
)

// Common errors returned by the sync core.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, model.ErrPermissionDenied) {
//	    // Surface to the user, never retry
//	}
var (
	// ErrInvalidArgument is returned when a payload violates a write
	// precondition (missing userId or title, malformed operation).
	// The caller must fix the data; retrying cannot succeed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPrivateFamilyMismatch is returned when a private task carries a
	// family id. It wraps ErrInvalidArgument.
	ErrPrivateFamilyMismatch = fmt.Errorf("%w: private task must not belong to a family", ErrInvalidArgument)

	// ErrPermissionDenied is returned when the acting user is not allowed
	// to perform the operation (e.g. deleting another member's task).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when the remote store cannot be reached
	// (network error, timeout, server error). Operations failing with it
	// are retried on a later cycle.
	ErrUnavailable = errors.New("remote unavailable")

	// ErrOffline is returned when a sync cycle is requested while the
	// connectivity monitor reports no network.
	ErrOffline = fmt.Errorf("%w: device is offline", ErrUnavailable)
)

// IsFatal reports whether err must not be retried.
//
// Precondition and authorization failures are fatal to the operation that
// produced them. Everything else is treated as transient.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrPermissionDenied)
}

// IsTransient reports whether err is worth retrying on a later attempt.
func IsTransient(err error) bool {
	return err != nil && !IsFatal(err)
}
