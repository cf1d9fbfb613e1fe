package errors

import (
	"errors"
	"fmt"
)

// Common error types for the festmatch client
var (
	// Session errors
	ErrNoSession          = errors.New("no session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionCorrupted   = errors.New("session record corrupted")
	ErrStorageUnavailable = errors.New("session storage unavailable")
	ErrSessionChanged     = errors.New("session changed while request was in flight")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingExp   = errors.New("token has no exp claim")

	// Refresh errors
	ErrRefreshUnauthorized = errors.New("refresh endpoint rejected the session")
	ErrRefreshMissingToken = errors.New("refresh response carried no access token")
	ErrRefreshTimeout      = errors.New("refresh timed out")
	ErrRefreshFailed       = errors.New("refresh failed")

	// Bridge errors
	ErrBridgeMissingToken = errors.New("bridge response carried no custom token")

	// General errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrInternal     = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
