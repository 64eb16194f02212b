// Package apperr defines the error categories shared by the REST layer
// and the realtime gateway. Services wrap these sentinels; transports
// translate them with errors.Is and never expose the underlying cause.
package apperr

import "errors"

var (
	// ErrUnauthenticated covers every credential failure: missing,
	// malformed, expired or replayed tokens. Deliberately a single
	// category so callers cannot distinguish why verification failed.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the caller is authenticated but not entitled:
	// wrong participant, not the owner, or a blocked pair.
	ErrForbidden = errors.New("forbidden")

	ErrNotFound = errors.New("not found")

	// ErrBadRequest covers invalid operations on valid resources, e.g.
	// a group-only operation on a private chat.
	ErrBadRequest = errors.New("bad request")
)
