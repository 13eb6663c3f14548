package domain

import "errors"

// Sentinel errors returned by repositories. Services translate them into
// pkg/errors.AppError values.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyJoined = errors.New("participant already joined")
	ErrNotJoined     = errors.New("participant not joined")
	ErrCallNotActive = errors.New("call is not active")
)
