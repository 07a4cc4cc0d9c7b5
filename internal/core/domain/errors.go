package domain

import "errors"

// Request and policy errors surfaced by the services.
var (
	ErrBadRequest            = errors.New("bad request")
	ErrInvalidToken          = errors.New("invalid token")
	ErrExpired               = errors.New("token expired")
	ErrUsageLimitExceeded    = errors.New("usage limit exceeded")
	ErrMisconfiguredResource = errors.New("misconfigured resource")
	ErrStoreUnavailable      = errors.New("token store unavailable")
	ErrNotifierUnavailable   = errors.New("notifier unavailable")
)

// Store-level outcomes of a conditional consume or insert.
var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrTokenExpired   = errors.New("token past expiry")
	ErrUsesExhausted  = errors.New("token uses exhausted")
	ErrTokenCollision = errors.New("token already exists")
)
