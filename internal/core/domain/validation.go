package domain

import (
	"fmt"
	"regexp"
)

const (
	maxTokenLength          = 128
	maxIdempotencyKeyLength = 255
	maxProductNameLength    = 512
)

var validTokenRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateToken checks that a presented token is plausibly one we issued.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrBadRequest)
	}
	if len(token) > maxTokenLength {
		return fmt.Errorf("%w: token exceeds %d characters", ErrBadRequest, maxTokenLength)
	}
	if !validTokenRegex.MatchString(token) {
		return fmt.Errorf("%w: token contains invalid characters", ErrBadRequest)
	}
	return nil
}

// ValidateIdempotencyKey rejects keys that cannot be stored.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty idempotency key", ErrBadRequest)
	}
	if len(key) > maxIdempotencyKeyLength {
		return fmt.Errorf("%w: idempotency key exceeds %d characters", ErrBadRequest, maxIdempotencyKeyLength)
	}
	return nil
}

// ValidateProductName checks the raw purchase-line description.
func ValidateProductName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: missing product name", ErrBadRequest)
	}
	if len(name) > maxProductNameLength {
		return fmt.Errorf("%w: product name exceeds %d characters", ErrBadRequest, maxProductNameLength)
	}
	return nil
}
