// Package domain contains the core entities and pure business rules for tourpass.
package domain

import (
	"time"
)

// NeverExpires is the far-future sentinel used for tokens without a time limit.
var NeverExpires = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// TokenRecord is the durable grant of access to one resource.
type TokenRecord struct {
	Token          string     `json:"token"`
	IdempotencyKey *string    `json:"idempotency_key,omitempty"` // Originating order id; nil disables dedupe
	ResourceID     ResourceID `json:"resource_id"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Uses           int        `json:"uses"`
	MaxUses        int        `json:"max_uses"` // 0 = unlimited
}

// Expired reports whether the token can no longer be redeemed at now.
func (t *TokenRecord) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Exhausted reports whether the usage cap has been reached.
func (t *TokenRecord) Exhausted() bool {
	return t.MaxUses > 0 && t.Uses >= t.MaxUses
}

// RemainingUses returns the number of redemptions left, or -1 when unlimited.
func (t *TokenRecord) RemainingUses() int {
	if t.MaxUses == 0 {
		return -1
	}
	if t.Uses >= t.MaxUses {
		return 0
	}
	return t.MaxUses - t.Uses
}

// Policy bounds a newly issued token.
type Policy struct {
	TTL     time.Duration `json:"ttl" mapstructure:"ttl"`           // 0 = never expires
	MaxUses int           `json:"max_uses" mapstructure:"max_uses"` // 0 = unlimited
}

// ExpiresAt computes the expiry for a token created at now.
func (p Policy) ExpiresAt(now time.Time) time.Time {
	if p.TTL <= 0 {
		return NeverExpires
	}
	return now.Add(p.TTL)
}

// Redirect is the outcome of a successful redemption.
type Redirect struct {
	Location string      `json:"location"`
	Record   TokenRecord `json:"record"`
}
