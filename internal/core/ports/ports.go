package ports

import (
	"context"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
)

// TokenRepository is the durable store for token records. Every method must be
// atomic with respect to concurrent callers, including callers in other processes.
type TokenRepository interface {
	// FindByIdempotencyKey returns nil, nil when no record carries key.
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.TokenRecord, error)
	// InsertIfAbsent stores rec unless its idempotency key is taken. created is
	// false when another record already owns the key; that record is returned.
	// A clash on the token itself yields domain.ErrTokenCollision.
	InsertIfAbsent(ctx context.Context, rec *domain.TokenRecord) (stored *domain.TokenRecord, created bool, err error)
	// FindByToken returns nil, nil when the token is unknown.
	FindByToken(ctx context.Context, token string) (*domain.TokenRecord, error)
	// ConsumeUse increments uses only if the token exists, has not expired at
	// now and is under its cap. Otherwise it returns domain.ErrTokenNotFound,
	// domain.ErrTokenExpired or domain.ErrUsesExhausted.
	ConsumeUse(ctx context.Context, token string, now time.Time) (*domain.TokenRecord, error)
	Ping(ctx context.Context) error
}

// Notifier delivers an access link to a purchaser.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// TokenIssuer mints tokens for matched purchases.
type TokenIssuer interface {
	Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error)
}

// TokenRedeemer turns a presented token into a redirect.
type TokenRedeemer interface {
	Redeem(ctx context.Context, token string) (*domain.Redirect, error)
}

// AccessService is the application surface used by the HTTP and CLI adapters.
type AccessService interface {
	HandlePurchase(ctx context.Context, p domain.Purchase) (*domain.PurchaseOutcome, error)
	Redeem(ctx context.Context, token string) (*domain.Redirect, error)
	Lookup(ctx context.Context, token string) (*domain.TokenRecord, error)
	Match(productName string) (domain.Rule, bool)
	HealthCheck(ctx context.Context) map[string]error
}
