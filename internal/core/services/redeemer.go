package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/poyrazK/tourpass/internal/core/ports"
	"github.com/poyrazK/tourpass/internal/infrastructure/metrics"
)

// TokenRedeemer validates a presented token and consumes one use.
type TokenRedeemer struct {
	repo    ports.TokenRepository
	catalog *domain.Catalog
	logger  *slog.Logger
	Clock   func() time.Time
}

// NewTokenRedeemer creates and returns a new TokenRedeemer instance.
func NewTokenRedeemer(repo ports.TokenRepository, catalog *domain.Catalog, logger *slog.Logger) *TokenRedeemer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRedeemer{repo: repo, catalog: catalog, logger: logger, Clock: time.Now}
}

// Redeem consumes one use of token and returns where to send the visitor.
// Lookup, expiry check, cap check and increment happen in a single store call.
func (s *TokenRedeemer) Redeem(ctx context.Context, token string) (*domain.Redirect, error) {
	if err := domain.ValidateToken(token); err != nil {
		metrics.RedemptionsTotal.WithLabelValues("bad_request").Inc()
		return nil, err
	}

	rec, err := s.repo.ConsumeUse(ctx, token, s.Clock().UTC())
	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		metrics.RedemptionsTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidToken
	case errors.Is(err, domain.ErrTokenExpired):
		metrics.RedemptionsTotal.WithLabelValues("expired").Inc()
		return nil, domain.ErrExpired
	case errors.Is(err, domain.ErrUsesExhausted):
		metrics.RedemptionsTotal.WithLabelValues("exhausted").Inc()
		return nil, domain.ErrUsageLimitExceeded
	case err != nil:
		metrics.RedemptionsTotal.WithLabelValues("error").Inc()
		return nil, storeError("consume use", err)
	}

	resource, ok := s.catalog.Lookup(rec.ResourceID)
	if !ok {
		metrics.RedemptionsTotal.WithLabelValues("misconfigured").Inc()
		s.logger.Error("token references unknown resource", "resource", rec.ResourceID, "token_prefix", tokenLogPrefix(rec.Token))
		return nil, fmt.Errorf("%w: %q has no resource path", domain.ErrMisconfiguredResource, rec.ResourceID)
	}

	metrics.RedemptionsTotal.WithLabelValues("ok").Inc()
	return &domain.Redirect{Location: resource.RedirectPath(rec.Token), Record: *rec}, nil
}

// tokenLogPrefix keeps full tokens out of logs.
func tokenLogPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
