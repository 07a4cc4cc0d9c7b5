package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/poyrazK/tourpass/internal/core/ports"
	"github.com/poyrazK/tourpass/internal/infrastructure/metrics"
)

const (
	tokenPrefix = "tp_"
	tokenBytes  = 24

	maxTokenAttempts = 3
)

// GenerateToken returns a prefixed hex token backed by 24 random bytes.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return tokenPrefix + hex.EncodeToString(raw), nil
}

// TokenIssuer creates token records, at most one per idempotency key.
type TokenIssuer struct {
	repo     ports.TokenRepository
	catalog  *domain.Catalog
	logger   *slog.Logger
	Clock    func() time.Time
	NewToken func() (string, error)
}

// NewTokenIssuer creates and returns a new TokenIssuer instance.
func NewTokenIssuer(repo ports.TokenRepository, catalog *domain.Catalog, logger *slog.Logger) *TokenIssuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenIssuer{
		repo:     repo,
		catalog:  catalog,
		logger:   logger,
		Clock:    time.Now,
		NewToken: GenerateToken,
	}
}

// Issue returns the record for req.IdempotencyKey if one exists, otherwise it
// stores a fresh token. Losing an insert race to a concurrent issuance for the
// same key is reported as a replay.
func (s *TokenIssuer) Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	if !s.catalog.Has(req.ResourceID) {
		return nil, fmt.Errorf("%w: unknown resource %q", domain.ErrMisconfiguredResource, req.ResourceID)
	}

	if req.IdempotencyKey != nil {
		if err := domain.ValidateIdempotencyKey(*req.IdempotencyKey); err != nil {
			return nil, err
		}
		existing, err := s.repo.FindByIdempotencyKey(ctx, *req.IdempotencyKey)
		if err != nil {
			return nil, storeError("find by idempotency key", err)
		}
		if existing != nil {
			s.logger.Info("purchase already processed", "idempotency_key", *req.IdempotencyKey, "resource", existing.ResourceID)
			return &domain.IssueResult{Record: *existing, AlreadyProcessed: true}, nil
		}
	}

	now := s.Clock().UTC().Truncate(time.Millisecond)
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := s.NewToken()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}

		rec := &domain.TokenRecord{
			Token:          token,
			IdempotencyKey: req.IdempotencyKey,
			ResourceID:     req.ResourceID,
			CreatedAt:      now,
			ExpiresAt:      req.Policy.ExpiresAt(now),
			Uses:           0,
			MaxUses:        req.Policy.MaxUses,
		}

		stored, created, err := s.repo.InsertIfAbsent(ctx, rec)
		if errors.Is(err, domain.ErrTokenCollision) {
			metrics.TokenCollisions.Inc()
			s.logger.Warn("token collision, regenerating", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, storeError("insert token", err)
		}
		if !created {
			if stored == nil {
				return nil, storeError("insert token", errors.New("conflict reported without a winning record"))
			}
			s.logger.Info("concurrent issuance resolved to existing token", "resource", stored.ResourceID)
			return &domain.IssueResult{Record: *stored, AlreadyProcessed: true}, nil
		}

		metrics.TokensIssued.WithLabelValues(string(stored.ResourceID)).Inc()
		s.logger.Info("token issued", "resource", stored.ResourceID, "expires_at", stored.ExpiresAt, "max_uses", stored.MaxUses)
		return &domain.IssueResult{Record: *stored}, nil
	}

	return nil, fmt.Errorf("%w: no unique token after %d attempts", domain.ErrStoreUnavailable, maxTokenAttempts)
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
