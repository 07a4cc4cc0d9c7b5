package repository

import (
	"context"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/poyrazK/tourpass/internal/core/ports"
	"github.com/poyrazK/tourpass/internal/infrastructure/metrics"
)

// InstrumentedRepository records store latency for any ports.TokenRepository
// and bounds every call by a per-call timeout. A timed-out ConsumeUse has an
// unknown outcome; callers re-read the token before retrying.
type InstrumentedRepository struct {
	next    ports.TokenRepository
	timeout time.Duration
}

// NewInstrumentedRepository wraps next. A zero timeout leaves ctx untouched.
func NewInstrumentedRepository(next ports.TokenRepository, timeout time.Duration) *InstrumentedRepository {
	return &InstrumentedRepository{next: next, timeout: timeout}
}

func (r *InstrumentedRepository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func observe(op string, start time.Time) {
	metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (r *InstrumentedRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.TokenRecord, error) {
	defer observe("find_by_idempotency_key", time.Now())
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.next.FindByIdempotencyKey(ctx, key)
}

func (r *InstrumentedRepository) InsertIfAbsent(ctx context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, bool, error) {
	defer observe("insert_if_absent", time.Now())
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.next.InsertIfAbsent(ctx, rec)
}

func (r *InstrumentedRepository) FindByToken(ctx context.Context, token string) (*domain.TokenRecord, error) {
	defer observe("find_by_token", time.Now())
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.next.FindByToken(ctx, token)
}

func (r *InstrumentedRepository) ConsumeUse(ctx context.Context, token string, now time.Time) (*domain.TokenRecord, error) {
	defer observe("consume_use", time.Now())
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.next.ConsumeUse(ctx, token, now)
}

func (r *InstrumentedRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.next.Ping(ctx)
}
