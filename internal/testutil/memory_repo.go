package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
)

// MemoryRepo is a goroutine-safe in-memory ports.TokenRepository with the same
// conditional semantics as the SQL stores.
type MemoryRepo struct {
	mu      sync.Mutex
	byToken map[string]domain.TokenRecord
	byKey   map[string]string
	PingErr error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byToken: make(map[string]domain.TokenRecord),
		byKey:   make(map[string]string),
	}
}

func (m *MemoryRepo) FindByIdempotencyKey(_ context.Context, key string) (*domain.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	rec := m.byToken[token]
	return &rec, nil
}

func (m *MemoryRepo) InsertIfAbsent(_ context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.IdempotencyKey != nil {
		if owner, ok := m.byKey[*rec.IdempotencyKey]; ok {
			winner := m.byToken[owner]
			return &winner, false, nil
		}
	}
	if _, ok := m.byToken[rec.Token]; ok {
		return nil, false, domain.ErrTokenCollision
	}
	stored := *rec
	m.byToken[rec.Token] = stored
	if rec.IdempotencyKey != nil {
		m.byKey[*rec.IdempotencyKey] = rec.Token
	}
	return &stored, true, nil
}

func (m *MemoryRepo) FindByToken(_ context.Context, token string) (*domain.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byToken[token]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryRepo) ConsumeUse(_ context.Context, token string, now time.Time) (*domain.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byToken[token]
	switch {
	case !ok:
		return nil, domain.ErrTokenNotFound
	case rec.Expired(now):
		return nil, domain.ErrTokenExpired
	case rec.Exhausted():
		return nil, domain.ErrUsesExhausted
	}
	rec.Uses++
	m.byToken[token] = rec
	return &rec, nil
}

func (m *MemoryRepo) Ping(context.Context) error {
	return m.PingErr
}

// Len returns the number of stored records.
func (m *MemoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byToken)
}
