package testutil

import (
	"context"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockRepo implements ports.TokenRepository with testify expectations.
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.TokenRecord, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenRecord), args.Error(1)
}

func (m *MockRepo) InsertIfAbsent(ctx context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, bool, error) {
	args := m.Called(rec)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.TokenRecord), args.Bool(1), args.Error(2)
}

func (m *MockRepo) FindByToken(ctx context.Context, token string) (*domain.TokenRecord, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenRecord), args.Error(1)
}

func (m *MockRepo) ConsumeUse(ctx context.Context, token string, now time.Time) (*domain.TokenRecord, error) {
	args := m.Called(token, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenRecord), args.Error(1)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

// MockAccessService implements ports.AccessService for handler tests.
type MockAccessService struct {
	mock.Mock
}

func (m *MockAccessService) HandlePurchase(ctx context.Context, p domain.Purchase) (*domain.PurchaseOutcome, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PurchaseOutcome), args.Error(1)
}

func (m *MockAccessService) Redeem(ctx context.Context, token string) (*domain.Redirect, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Redirect), args.Error(1)
}

func (m *MockAccessService) Lookup(ctx context.Context, token string) (*domain.TokenRecord, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenRecord), args.Error(1)
}

func (m *MockAccessService) Match(productName string) (domain.Rule, bool) {
	args := m.Called(productName)
	return args.Get(0).(domain.Rule), args.Bool(1)
}

func (m *MockAccessService) HealthCheck(ctx context.Context) map[string]error {
	args := m.Called()
	return args.Get(0).(map[string]error)
}
