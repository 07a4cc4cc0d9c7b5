package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/poyrazK/tourpass/internal/testutil"
	"github.com/stretchr/testify/mock"
)

func testCatalog(t *testing.T) *domain.Catalog {
	t.Helper()
	c, err := domain.NewCatalog(domain.DefaultResources)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return c
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func sequentialTokens(tokens ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(tokens) {
			return "", errors.New("token source exhausted")
		}
		tok := tokens[i]
		i++
		return tok, nil
	}
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		if !strings.HasPrefix(tok, "tp_") || len(tok) != 3+2*tokenBytes {
			t.Errorf("unexpected token shape %q", tok)
		}
		if err := domain.ValidateToken(tok); err != nil {
			t.Errorf("generated token fails validation: %v", err)
		}
		if seen[tok] {
			t.Errorf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestIssue_FreshAndReplay(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	issuer := NewTokenIssuer(repo, testCatalog(t), nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC)
	issuer.Clock = fixedClock(now)
	issuer.NewToken = sequentialTokens("tp_one", "tp_two")

	key := "order-42"
	req := domain.IssueRequest{
		IdempotencyKey: &key,
		ResourceID:     domain.ResourceRoss,
		Policy:         domain.Policy{TTL: 7 * 24 * time.Hour, MaxUses: 1},
	}

	// 1. First issuance creates a record
	res, err := issuer.Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if res.AlreadyProcessed {
		t.Errorf("first issuance must not be a replay")
	}
	if res.Record.Token != "tp_one" || res.Record.Uses != 0 || res.Record.MaxUses != 1 {
		t.Errorf("unexpected record %+v", res.Record)
	}
	wantExpiry := now.Truncate(time.Millisecond).Add(7 * 24 * time.Hour)
	if !res.Record.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expected expiry %v, got %v", wantExpiry, res.Record.ExpiresAt)
	}

	// 2. Same key returns the stored record unchanged
	res2, err := issuer.Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !res2.AlreadyProcessed || res2.Record.Token != "tp_one" {
		t.Errorf("expected replay of tp_one, got %+v", res2)
	}
	if repo.Len() != 1 {
		t.Errorf("expected one stored record, got %d", repo.Len())
	}
}

func TestIssue_NoKeyAlwaysCreates(t *testing.T) {
	repo := testutil.NewMemoryRepo()
	issuer := NewTokenIssuer(repo, testCatalog(t), nil)

	for i := 0; i < 3; i++ {
		res, err := issuer.Issue(context.Background(), domain.IssueRequest{ResourceID: domain.ResourceTown})
		if err != nil || res.AlreadyProcessed {
			t.Fatalf("issue %d: %+v, %v", i, res, err)
		}
		if !res.Record.ExpiresAt.Equal(domain.NeverExpires) || res.Record.MaxUses != 0 {
			t.Errorf("zero policy should mean unlimited, got %+v", res.Record)
		}
	}
	if repo.Len() != 3 {
		t.Errorf("expected three records, got %d", repo.Len())
	}
}

func TestIssue_UnknownResource(t *testing.T) {
	repo := new(testutil.MockRepo)
	issuer := NewTokenIssuer(repo, testCatalog(t), nil)

	_, err := issuer.Issue(context.Background(), domain.IssueRequest{ResourceID: "Nowhere"})
	if !errors.Is(err, domain.ErrMisconfiguredResource) {
		t.Errorf("expected ErrMisconfiguredResource, got %v", err)
	}
	repo.AssertNotCalled(t, "InsertIfAbsent", mock.Anything)
}

func TestIssue_InvalidKey(t *testing.T) {
	repo := new(testutil.MockRepo)
	issuer := NewTokenIssuer(repo, testCatalog(t), nil)

	empty := ""
	_, err := issuer.Issue(context.Background(), domain.IssueRequest{IdempotencyKey: &empty, ResourceID: domain.ResourceTown})
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("expected ErrBadRequest, got %v", err)
	}
}

func TestIssue_CollisionRetry(t *testing.T) {
	repo := new(testutil.MockRepo)
	issuer := NewTokenIssuer(repo, testCatalog(t), nil)
	issuer.NewToken = sequentialTokens("tp_taken", "tp_free")

	repo.On("InsertIfAbsent", mock.MatchedBy(func(r *domain.TokenRecord) bool { return r.Token == "tp_taken" })).
		Return(nil, false, domain.ErrTokenCollision).Once()
	repo.On("InsertIfAbsent", mock.MatchedBy(func(r *domain.TokenRecord) bool { return r.Token == "tp_free" })).
		Return(&domain.TokenRecord{Token: "tp_free", ResourceID: domain.ResourceHags}, true, nil).Once()

	res, err := issuer.Issue(context.Background(), domain.IssueRequest{ResourceID: domain.ResourceHags})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if res.Record.Token != "tp_free" {
		t.Errorf("expected retry to land on tp_free, got %s", res.Record.Token)
	}
	repo.AssertExpectations(t)
}

func TestIssue_CollisionGiveUp(t *testing.T) {
	repo := new(testutil.MockRepo)
	issuer := NewTokenIssuer(repo, testCatalog(t), nil)
	issuer.NewToken = sequentialTokens("tp_a", "tp_b", "tp_c", "tp_d")

	repo.On("InsertIfAbsent", mock.Anything).Return(nil, false, domain.ErrTokenCollision)

	_, err := issuer.Issue(context.Background(), domain.IssueRequest{ResourceID: domain.ResourceHags})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	repo.AssertNumberOfCalls(t, "InsertIfAbsent", maxTokenAttempts)
}

func TestIssue_LostRace(t *testing.T) {
	repo := new(testutil.MockRepo)
	issuer := NewTokenIssuer(repo, testCatalog(t), nil)
	key := "order-7"
	winner := &domain.TokenRecord{Token: "tp_winner", IdempotencyKey: &key, ResourceID: domain.ResourceTown}

	repo.On("FindByIdempotencyKey", key).Return(nil, nil)
	repo.On("InsertIfAbsent", mock.Anything).Return(winner, false, nil)

	res, err := issuer.Issue(context.Background(), domain.IssueRequest{IdempotencyKey: &key, ResourceID: domain.ResourceTown})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !res.AlreadyProcessed || res.Record.Token != "tp_winner" {
		t.Errorf("expected winner replay, got %+v", res)
	}
}

func TestIssue_StoreErrors(t *testing.T) {
	key := "order-9"
	down := errors.New("dial tcp: connection refused")

	tests := []struct {
		name  string
		setup func(*testutil.MockRepo)
	}{
		{"lookup", func(r *testutil.MockRepo) {
			r.On("FindByIdempotencyKey", key).Return(nil, down)
		}},
		{"insert", func(r *testutil.MockRepo) {
			r.On("FindByIdempotencyKey", key).Return(nil, nil)
			r.On("InsertIfAbsent", mock.Anything).Return(nil, false, down)
		}},
		{"conflict without winner", func(r *testutil.MockRepo) {
			r.On("FindByIdempotencyKey", key).Return(nil, nil)
			r.On("InsertIfAbsent", mock.Anything).Return(nil, false, nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(testutil.MockRepo)
			tt.setup(repo)
			issuer := NewTokenIssuer(repo, testCatalog(t), nil)

			_, err := issuer.Issue(context.Background(), domain.IssueRequest{IdempotencyKey: &key, ResourceID: domain.ResourceTown})
			if !errors.Is(err, domain.ErrStoreUnavailable) {
				t.Errorf("expected ErrStoreUnavailable, got %v", err)
			}
		})
	}
}

func TestIssue_TokenSourceFailure(t *testing.T) {
	repo := new(testutil.MockRepo)
	issuer := NewTokenIssuer(repo, testCatalog(t), nil)
	issuer.NewToken = func() (string, error) { return "", fmt.Errorf("entropy unavailable") }

	if _, err := issuer.Issue(context.Background(), domain.IssueRequest{ResourceID: domain.ResourceTown}); err == nil {
		t.Errorf("expected error from token source")
	}
}
