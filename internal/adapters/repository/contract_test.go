package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/poyrazK/tourpass/internal/core/ports"
)

// runRepositoryContract exercises the behaviour every ports.TokenRepository
// must provide, including the concurrency guarantees.
func runRepositoryContract(t *testing.T, repo ports.TokenRepository) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	week := now.Add(7 * 24 * time.Hour)

	newRecord := func(token string, key *string, maxUses int, expiresAt time.Time) *domain.TokenRecord {
		return &domain.TokenRecord{
			Token:          token,
			IdempotencyKey: key,
			ResourceID:     domain.ResourceTown,
			CreatedAt:      now,
			ExpiresAt:      expiresAt,
			MaxUses:        maxUses,
		}
	}

	t.Run("InsertAndFind", func(t *testing.T) {
		key := "order-insert"
		stored, created, err := repo.InsertIfAbsent(ctx, newRecord("tp_insert", &key, 2, week))
		if err != nil || !created {
			t.Fatalf("InsertIfAbsent: created=%v err=%v", created, err)
		}
		if stored.Token != "tp_insert" || stored.Uses != 0 || stored.MaxUses != 2 {
			t.Errorf("unexpected stored record %+v", stored)
		}

		byToken, err := repo.FindByToken(ctx, "tp_insert")
		if err != nil || byToken == nil {
			t.Fatalf("FindByToken: %+v, %v", byToken, err)
		}
		if !byToken.ExpiresAt.Equal(week) || !byToken.CreatedAt.Equal(now) {
			t.Errorf("timestamps not preserved: %+v", byToken)
		}
		if byToken.IdempotencyKey == nil || *byToken.IdempotencyKey != key {
			t.Errorf("idempotency key not preserved: %+v", byToken)
		}

		byKey, err := repo.FindByIdempotencyKey(ctx, key)
		if err != nil || byKey == nil || byKey.Token != "tp_insert" {
			t.Errorf("FindByIdempotencyKey: %+v, %v", byKey, err)
		}
	})

	t.Run("FindMissing", func(t *testing.T) {
		if rec, err := repo.FindByToken(ctx, "tp_missing"); rec != nil || err != nil {
			t.Errorf("expected nil, nil; got %+v, %v", rec, err)
		}
		if rec, err := repo.FindByIdempotencyKey(ctx, "order-missing"); rec != nil || err != nil {
			t.Errorf("expected nil, nil; got %+v, %v", rec, err)
		}
	})

	t.Run("ConflictReturnsWinner", func(t *testing.T) {
		key := "order-conflict"
		if _, _, err := repo.InsertIfAbsent(ctx, newRecord("tp_first", &key, 1, week)); err != nil {
			t.Fatalf("first insert: %v", err)
		}
		winner, created, err := repo.InsertIfAbsent(ctx, newRecord("tp_second", &key, 1, week))
		if err != nil || created {
			t.Fatalf("expected conflict, got created=%v err=%v", created, err)
		}
		if winner.Token != "tp_first" {
			t.Errorf("expected winner tp_first, got %s", winner.Token)
		}
		if rec, _ := repo.FindByToken(ctx, "tp_second"); rec != nil {
			t.Errorf("losing record must not be stored")
		}
	})

	t.Run("TokenCollision", func(t *testing.T) {
		if _, _, err := repo.InsertIfAbsent(ctx, newRecord("tp_dup", nil, 0, week)); err != nil {
			t.Fatalf("first insert: %v", err)
		}
		_, _, err := repo.InsertIfAbsent(ctx, newRecord("tp_dup", nil, 0, week))
		if !errors.Is(err, domain.ErrTokenCollision) {
			t.Errorf("expected ErrTokenCollision, got %v", err)
		}
	})

	t.Run("NilKeysDoNotConflict", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, created, err := repo.InsertIfAbsent(ctx, newRecord(fmt.Sprintf("tp_nokey_%d", i), nil, 0, week))
			if err != nil || !created {
				t.Errorf("insert %d: created=%v err=%v", i, created, err)
			}
		}
	})

	t.Run("ConsumeUntilExhausted", func(t *testing.T) {
		if _, _, err := repo.InsertIfAbsent(ctx, newRecord("tp_cap", nil, 2, week)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		for i := 1; i <= 2; i++ {
			rec, err := repo.ConsumeUse(ctx, "tp_cap", now)
			if err != nil {
				t.Fatalf("consume %d: %v", i, err)
			}
			if rec.Uses != i {
				t.Errorf("consume %d: uses=%d", i, rec.Uses)
			}
		}
		if _, err := repo.ConsumeUse(ctx, "tp_cap", now); !errors.Is(err, domain.ErrUsesExhausted) {
			t.Errorf("expected ErrUsesExhausted, got %v", err)
		}
		rec, _ := repo.FindByToken(ctx, "tp_cap")
		if rec.Uses != 2 {
			t.Errorf("uses must stay at cap, got %d", rec.Uses)
		}
	})

	t.Run("ConsumeUnlimited", func(t *testing.T) {
		if _, _, err := repo.InsertIfAbsent(ctx, newRecord("tp_unlimited", nil, 0, domain.NeverExpires)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		for i := 0; i < 10; i++ {
			if _, err := repo.ConsumeUse(ctx, "tp_unlimited", now); err != nil {
				t.Fatalf("consume %d: %v", i, err)
			}
		}
	})

	t.Run("ConsumeExpiredBeforeExhausted", func(t *testing.T) {
		if _, _, err := repo.InsertIfAbsent(ctx, newRecord("tp_old", nil, 5, now.Add(-time.Minute))); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := repo.ConsumeUse(ctx, "tp_old", now); !errors.Is(err, domain.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
		rec, _ := repo.FindByToken(ctx, "tp_old")
		if rec.Uses != 0 {
			t.Errorf("expired consume must not increment, got %d", rec.Uses)
		}
	})

	t.Run("ConsumeNotFound", func(t *testing.T) {
		if _, err := repo.ConsumeUse(ctx, "tp_nothing", now); !errors.Is(err, domain.ErrTokenNotFound) {
			t.Errorf("expected ErrTokenNotFound, got %v", err)
		}
	})

	t.Run("ConcurrentConsume", func(t *testing.T) {
		const maxUses, callers = 5, 25
		if _, _, err := repo.InsertIfAbsent(ctx, newRecord("tp_race", nil, maxUses, week)); err != nil {
			t.Fatalf("insert: %v", err)
		}

		var ok, exhausted atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := repo.ConsumeUse(ctx, "tp_race", now)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, domain.ErrUsesExhausted):
					exhausted.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		if ok.Load() != maxUses {
			t.Errorf("expected exactly %d successes, got %d", maxUses, ok.Load())
		}
		if exhausted.Load() != callers-maxUses {
			t.Errorf("expected %d exhausted, got %d", callers-maxUses, exhausted.Load())
		}
		rec, _ := repo.FindByToken(ctx, "tp_race")
		if rec.Uses != maxUses {
			t.Errorf("uses exceeded cap: %d", rec.Uses)
		}
	})

	t.Run("ConcurrentInsertSameKey", func(t *testing.T) {
		const callers = 10
		key := "order-race"
		var created atomic.Int32
		tokens := make([]string, callers)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				stored, isNew, err := repo.InsertIfAbsent(ctx, newRecord(fmt.Sprintf("tp_race_ins_%d", i), &key, 1, week))
				if err != nil {
					t.Errorf("insert %d: %v", i, err)
					return
				}
				if isNew {
					created.Add(1)
				}
				tokens[i] = stored.Token
			}(i)
		}
		close(start)
		wg.Wait()

		if created.Load() != 1 {
			t.Errorf("expected exactly one created record, got %d", created.Load())
		}
		for i := 1; i < callers; i++ {
			if tokens[i] != tokens[0] {
				t.Errorf("callers saw different winners: %s vs %s", tokens[i], tokens[0])
			}
		}
	})
}
