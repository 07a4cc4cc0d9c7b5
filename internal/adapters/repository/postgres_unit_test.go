package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/poyrazK/tourpass/internal/core/domain"
)

var tokenCols = []string{"token", "idempotency_key", "resource_id", "created_at", "expires_at", "uses", "max_uses"}

func TestPostgresRepository_Unit(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	week := now.Add(7 * 24 * time.Hour)
	key := "order-1"

	t.Run("FindByIdempotencyKey", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM access_tokens WHERE idempotency_key = \$1`).
			WithArgs(key).
			WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("tp_a", key, "Town", now, week, 0, 1))

		rec, err := repo.FindByIdempotencyKey(ctx, key)
		if err != nil {
			t.Fatalf("FindByIdempotencyKey failed: %v", err)
		}
		if rec == nil || rec.Token != "tp_a" || rec.IdempotencyKey == nil || *rec.IdempotencyKey != key || rec.ResourceID != domain.ResourceTown {
			t.Errorf("Unexpected record: %+v", rec)
		}
	})

	t.Run("FindByIdempotencyKey_Missing", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM access_tokens WHERE idempotency_key = \$1`).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(tokenCols))

		rec, err := repo.FindByIdempotencyKey(ctx, "nope")
		if err != nil || rec != nil {
			t.Errorf("expected nil, nil; got %+v, %v", rec, err)
		}
	})

	t.Run("InsertIfAbsent_Created", func(t *testing.T) {
		rec := &domain.TokenRecord{Token: "tp_b", IdempotencyKey: &key, ResourceID: domain.ResourceRoss, CreatedAt: now, ExpiresAt: week, MaxUses: 3}
		mock.ExpectQuery(`INSERT INTO access_tokens (.+) ON CONFLICT DO NOTHING RETURNING`).
			WithArgs("tp_b", key, "Ross", sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 3).
			WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("tp_b", key, "Ross", now, week, 0, 3))

		stored, created, err := repo.InsertIfAbsent(ctx, rec)
		if err != nil || !created {
			t.Fatalf("InsertIfAbsent failed: created=%v err=%v", created, err)
		}
		if stored.Token != "tp_b" || stored.MaxUses != 3 {
			t.Errorf("Unexpected record: %+v", stored)
		}
	})

	t.Run("InsertIfAbsent_Conflict", func(t *testing.T) {
		rec := &domain.TokenRecord{Token: "tp_c", IdempotencyKey: &key, ResourceID: domain.ResourceRoss, CreatedAt: now, ExpiresAt: week}
		mock.ExpectQuery(`INSERT INTO access_tokens`).
			WillReturnRows(sqlmock.NewRows(tokenCols))
		mock.ExpectQuery(`SELECT (.+) FROM access_tokens WHERE idempotency_key = \$1`).
			WithArgs(key).
			WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("tp_b", key, "Ross", now, week, 0, 3))

		stored, created, err := repo.InsertIfAbsent(ctx, rec)
		if err != nil || created {
			t.Fatalf("expected conflict, got created=%v err=%v", created, err)
		}
		if stored.Token != "tp_b" {
			t.Errorf("expected winner tp_b, got %s", stored.Token)
		}
	})

	t.Run("InsertIfAbsent_Collision", func(t *testing.T) {
		rec := &domain.TokenRecord{Token: "tp_b", ResourceID: domain.ResourceRoss, CreatedAt: now, ExpiresAt: week}
		mock.ExpectQuery(`INSERT INTO access_tokens`).
			WithArgs("tp_b", nil, "Ross", sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0).
			WillReturnRows(sqlmock.NewRows(tokenCols))

		_, _, err := repo.InsertIfAbsent(ctx, rec)
		if !errors.Is(err, domain.ErrTokenCollision) {
			t.Errorf("expected ErrTokenCollision, got %v", err)
		}
	})

	t.Run("ConsumeUse_OK", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE access_tokens SET uses = uses \+ 1 WHERE token = \$1 AND expires_at > \$2 AND \(max_uses = 0 OR uses < max_uses\)`).
			WithArgs("tp_b", now).
			WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("tp_b", key, "Ross", now, week, 1, 3))

		rec, err := repo.ConsumeUse(ctx, "tp_b", now)
		if err != nil {
			t.Fatalf("ConsumeUse failed: %v", err)
		}
		if rec.Uses != 1 {
			t.Errorf("expected uses=1, got %d", rec.Uses)
		}
	})

	t.Run("ConsumeUse_Classify", func(t *testing.T) {
		tests := []struct {
			name string
			rows *sqlmock.Rows
			want error
		}{
			{"not found", sqlmock.NewRows(tokenCols), domain.ErrTokenNotFound},
			{"expired", sqlmock.NewRows(tokenCols).AddRow("tp_x", nil, "Town", now.Add(-48*time.Hour), now.Add(-time.Hour), 0, 3), domain.ErrTokenExpired},
			{"exhausted", sqlmock.NewRows(tokenCols).AddRow("tp_x", nil, "Town", now, week, 3, 3), domain.ErrUsesExhausted},
		}
		for _, tt := range tests {
			mock.ExpectQuery(`UPDATE access_tokens`).
				WithArgs("tp_x", now).
				WillReturnRows(sqlmock.NewRows(tokenCols))
			mock.ExpectQuery(`SELECT (.+) FROM access_tokens WHERE token = \$1`).
				WithArgs("tp_x").
				WillReturnRows(tt.rows)

			_, err := repo.ConsumeUse(ctx, "tp_x", now)
			if !errors.Is(err, tt.want) {
				t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
			}
		}
	})

	t.Run("ConsumeUse_DBError", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE access_tokens`).
			WillReturnError(errors.New("connection reset"))

		if _, err := repo.ConsumeUse(ctx, "tp_y", now); err == nil {
			t.Errorf("expected error")
		}
	})

	t.Run("Migrate", func(t *testing.T) {
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS access_tokens`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		if err := repo.Migrate(ctx); err != nil {
			t.Errorf("Migrate failed: %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		mock.ExpectPing()
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
