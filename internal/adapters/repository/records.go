package repository

import (
	"database/sql"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
)

const tokenColumns = `token, idempotency_key, resource_id, created_at, expires_at, uses, max_uses`

type rowScanner interface {
	Scan(dest ...any) error
}

func nullableKey(key *string) sql.NullString {
	if key == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *key, Valid: true}
}

func keyPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	k := ns.String
	return &k
}

// classifyUnconsumed explains why a conditional consume matched no row. rec is
// the state read afterwards; uses never decrease, so the verdict is stable.
func classifyUnconsumed(rec *domain.TokenRecord, now time.Time) error {
	switch {
	case rec == nil:
		return domain.ErrTokenNotFound
	case rec.Expired(now):
		return domain.ErrTokenExpired
	default:
		return domain.ErrUsesExhausted
	}
}
