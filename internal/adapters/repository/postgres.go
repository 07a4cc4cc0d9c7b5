package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
)

//go:embed schema.sql
var postgresSchema string

// PostgresRepository implements ports.TokenRepository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, postgresSchema)
	return err
}

func (r *PostgresRepository) scanRecord(row rowScanner) (*domain.TokenRecord, error) {
	var rec domain.TokenRecord
	var key sql.NullString
	if errScan := row.Scan(&rec.Token, &key, &rec.ResourceID, &rec.CreatedAt, &rec.ExpiresAt, &rec.Uses, &rec.MaxUses); errScan != nil {
		return nil, errScan
	}
	rec.IdempotencyKey = keyPtr(key)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return &rec, nil
}

func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.TokenRecord, error) {
	query := `SELECT ` + tokenColumns + ` FROM access_tokens WHERE idempotency_key = $1`
	rec, errRow := r.scanRecord(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return rec, nil
}

func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*domain.TokenRecord, error) {
	query := `SELECT ` + tokenColumns + ` FROM access_tokens WHERE token = $1`
	rec, errRow := r.scanRecord(r.db.QueryRowContext(ctx, query, token))
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return rec, nil
}

// InsertIfAbsent relies on the unique constraints: ON CONFLICT DO NOTHING makes
// concurrent inserts for one idempotency key resolve to a single row.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, bool, error) {
	query := `INSERT INTO access_tokens (` + tokenColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT DO NOTHING
	          RETURNING ` + tokenColumns
	stored, errRow := r.scanRecord(r.db.QueryRowContext(ctx, query,
		rec.Token, nullableKey(rec.IdempotencyKey), string(rec.ResourceID), rec.CreatedAt, rec.ExpiresAt, rec.Uses, rec.MaxUses))
	if errRow == nil {
		return stored, true, nil
	}
	if !errors.Is(errRow, sql.ErrNoRows) {
		return nil, false, errRow
	}

	if rec.IdempotencyKey != nil {
		winner, errFind := r.FindByIdempotencyKey(ctx, *rec.IdempotencyKey)
		if errFind != nil {
			return nil, false, errFind
		}
		if winner != nil {
			return winner, false, nil
		}
	}
	return nil, false, domain.ErrTokenCollision
}

// ConsumeUse performs the expiry check, cap check and increment as one
// conditional UPDATE.
func (r *PostgresRepository) ConsumeUse(ctx context.Context, token string, now time.Time) (*domain.TokenRecord, error) {
	query := `UPDATE access_tokens SET uses = uses + 1
	          WHERE token = $1 AND expires_at > $2 AND (max_uses = 0 OR uses < max_uses)
	          RETURNING ` + tokenColumns
	rec, errRow := r.scanRecord(r.db.QueryRowContext(ctx, query, token, now))
	if errRow == nil {
		return rec, nil
	}
	if !errors.Is(errRow, sql.ErrNoRows) {
		return nil, errRow
	}

	current, errFind := r.FindByToken(ctx, token)
	if errFind != nil {
		return nil, errFind
	}
	return nil, classifyUnconsumed(current, now)
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
