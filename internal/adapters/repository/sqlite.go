package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	_ "modernc.org/sqlite"
)

// SQLiteRepository implements ports.TokenRepository on a single SQLite file.
// Timestamps are stored as unix milliseconds so range comparisons stay numeric.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (and migrates) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	dsn := "file:" + path
	if !strings.Contains(path, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS access_tokens (
			token TEXT PRIMARY KEY,
			idempotency_key TEXT UNIQUE,
			resource_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			uses INTEGER NOT NULL DEFAULT 0 CHECK (uses >= 0),
			max_uses INTEGER NOT NULL DEFAULT 0 CHECK (max_uses >= 0),
			CHECK (max_uses = 0 OR uses <= max_uses)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_tokens_expires_at ON access_tokens(expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) scanRecord(row rowScanner) (*domain.TokenRecord, error) {
	var rec domain.TokenRecord
	var key sql.NullString
	var createdAt, expiresAt int64
	if err := row.Scan(&rec.Token, &key, &rec.ResourceID, &createdAt, &expiresAt, &rec.Uses, &rec.MaxUses); err != nil {
		return nil, err
	}
	rec.IdempotencyKey = keyPtr(key)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &rec, nil
}

func (r *SQLiteRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.TokenRecord, error) {
	rec, err := r.scanRecord(r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE idempotency_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *SQLiteRepository) FindByToken(ctx context.Context, token string) (*domain.TokenRecord, error) {
	rec, err := r.scanRecord(r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *SQLiteRepository) InsertIfAbsent(ctx context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, bool, error) {
	query := `INSERT INTO access_tokens (` + tokenColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING RETURNING ` + tokenColumns
	stored, err := r.scanRecord(r.db.QueryRowContext(ctx, query,
		rec.Token, nullableKey(rec.IdempotencyKey), string(rec.ResourceID),
		rec.CreatedAt.UnixMilli(), rec.ExpiresAt.UnixMilli(), rec.Uses, rec.MaxUses))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	if rec.IdempotencyKey != nil {
		winner, err := r.FindByIdempotencyKey(ctx, *rec.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if winner != nil {
			return winner, false, nil
		}
	}
	return nil, false, domain.ErrTokenCollision
}

func (r *SQLiteRepository) ConsumeUse(ctx context.Context, token string, now time.Time) (*domain.TokenRecord, error) {
	query := `UPDATE access_tokens SET uses = uses + 1
		WHERE token = ? AND expires_at > ? AND (max_uses = 0 OR uses < max_uses)
		RETURNING ` + tokenColumns
	rec, err := r.scanRecord(r.db.QueryRowContext(ctx, query, token, now.UnixMilli()))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, err := r.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return nil, classifyUnconsumed(current, now)
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
