package repository

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/tourpass/internal/core/ports"
)

// Options selects and configures a token store backend.
type Options struct {
	Driver        string // postgres, sqlite or redis
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Migrate       bool
}

// Store is a token repository that owns a connection.
type Store interface {
	ports.TokenRepository
	io.Closer
}

type postgresStore struct {
	*PostgresRepository
}

func (s postgresStore) Close() error { return s.db.Close() }

// Open connects to the configured backend. SQLite always migrates on open;
// Postgres only when opts.Migrate is set.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "postgres":
		db, err := sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo := NewPostgresRepository(db)
		if opts.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return postgresStore{repo}, nil
	case "sqlite":
		repo, err := NewSQLiteRepository(opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return repo, nil
	case "redis":
		repo := NewRedisRepository(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		if err := repo.Ping(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
