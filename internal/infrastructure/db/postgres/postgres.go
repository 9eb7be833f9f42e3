package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const defaultTimeout = 10 * time.Second

// Config captures the settings for establishing a Postgres connection.
type Config struct {
	DSN      string
	MaxConns int
	Timeout  time.Duration
}

// Database wraps the sqlx handle shared by the repositories.
type Database struct {
	*sqlx.DB
}

// Connect opens the pool and verifies connectivity.
func Connect(ctx context.Context, cfg Config) (*Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns / 2)
	}
	db.SetConnMaxLifetime(time.Hour)

	return &Database{DB: db}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close satisfies the same shutdown signature as the Mongo store.
func (d *Database) Close(context.Context) error {
	return d.DB.Close()
}

// RunMigrations creates the users and auth_events tables when missing.
func (d *Database) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(100) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'user',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS auth_events (
			id BIGSERIAL PRIMARY KEY,
			type VARCHAR(40) NOT NULL,
			user_id VARCHAR(64),
			email VARCHAR(255),
			ip VARCHAR(64),
			path TEXT,
			reason TEXT,
			occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
			processed_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_events_email ON auth_events(email, occurred_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_events_user ON auth_events(user_id, occurred_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
