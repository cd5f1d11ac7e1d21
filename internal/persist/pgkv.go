package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pwa-modeller/overlay/internal/dbpool"
)

const pgQueryTimeout = 10 * time.Second

// PostgresKV stores keys in the overlay_kv table, for setups where
// overlay data should live next to other team infrastructure instead
// of a local file. Schema is managed by the goose migrations in
// internal/db.
type PostgresKV struct {
	pool *dbpool.Pool
}

// NewPostgresKV wraps an existing pool.
func NewPostgresKV(pool *dbpool.Pool) *PostgresKV {
	return &PostgresKV{pool: pool}
}

func (p *PostgresKV) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), pgQueryTimeout)
}

func (p *PostgresKV) Get(key string) (string, bool, error) {
	ctx, cancel := p.withTimeout()
	defer cancel()

	var value string
	err := p.pool.QueryRow(ctx, "SELECT value FROM overlay_kv WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

func (p *PostgresKV) Set(key, value string) error {
	ctx, cancel := p.withTimeout()
	defer cancel()

	_, err := p.pool.Exec(ctx,
		`INSERT INTO overlay_kv (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (p *PostgresKV) Delete(key string) error {
	ctx, cancel := p.withTimeout()
	defer cancel()

	if _, err := p.pool.Exec(ctx, "DELETE FROM overlay_kv WHERE key = $1", key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
