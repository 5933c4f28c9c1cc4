package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onepointltd/kbserver/internal/config"
	"github.com/onepointltd/kbserver/internal/logger"
)

// Pool wraps the process-wide pgx connection pool. The underlying pool is
// built lazily on first use and shared by every caller; connections are
// acquired per statement.
type Pool struct {
	log *logger.Logger
	cfg config.DB

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func NewPool(cfg config.DB, log *logger.Logger) *Pool {
	return &Pool{log: log.With("service", "DBPool"), cfg: cfg}
}

func (p *Pool) acquire(ctx context.Context) (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		return p.pool, nil
	}
	poolCfg, err := pgxpool.ParseConfig(p.cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres connection string: %w", err)
	}
	poolCfg.MinConns = int32(p.cfg.PoolMinSize)
	poolCfg.MaxConns = int32(p.cfg.PoolMaxSize)
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	p.log.Info("Postgres pool initialized", "min", p.cfg.PoolMinSize, "max", p.cfg.PoolMaxSize)
	p.pool = pool
	return p.pool, nil
}

func (p *Pool) Exec(ctx context.Context, sql string, args ...any) error {
	pool, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (p *Pool) FetchAll(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	pool, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch all: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("fetch all collect: %w", err)
	}
	return out, nil
}

func (p *Pool) FetchOne(ctx context.Context, sql string, args ...any) (map[string]any, error) {
	pool, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch one: %w", err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch one collect: %w", err)
	}
	return row, nil
}

func (p *Pool) ExecReturningInt(ctx context.Context, sql string, args ...any) (int64, error) {
	pool, err := p.acquire(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := pool.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("exec returning: %w", err)
	}
	return id, nil
}

// Query exposes the raw pool for repos that scan into typed rows.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) (pgx.Row, error) {
	pool, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pool.QueryRow(ctx, sql, args...), nil
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}
