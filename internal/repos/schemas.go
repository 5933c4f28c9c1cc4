package repos

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
)

type SchemaRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewSchemaRepo(pool *db.Pool, baseLog *logger.Logger) *SchemaRepo {
	return &SchemaRepo{pool: pool, log: baseLog.With("repo", "SchemaRepo")}
}

func (r *SchemaRepo) Create(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{schema}.Sanitize())
	if err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

// Drop removes the schema and, via CASCADE, every per-tenant table in it.
func (r *SchemaRepo) Drop(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, pgx.Identifier{schema}.Sanitize())
	if err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("drop schema %s: %w", schema, err)
	}
	return nil
}

func (r *SchemaRepo) Exists(ctx context.Context, schema string) (bool, error) {
	row, err := r.pool.FetchOne(ctx,
		`SELECT schema_name FROM information_schema.schemata WHERE schema_name = $1`, schema)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}
