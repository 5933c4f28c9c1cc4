package repos

import (
	"context"
	"fmt"

	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
)

type RelationshipRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewRelationshipRepo(pool *db.Pool, baseLog *logger.Logger) *RelationshipRepo {
	return &RelationshipRepo{pool: pool, log: baseLog.With("repo", "RelationshipRepo")}
}

func (r *RelationshipRepo) CreateTable(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	search_history_id BIGINT NOT NULL UNIQUE REFERENCES %s (id) ON DELETE CASCADE,
	data JSONB NOT NULL DEFAULT '[]'
)`, qual(schema, TableRelationships), qual(schema, TableSearchHistory))
	return r.pool.Exec(ctx, sql)
}

func (r *RelationshipRepo) DropTable(ctx context.Context, schema string) error {
	return r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TableRelationships)))
}

// Upsert stores the relationship JSON blob for a search id; one blob per id.
func (r *RelationshipRepo) Upsert(ctx context.Context, schema string, searchID int64, data string) error {
	sql := fmt.Sprintf(`
INSERT INTO %s (search_history_id, data) VALUES ($1, $2)
ON CONFLICT (search_history_id) DO UPDATE SET data = EXCLUDED.data`,
		qual(schema, TableRelationships))
	return r.pool.Exec(ctx, sql, searchID, data)
}

func (r *RelationshipRepo) FindBySearchID(ctx context.Context, schema string, searchID int64) (string, error) {
	sql := fmt.Sprintf(`SELECT data FROM %s WHERE search_history_id = $1`, qual(schema, TableRelationships))
	rows, err := r.pool.Query(ctx, sql, searchID)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", rows.Err()
	}
	var data []byte
	if err := rows.Scan(&data); err != nil {
		return "", err
	}
	return string(data), nil
}
