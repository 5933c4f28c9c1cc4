package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

// expandedEntityTTL bounds reuse of a digest-cached match output.
const expandedEntityTTL = 30 * 24 * time.Hour

// ExpandedEntityRepo is the content-addressed cache for entity matching:
// the canonical JSON of a match query is hashed to a digest, and the match
// output is reused while the row is active and fresh. Concurrent writers for
// the same digest resolve last-write-wins through the upsert.
type ExpandedEntityRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewExpandedEntityRepo(pool *db.Pool, baseLog *logger.Logger) *ExpandedEntityRepo {
	return &ExpandedEntityRepo{pool: pool, log: baseLog.With("repo", "ExpandedEntityRepo")}
}

func (r *ExpandedEntityRepo) CreateTable(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	digest CHAR(64) NOT NULL,
	query JSONB NOT NULL DEFAULT '{}',
	output JSONB NOT NULL DEFAULT '{}',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, digest)
)`, qual(schema, TableExpandedEntities), qual(schema, TableProjects))
	return r.pool.Exec(ctx, sql)
}

func (r *ExpandedEntityRepo) DropTable(ctx context.Context, schema string) error {
	return r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TableExpandedEntities)))
}

func (r *ExpandedEntityRepo) Upsert(ctx context.Context, schema string, projectID int64, digest string, query *types.MatchQuery, output *types.MatchOutput) error {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("marshal match query: %w", err)
	}
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal match output: %w", err)
	}
	sql := fmt.Sprintf(`
INSERT INTO %s (project_id, digest, query, output, active, updated_at)
VALUES ($1, $2, $3, $4, TRUE, now())
ON CONFLICT (project_id, digest) DO UPDATE
SET query = EXCLUDED.query, output = EXCLUDED.output, active = TRUE, updated_at = now()`,
		qual(schema, TableExpandedEntities))
	return r.pool.Exec(ctx, sql, projectID, digest, queryJSON, outputJSON)
}

// FindFresh returns the cached match output for a digest, requiring the row
// to be active and younger than the cache TTL.
func (r *ExpandedEntityRepo) FindFresh(ctx context.Context, schema string, projectID int64, digest string) (*types.MatchOutput, error) {
	sql := fmt.Sprintf(`
SELECT output FROM %s
WHERE project_id = $1 AND digest = $2 AND active AND updated_at > now() - $3::interval`,
		qual(schema, TableExpandedEntities))
	rows, err := r.pool.Query(ctx, sql, projectID, digest, fmt.Sprintf("%d hours", int(expandedEntityTTL.Hours())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var raw []byte
	if err := rows.Scan(&raw); err != nil {
		return nil, err
	}
	var out types.MatchOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode match output: %w", err)
	}
	return &out, nil
}

// Invalidate deactivates every cached row for a project, forcing recompute
// on the next lookup.
func (r *ExpandedEntityRepo) Invalidate(ctx context.Context, schema string, projectID int64) error {
	sql := fmt.Sprintf(`UPDATE %s SET active = FALSE WHERE project_id = $1`, qual(schema, TableExpandedEntities))
	return r.pool.Exec(ctx, sql, projectID)
}
