package repos

import (
	"context"
	"fmt"

	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

// CentralityTopicRepo mirrors the indexer's centrality ranking into the tenant
// schema. The per-project file cache is the fast path; this table is the
// durable copy entity matching falls back to when the cache blob is absent.
type CentralityTopicRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewCentralityTopicRepo(pool *db.Pool, baseLog *logger.Logger) *CentralityTopicRepo {
	return &CentralityTopicRepo{pool: pool, log: baseLog.With("repo", "CentralityTopicRepo")}
}

func (r *CentralityTopicRepo) CreateTable(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	centrality DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (project_id, name)
)`, qual(schema, TableTopicsWithCentrality), qual(schema, TableProjects))
	return r.pool.Exec(ctx, sql)
}

func (r *CentralityTopicRepo) DropTable(ctx context.Context, schema string) error {
	return r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TableTopicsWithCentrality)))
}

// UpsertMany refreshes the ranking for one project on the (project, name) key.
func (r *CentralityTopicRepo) UpsertMany(ctx context.Context, schema string, projectID int64, entities []types.CentralityEntity) error {
	sql := fmt.Sprintf(`
INSERT INTO %s (project_id, name, type, description, centrality)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (project_id, name) DO UPDATE
SET type = EXCLUDED.type, description = EXCLUDED.description, centrality = EXCLUDED.centrality`,
		qual(schema, TableTopicsWithCentrality))
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		if err := r.pool.Exec(ctx, sql, projectID, e.Name, e.Type, e.Description, e.Centrality); err != nil {
			return err
		}
	}
	return nil
}

func (r *CentralityTopicRepo) FindByProject(ctx context.Context, schema string, projectID int64) ([]types.CentralityEntity, error) {
	sql := fmt.Sprintf(`
SELECT name, type, description, centrality FROM %s
WHERE project_id = $1 ORDER BY centrality DESC`, qual(schema, TableTopicsWithCentrality))
	rows, err := r.pool.Query(ctx, sql, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.CentralityEntity
	for rows.Next() {
		var e types.CentralityEntity
		if err := rows.Scan(&e.Name, &e.Type, &e.Description, &e.Centrality); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
