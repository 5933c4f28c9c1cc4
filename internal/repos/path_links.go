package repos

import (
	"context"
	"fmt"

	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

type PathLinkRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewPathLinkRepo(pool *db.Pool, baseLog *logger.Logger) *PathLinkRepo {
	return &PathLinkRepo{pool: pool, log: baseLog.With("repo", "PathLinkRepo")}
}

func (r *PathLinkRepo) CreateTable(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	link TEXT NOT NULL,
	UNIQUE (project_id, path, link)
)`, qual(schema, TablePathLinks), qual(schema, TableProjects))
	return r.pool.Exec(ctx, sql)
}

func (r *PathLinkRepo) DropTable(ctx context.Context, schema string) error {
	return r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TablePathLinks)))
}

func (r *PathLinkRepo) UpsertMany(ctx context.Context, schema string, links []types.PathLink) error {
	sql := fmt.Sprintf(`
INSERT INTO %s (project_id, path, link) VALUES ($1, $2, $3)
ON CONFLICT (project_id, path, link) DO NOTHING`, qual(schema, TablePathLinks))
	for _, l := range links {
		if err := r.pool.Exec(ctx, sql, l.ProjectID, l.Path, l.Link); err != nil {
			return err
		}
	}
	return nil
}

func (r *PathLinkRepo) FindByProject(ctx context.Context, schema string, projectID int64) ([]types.PathLink, error) {
	sql := fmt.Sprintf(`SELECT project_id, path, link FROM %s WHERE project_id = $1 ORDER BY path, link`,
		qual(schema, TablePathLinks))
	rows, err := r.pool.Query(ctx, sql, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.PathLink
	for rows.Next() {
		var l types.PathLink
		if err := rows.Scan(&l.ProjectID, &l.Path, &l.Link); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PathLinkRepo) FindByPath(ctx context.Context, schema string, projectID int64, path string) ([]string, error) {
	sql := fmt.Sprintf(`SELECT link FROM %s WHERE project_id = $1 AND path = $2 ORDER BY link`,
		qual(schema, TablePathLinks))
	rows, err := r.pool.Query(ctx, sql, projectID, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}
