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

type ProjectRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewProjectRepo(pool *db.Pool, baseLog *logger.Logger) *ProjectRepo {
	return &ProjectRepo{pool: pool, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *ProjectRepo) CreateTable(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	engine TEXT NOT NULL,
	name TEXT NOT NULL,
	input_files JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'not-started',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (engine, name)
)`, qual(schema, TableProjects))
	return r.pool.Exec(ctx, sql)
}

func (r *ProjectRepo) DropTable(ctx context.Context, schema string) error {
	return r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TableProjects)))
}

// Upsert inserts the project or refreshes updated_at/input_files/status on
// the (engine, name) natural key, returning the row id either way.
func (r *ProjectRepo) Upsert(ctx context.Context, schema string, p *types.Project) (int64, error) {
	files, err := json.Marshal(p.InputFiles)
	if err != nil {
		return 0, fmt.Errorf("marshal input files: %w", err)
	}
	status := p.Status
	if status == "" {
		status = types.IndexNotStarted
	}
	sql := fmt.Sprintf(`
INSERT INTO %s (engine, name, input_files, status, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (engine, name) DO UPDATE
SET input_files = EXCLUDED.input_files, status = EXCLUDED.status, updated_at = now()
RETURNING id`, qual(schema, TableProjects))
	return r.pool.ExecReturningInt(ctx, sql, string(p.Engine), p.Name, files, string(status))
}

func (r *ProjectRepo) SetStatus(ctx context.Context, schema string, id int64, status types.IndexingStatus) error {
	sql := fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = now() WHERE id = $2`, qual(schema, TableProjects))
	return r.pool.Exec(ctx, sql, string(status), id)
}

func (r *ProjectRepo) FindByEngine(ctx context.Context, schema string, engine types.Engine) ([]types.Project, error) {
	sql := fmt.Sprintf(`SELECT id, engine, name, input_files, status, updated_at FROM %s WHERE engine = $1 ORDER BY name`,
		qual(schema, TableProjects))
	rows, err := r.pool.Query(ctx, sql, string(engine))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProjectRepo) FindByName(ctx context.Context, schema string, engine types.Engine, name string) (*types.Project, error) {
	sql := fmt.Sprintf(`SELECT id, engine, name, input_files, status, updated_at FROM %s WHERE engine = $1 AND name = $2`,
		qual(schema, TableProjects))
	rows, err := r.pool.Query(ctx, sql, string(engine), name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanProject(rows.Scan)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes the project row; every dependent per-tenant row goes with it
// through the cascade FKs.
func (r *ProjectRepo) Delete(ctx context.Context, schema string, engine types.Engine, name string) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE engine = $1 AND name = $2`, qual(schema, TableProjects))
	return r.pool.Exec(ctx, sql, string(engine), name)
}

func scanProject(scan func(...any) error) (types.Project, error) {
	var (
		p       types.Project
		files   []byte
		status  string
		engine  string
		updated time.Time
	)
	if err := scan(&p.ID, &engine, &p.Name, &files, &status, &updated); err != nil {
		return p, err
	}
	p.Engine = types.Engine(engine)
	p.Status = types.IndexingStatus(status)
	p.UpdatedAt = updated
	if len(files) > 0 {
		if err := json.Unmarshal(files, &p.InputFiles); err != nil {
			return p, fmt.Errorf("decode input files: %w", err)
		}
	}
	return p, nil
}
