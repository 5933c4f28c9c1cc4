package repos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

type TopicRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewTopicRepo(pool *db.Pool, baseLog *logger.Logger) *TopicRepo {
	return &TopicRepo{pool: pool, log: baseLog.With("repo", "TopicRepo")}
}

func (r *TopicRepo) CreateTable(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	questions JSONB NOT NULL DEFAULT '[]',
	UNIQUE (project_id, name)
)`, qual(schema, TableTopics), qual(schema, TableProjects))
	return r.pool.Exec(ctx, sql)
}

func (r *TopicRepo) DropTable(ctx context.Context, schema string) error {
	return r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TableTopics)))
}

func (r *TopicRepo) Upsert(ctx context.Context, schema string, t *types.Topic) (int64, error) {
	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return 0, fmt.Errorf("marshal questions: %w", err)
	}
	sql := fmt.Sprintf(`
INSERT INTO %s (project_id, name, description, type, questions)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (project_id, name) DO UPDATE
SET description = EXCLUDED.description, type = EXCLUDED.type, questions = EXCLUDED.questions
RETURNING id`, qual(schema, TableTopics))
	return r.pool.ExecReturningInt(ctx, sql, t.ProjectID, t.Name, t.Description, t.Type, questions)
}

func (r *TopicRepo) FindByProject(ctx context.Context, schema string, projectID int64) ([]types.Topic, error) {
	sql := fmt.Sprintf(`
SELECT id, project_id, name, description, type, questions FROM %s
WHERE project_id = $1 ORDER BY name`, qual(schema, TableTopics))
	rows, err := r.pool.Query(ctx, sql, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Topic
	for rows.Next() {
		var (
			t         types.Topic
			questions []byte
		)
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Type, &questions); err != nil {
			return nil, err
		}
		if len(questions) > 0 {
			if err := json.Unmarshal(questions, &t.Questions); err != nil {
				return nil, fmt.Errorf("decode questions: %w", err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
