package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

// SearchHistoryRepo owns tb_search_history and its child tb_search_results.
// The history insert returns the new id; every downstream insert (keywords,
// relationships, results) carries that id.
type SearchHistoryRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewSearchHistoryRepo(pool *db.Pool, baseLog *logger.Logger) *SearchHistoryRepo {
	return &SearchHistoryRepo{pool: pool, log: baseLog.With("repo", "SearchHistoryRepo")}
}

func (r *SearchHistoryRepo) CreateTables(ctx context.Context, schema string) error {
	historySQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	request_id TEXT NOT NULL,
	digest CHAR(64) NOT NULL DEFAULT '',
	user_profile TEXT NOT NULL DEFAULT '',
	top_three_topics JSONB NOT NULL DEFAULT '[]',
	biggest_challenge TEXT NOT NULL DEFAULT '',
	response TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, qual(schema, TableSearchHistory), qual(schema, TableProjects))
	if err := r.pool.Exec(ctx, historySQL); err != nil {
		return err
	}
	resultsSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	search_history_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	file TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	relevance_explanation TEXT NOT NULL DEFAULT '',
	relevancy TEXT NOT NULL DEFAULT 'NOT_RELEVANT',
	score INT NOT NULL DEFAULT 0
)`, qual(schema, TableSearchResults), qual(schema, TableSearchHistory))
	return r.pool.Exec(ctx, resultsSQL)
}

func (r *SearchHistoryRepo) DropTables(ctx context.Context, schema string) error {
	if err := r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TableSearchResults))); err != nil {
		return err
	}
	return r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TableSearchHistory)))
}

func (r *SearchHistoryRepo) Insert(ctx context.Context, schema string, h *types.SearchHistory) (int64, error) {
	topics, err := json.Marshal(h.TopThreeTopics)
	if err != nil {
		return 0, fmt.Errorf("marshal topics: %w", err)
	}
	sql := fmt.Sprintf(`
INSERT INTO %s (project_id, request_id, digest, user_profile, top_three_topics, biggest_challenge, response)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, qual(schema, TableSearchHistory))
	return r.pool.ExecReturningInt(ctx, sql,
		h.ProjectID, h.RequestID, h.Digest, h.UserProfile, topics, h.BiggestChallenge, h.Response)
}

// FindFreshByDigest returns the newest completed search for the same
// normalized request within the result TTL window, or nil on a cache miss.
// A search counts as completed once it has persisted results.
func (r *SearchHistoryRepo) FindFreshByDigest(ctx context.Context, schema string, projectID int64, digest string) (*types.SearchHistory, error) {
	sql := fmt.Sprintf(`
SELECT h.id, h.project_id, h.request_id, h.user_profile, h.top_three_topics, h.biggest_challenge, h.response, h.created_at
FROM %s h
WHERE h.project_id = $1 AND h.digest = $2
  AND h.created_at > now() - interval '30 days'
  AND EXISTS (SELECT 1 FROM %s res WHERE res.search_history_id = h.id)
ORDER BY h.created_at DESC
LIMIT 1`, qual(schema, TableSearchHistory), qual(schema, TableSearchResults))
	row, err := r.pool.QueryRow(ctx, sql, projectID, digest)
	if err != nil {
		return nil, err
	}
	var (
		h      types.SearchHistory
		topics []byte
	)
	if err := row.Scan(&h.ID, &h.ProjectID, &h.RequestID, &h.UserProfile, &topics, &h.BiggestChallenge, &h.Response, &h.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	h.Digest = digest
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &h.TopThreeTopics); err != nil {
			return nil, fmt.Errorf("decode topics: %w", err)
		}
	}
	return &h, nil
}

func (r *SearchHistoryRepo) UpdateResponse(ctx context.Context, schema string, searchID int64, response string) error {
	sql := fmt.Sprintf(`UPDATE %s SET response = $1 WHERE id = $2`, qual(schema, TableSearchHistory))
	return r.pool.Exec(ctx, sql, response, searchID)
}

func (r *SearchHistoryRepo) InsertResults(ctx context.Context, schema string, searchID int64, results []types.DocumentResult) error {
	sql := fmt.Sprintf(`
INSERT INTO %s (search_history_id, file, summary, relevance_explanation, relevancy, score)
VALUES ($1, $2, $3, $4, $5, $6)`, qual(schema, TableSearchResults))
	for _, res := range results {
		if err := r.pool.Exec(ctx, sql, searchID, res.File, res.Summary,
			res.RelevanceExplanation, string(res.Relevancy), res.Relevancy.Weight()); err != nil {
			return err
		}
	}
	return nil
}

func (r *SearchHistoryRepo) FindResults(ctx context.Context, schema string, searchID int64) ([]types.DocumentResult, error) {
	sql := fmt.Sprintf(`
SELECT file, summary, relevance_explanation, relevancy FROM %s
WHERE search_history_id = $1 ORDER BY score DESC`, qual(schema, TableSearchResults))
	rows, err := r.pool.Query(ctx, sql, searchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.DocumentResult
	for rows.Next() {
		var (
			res       types.DocumentResult
			relevancy string
		)
		if err := rows.Scan(&res.File, &res.Summary, &res.RelevanceExplanation, &relevancy); err != nil {
			return nil, err
		}
		res.Relevancy = types.ParseRelevancy(relevancy)
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *SearchHistoryRepo) FindByProject(ctx context.Context, schema string, projectID int64, limit int) ([]types.SearchHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	sql := fmt.Sprintf(`
SELECT id, project_id, request_id, user_profile, top_three_topics, biggest_challenge, response, created_at
FROM %s WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`, qual(schema, TableSearchHistory))
	rows, err := r.pool.Query(ctx, sql, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.SearchHistory
	for rows.Next() {
		var (
			h      types.SearchHistory
			topics []byte
		)
		if err := rows.Scan(&h.ID, &h.ProjectID, &h.RequestID, &h.UserProfile, &topics, &h.BiggestChallenge, &h.Response, &h.CreatedAt); err != nil {
			return nil, err
		}
		if len(topics) > 0 {
			if err := json.Unmarshal(topics, &h.TopThreeTopics); err != nil {
				return nil, fmt.Errorf("decode topics: %w", err)
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
