package repos

import (
	"context"
	"fmt"

	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

type KeywordRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewKeywordRepo(pool *db.Pool, baseLog *logger.Logger) *KeywordRepo {
	return &KeywordRepo{pool: pool, log: baseLog.With("repo", "KeywordRepo")}
}

func (r *KeywordRepo) CreateTable(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	search_history_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	type TEXT NOT NULL CHECK (type IN ('high', 'low')),
	keyword TEXT NOT NULL,
	UNIQUE (keyword, search_history_id)
)`, qual(schema, TableKeywords), qual(schema, TableSearchHistory))
	return r.pool.Exec(ctx, sql)
}

func (r *KeywordRepo) DropTable(ctx context.Context, schema string) error {
	return r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TableKeywords)))
}

// InsertMany writes keywords for one search id, ignoring duplicates on the
// (keyword, search id) key.
func (r *KeywordRepo) InsertMany(ctx context.Context, schema string, searchID int64, kwType string, keywords []string) error {
	sql := fmt.Sprintf(`
INSERT INTO %s (search_history_id, type, keyword) VALUES ($1, $2, $3)
ON CONFLICT (keyword, search_history_id) DO NOTHING`, qual(schema, TableKeywords))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if err := r.pool.Exec(ctx, sql, searchID, kwType, kw); err != nil {
			return err
		}
	}
	return nil
}

func (r *KeywordRepo) FindBySearchID(ctx context.Context, schema string, searchID int64) ([]types.Keyword, error) {
	sql := fmt.Sprintf(`SELECT search_history_id, type, keyword FROM %s WHERE search_history_id = $1 ORDER BY type, keyword`,
		qual(schema, TableKeywords))
	rows, err := r.pool.Query(ctx, sql, searchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Keyword
	for rows.Next() {
		var kw types.Keyword
		if err := rows.Scan(&kw.SearchID, &kw.Type, &kw.Keyword); err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}
