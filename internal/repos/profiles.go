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

// profileTTL bounds how long a scraped LinkedIn snapshot is served before a
// fresh scrape is required.
const profileTTL = 30 * 24 * time.Hour

type ProfileRepo struct {
	pool *db.Pool
	log  *logger.Logger
}

func NewProfileRepo(pool *db.Pool, baseLog *logger.Logger) *ProfileRepo {
	return &ProfileRepo{pool: pool, log: baseLog.With("repo", "ProfileRepo")}
}

func (r *ProfileRepo) CreateTable(ctx context.Context, schema string) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	linkedin_url TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	headline TEXT NOT NULL DEFAULT '',
	experiences JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, linkedin_url)
)`, qual(schema, TableProfiles), qual(schema, TableProjects))
	return r.pool.Exec(ctx, sql)
}

func (r *ProfileRepo) DropTable(ctx context.Context, schema string) error {
	return r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, qual(schema, TableProfiles)))
}

func (r *ProfileRepo) Upsert(ctx context.Context, schema string, p *types.Profile) error {
	experiences, err := json.Marshal(p.Experiences)
	if err != nil {
		return fmt.Errorf("marshal experiences: %w", err)
	}
	sql := fmt.Sprintf(`
INSERT INTO %s (project_id, linkedin_url, name, headline, experiences, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (project_id, linkedin_url) DO UPDATE
SET name = EXCLUDED.name, headline = EXCLUDED.headline,
    experiences = EXCLUDED.experiences, updated_at = now()`,
		qual(schema, TableProfiles))
	return r.pool.Exec(ctx, sql, p.ProjectID, p.LinkedInURL, p.Name, p.Headline, experiences)
}

// FindFresh returns the stored profile only while it is within the snapshot
// TTL; stale rows are treated as missing so the caller re-scrapes.
func (r *ProfileRepo) FindFresh(ctx context.Context, schema string, projectID int64, linkedinURL string) (*types.Profile, error) {
	sql := fmt.Sprintf(`
SELECT project_id, linkedin_url, name, headline, experiences, updated_at FROM %s
WHERE project_id = $1 AND linkedin_url = $2 AND updated_at > now() - $3::interval`,
		qual(schema, TableProfiles))
	rows, err := r.pool.Query(ctx, sql, projectID, linkedinURL, fmt.Sprintf("%d hours", int(profileTTL.Hours())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var (
		p           types.Profile
		experiences []byte
	)
	if err := rows.Scan(&p.ProjectID, &p.LinkedInURL, &p.Name, &p.Headline, &experiences, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(experiences) > 0 {
		if err := json.Unmarshal(experiences, &p.Experiences); err != nil {
			return nil, fmt.Errorf("decode experiences: %w", err)
		}
	}
	return &p, nil
}
