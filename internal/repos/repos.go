package repos

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/logger"
)

// Per-tenant table names. Every tenant schema carries the full set; the
// global public schema carries only tb_admin_users.
const (
	TableProjects             = "tb_projects"
	TableAdminUsers           = "tb_admin_users"
	TableKeywords             = "tb_keywords"
	TableRelationships        = "tb_relationships"
	TablePathLinks            = "tb_path_links"
	TableProfiles             = "tb_profiles"
	TableSearchHistory        = "tb_search_history"
	TableSearchResults        = "tb_search_results"
	TableTopics               = "tb_topics"
	TableTopicsWithCentrality = "tb_topics_with_centrality"
	TableExpandedEntities     = "tb_expanded_entities"
)

// qual returns the sanitized schema-qualified table name. Schema names come
// from slugified token subjects, never raw user input, but they are still
// quoted through pgx to be safe in DDL string interpolation.
func qual(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

type Repos struct {
	Schemas          *SchemaRepo
	Projects         *ProjectRepo
	AdminUsers       *AdminUserRepo
	Keywords         *KeywordRepo
	Relationships    *RelationshipRepo
	PathLinks        *PathLinkRepo
	Profiles         *ProfileRepo
	SearchHistory    *SearchHistoryRepo
	Topics           *TopicRepo
	CentralityTopics *CentralityTopicRepo
	ExpandedEntities *ExpandedEntityRepo
}

func New(pool *db.Pool, log *logger.Logger) *Repos {
	return &Repos{
		Schemas:          NewSchemaRepo(pool, log),
		Projects:         NewProjectRepo(pool, log),
		AdminUsers:       NewAdminUserRepo(pool, log),
		Keywords:         NewKeywordRepo(pool, log),
		Relationships:    NewRelationshipRepo(pool, log),
		PathLinks:        NewPathLinkRepo(pool, log),
		Profiles:         NewProfileRepo(pool, log),
		SearchHistory:    NewSearchHistoryRepo(pool, log),
		Topics:           NewTopicRepo(pool, log),
		CentralityTopics: NewCentralityTopicRepo(pool, log),
		ExpandedEntities: NewExpandedEntityRepo(pool, log),
	}
}

// ProvisionTenant creates the tenant schema and every per-tenant table.
func (r *Repos) ProvisionTenant(ctx context.Context, schema string) error {
	if err := r.Schemas.Create(ctx, schema); err != nil {
		return err
	}
	steps := []func(context.Context, string) error{
		r.Projects.CreateTable,
		r.SearchHistory.CreateTables,
		r.Keywords.CreateTable,
		r.Relationships.CreateTable,
		r.PathLinks.CreateTable,
		r.Profiles.CreateTable,
		r.Topics.CreateTable,
		r.CentralityTopics.CreateTable,
		r.ExpandedEntities.CreateTable,
	}
	for _, step := range steps {
		if err := step(ctx, schema); err != nil {
			return fmt.Errorf("provision tenant %s: %w", schema, err)
		}
	}
	return nil
}
