package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/onepointltd/kbserver/internal/cache"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/repos"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/types"
)

// CentralityCacheKey is the per-project cache entry the indexer fills with
// ranked entities; matching reads it, ingestion invalidates it.
const CentralityCacheKey = "centrality_entities"

const (
	defaultTopN           = 25
	defaultScoreThreshold = 0.5
	// dedupCosineThreshold is the name-embedding similarity above which two
	// surviving entities count as duplicates.
	dedupCosineThreshold = 0.51
)

// Matcher scores the highest-centrality entities of a project against a user
// profile and returns the survivors bucketed by type. Results are digest
// cached for thirty days in tb_expanded_entities.
type Matcher struct {
	log        *logger.Logger
	llm        services.LLMClient
	expanded   *repos.ExpandedEntityRepo
	centrality *repos.CentralityTopicRepo
}

func NewMatcher(llm services.LLMClient, expanded *repos.ExpandedEntityRepo, centrality *repos.CentralityTopicRepo, baseLog *logger.Logger) *Matcher {
	return &Matcher{
		log:        baseLog.With("service", "Matcher"),
		llm:        llm,
		expanded:   expanded,
		centrality: centrality,
	}
}

// Match runs the full entity-match flow for one project. The persistence
// upsert is last-write-wins: concurrent identical requests may both compute,
// which is fine because the payloads are equal.
func (m *Matcher) Match(ctx context.Context, schema string, projectID int64, projectDir string, q *types.MatchQuery) (*types.MatchOutput, error) {
	digest, err := MatchQueryDigest(q)
	if err != nil {
		return nil, err
	}
	if cached, err := m.expanded.FindFresh(ctx, schema, projectID, digest); err != nil {
		m.log.Error("Expanded-entity cache lookup failed", "error", err)
	} else if cached != nil {
		m.log.Info("Expanded-entity cache hit", "project_id", projectID, "digest", digest)
		return cached, nil
	}

	candidates, err := m.candidates(ctx, schema, projectID, projectDir, q)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &types.MatchOutput{Entities: map[string][]types.MatchedEntity{}}, nil
	}

	scored, err := m.score(ctx, q, candidates)
	if err != nil {
		return nil, err
	}

	threshold := q.ScoreThreshold
	if threshold <= 0 {
		threshold = defaultScoreThreshold
	}
	survivors := make([]types.MatchedEntity, 0, len(scored))
	for _, e := range scored {
		if e.Score >= threshold {
			survivors = append(survivors, e)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool { return survivors[i].Score > survivors[j].Score })

	deduped, err := m.dedupe(ctx, survivors)
	if err != nil {
		return nil, err
	}

	out := &types.MatchOutput{Entities: map[string][]types.MatchedEntity{}}
	for _, e := range deduped {
		out.Entities[e.Type] = append(out.Entities[e.Type], e)
	}
	if err := m.expanded.Upsert(ctx, schema, projectID, digest, q, out); err != nil {
		m.log.Error("Expanded-entity upsert failed", "project_id", projectID, "error", err)
	}
	return out, nil
}

// candidates pulls the ranked entity list, preferring the per-project cache
// blob and falling back to the mirrored tb_topics_with_centrality rows.
func (m *Matcher) candidates(ctx context.Context, schema string, projectID int64, projectDir string, q *types.MatchQuery) ([]types.CentralityEntity, error) {
	var all []types.CentralityEntity
	found, err := cache.NewProjectCache(projectDir).Get(CentralityCacheKey, &all)
	if err != nil {
		return nil, fmt.Errorf("read centrality cache: %w", err)
	}
	if !found && m.centrality != nil {
		all, err = m.centrality.FindByProject(ctx, schema, projectID)
		if err != nil {
			return nil, fmt.Errorf("read centrality table: %w", err)
		}
	}
	return rankCandidates(all, q), nil
}

// rankCandidates filters by the requested entity types, orders by centrality,
// and keeps the top N.
func rankCandidates(all []types.CentralityEntity, q *types.MatchQuery) []types.CentralityEntity {
	wanted := make(map[string]bool, len(q.EntityTypes))
	for _, t := range q.EntityTypes {
		wanted[strings.ToLower(t)] = true
	}
	filtered := make([]types.CentralityEntity, 0, len(all))
	for _, e := range all {
		if len(wanted) > 0 && !wanted[strings.ToLower(e.Type)] {
			continue
		}
		filtered = append(filtered, e)
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Centrality > filtered[j].Centrality })

	topN := q.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	if len(filtered) > topN {
		filtered = filtered[:topN]
	}
	return filtered
}

const matchSystemPrompt = `You score knowledge-base entities against a user profile.
For each candidate entity, return a relevance score between 0 and 1 and a level:
"high" when the entity names a broad theme relevant to the profile, "low" when it
names a specific item. Keep every candidate in the output.`

func matchSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":  map[string]any{"type": "string"},
						"score": map[string]any{"type": "number"},
						"level": map[string]any{"type": "string", "enum": []string{"high", "low"}},
					},
					"required":             []string{"name", "score", "level"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"entities"},
		"additionalProperties": false,
	}
}

func (m *Matcher) score(ctx context.Context, q *types.MatchQuery, candidates []types.CentralityEntity) ([]types.MatchedEntity, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "User profile: %s\n", q.UserProfile)
	fmt.Fprintf(&user, "Topics of interest: %s\n", strings.Join(q.TopicsOfInterest, ", "))
	fmt.Fprintf(&user, "Biggest challenge: %s\n\nCandidate entities:\n", q.BiggestChallenge)
	for _, c := range candidates {
		fmt.Fprintf(&user, "- %s (%s): %s\n", c.Name, c.Type, c.Description)
	}

	out, err := m.llm.GenerateJSON(ctx, matchSystemPrompt, user.String(), nil, "entity_match", matchSchema())
	if err != nil {
		return nil, fmt.Errorf("entity scoring: %w", err)
	}

	byName := make(map[string]types.CentralityEntity, len(candidates))
	for _, c := range candidates {
		byName[strings.ToLower(c.Name)] = c
	}
	items, _ := out["entities"].([]any)
	scored := make([]types.MatchedEntity, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := obj["name"].(string)
		candidate, ok := byName[strings.ToLower(name)]
		if !ok {
			continue
		}
		score, _ := obj["score"].(float64)
		level, _ := obj["level"].(string)
		scored = append(scored, types.MatchedEntity{
			Name:        candidate.Name,
			Type:        candidate.Type,
			Score:       score,
			Level:       level,
			Description: candidate.Description,
		})
	}
	return scored, nil
}

// dedupe embeds the surviving entity names and drops any entity whose name
// embedding is too similar to an earlier kept one. When fewer than two would
// survive, the original set is returned untouched.
func (m *Matcher) dedupe(ctx context.Context, entities []types.MatchedEntity) ([]types.MatchedEntity, error) {
	if len(entities) <= 2 {
		return entities, nil
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	vectors, err := m.llm.Embed(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("dedup embedding: %w", err)
	}

	kept := make([]types.MatchedEntity, 0, len(entities))
	keptVectors := make([][]float32, 0, len(entities))
	for i, e := range entities {
		duplicate := false
		for _, kv := range keptVectors {
			if Cosine(vectors[i], kv) > dedupCosineThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, e)
		keptVectors = append(keptVectors, vectors[i])
	}
	if len(kept) < 2 {
		return entities, nil
	}
	return kept, nil
}

// Cosine returns the cosine similarity of two vectors; zero when either is
// empty or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
