package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/onepointltd/kbserver/internal/engine"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

const (
	searchRetries = 5
	// caps applied on retry attempts after the first failure
	retryEntityCap   = 10
	retryRelationCap = 10
	retryDepthCap    = 10
	// only the first summarizeTopN references get summarized
	summarizeTopN = 10
)

// Input carries the resolved tenant/project coordinates of one
// relevant-documents run.
type Input struct {
	Schema     string
	ProjectID  int64
	ProjectDir string
	Engine     types.Engine
	Query      *types.DocumentSearchQuery
	Sink       types.ProgressSink
	// SinkFactory, when set, replaces Sink once the history row exists so a
	// persisting sink can key its writes by search id.
	SinkFactory func(searchID int64) types.ProgressSink
}

// historyStore is the slice of SearchHistoryRepo the pipeline drives.
type historyStore interface {
	Insert(ctx context.Context, schema string, h *types.SearchHistory) (int64, error)
	FindFreshByDigest(ctx context.Context, schema string, projectID int64, digest string) (*types.SearchHistory, error)
	FindResults(ctx context.Context, schema string, searchID int64) ([]types.DocumentResult, error)
	InsertResults(ctx context.Context, schema string, searchID int64, results []types.DocumentResult) error
	UpdateResponse(ctx context.Context, schema string, searchID int64, response string) error
}

// keywordStore persists expanded keywords under a search id.
type keywordStore interface {
	InsertMany(ctx context.Context, schema string, searchID int64, kwType string, keywords []string) error
}

// entityMatcher runs the profile-against-entities match.
type entityMatcher interface {
	Match(ctx context.Context, schema string, projectID int64, projectDir string, q *types.MatchQuery) (*types.MatchOutput, error)
}

// Pipeline orchestrates the relevant-documents flow: digest cache check,
// history insert, keyword expansion, engine search, entity matching, parallel
// summarization, ranking, persistence.
type Pipeline struct {
	log        *logger.Logger
	facade     *engine.Facade
	matcher    entityMatcher
	summarizer *Summarizer
	history    historyStore
	keywords   keywordStore
}

func NewPipeline(facade *engine.Facade, matcher entityMatcher, summarizer *Summarizer, history historyStore, keywords keywordStore, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log:        baseLog.With("service", "SearchPipeline"),
		facade:     facade,
		matcher:    matcher,
		summarizer: summarizer,
		history:    history,
		keywords:   keywords,
	}
}

func (p *Pipeline) RelevantDocuments(ctx context.Context, in Input) (*types.SearchResults, error) {
	q := in.Query
	sink := in.Sink
	if sink == nil {
		sink = types.NoopSink{}
	}
	eng := in.Engine
	if eng == "" {
		eng = types.EngineLight
	}
	requestID := uuid.NewString()

	digest, err := DocumentQueryDigest(q)
	if err != nil {
		return nil, err
	}
	if cached := p.cacheLookup(ctx, in, digest); cached != nil {
		sink.Notify("Returning cached search results")
		cached.RequestID = requestID
		return cached, nil
	}

	searchID, err := p.history.Insert(ctx, in.Schema, &types.SearchHistory{
		ProjectID:        in.ProjectID,
		RequestID:        requestID,
		Digest:           digest,
		UserProfile:      q.UserProfile,
		TopThreeTopics:   q.TopThreeTopics,
		BiggestChallenge: q.BiggestChallenge,
	})
	if err != nil {
		return nil, fmt.Errorf("insert search history: %w", err)
	}
	if in.SinkFactory != nil {
		sink = in.SinkFactory(searchID)
	}

	hl, ll, err := p.expandKeywords(ctx, in, eng, searchID, sink)
	if err != nil {
		return nil, err
	}

	resp, err := p.searchWithRetries(ctx, in, eng, hl, ll, sink)
	if err != nil {
		return nil, err
	}
	if resp.Structured == nil {
		// canned fail response or plain-text answer: nothing to summarize
		p.persist(ctx, in.Schema, searchID, resp.Text, nil)
		return &types.SearchResults{RequestID: requestID, SearchID: searchID, Results: []types.DocumentResult{}}, nil
	}

	if _, err := p.matcher.Match(ctx, in.Schema, in.ProjectID, in.ProjectDir, &types.MatchQuery{
		UserProfile:      q.UserProfile,
		TopicsOfInterest: q.TopThreeTopics,
		BiggestChallenge: q.BiggestChallenge,
		EntityTypes:      q.EntityTypes,
	}); err != nil {
		// matching feeds the expanded-entities cache, not this response
		p.log.Error("Entity matching failed", "request_id", requestID, "error", err)
	}

	files := referenceFiles(resp.Structured.References, summarizeTopN)
	sink.Notify(fmt.Sprintf("Summarizing %d documents", len(files)))
	results, err := p.summarizer.SummarizeDocuments(ctx, in.ProjectDir, q.Question, q.UserProfile, files)
	if err != nil {
		return nil, err
	}
	results = Rank(results)

	p.persist(ctx, in.Schema, searchID, resp.Structured.Response, results)
	return &types.SearchResults{RequestID: requestID, SearchID: searchID, Results: results}, nil
}

// cacheLookup returns stored results for an identical normalized request made
// within the last thirty days, or nil on a miss. Lookup failures degrade to a
// miss.
func (p *Pipeline) cacheLookup(ctx context.Context, in Input, digest string) *types.SearchResults {
	h, err := p.history.FindFreshByDigest(ctx, in.Schema, in.ProjectID, digest)
	if err != nil {
		p.log.Error("Digest cache lookup failed", "error", err)
		return nil
	}
	if h == nil {
		return nil
	}
	results, err := p.history.FindResults(ctx, in.Schema, h.ID)
	if err != nil {
		p.log.Error("Digest cache result fetch failed", "search_id", h.ID, "error", err)
		return nil
	}
	p.log.Info("Digest cache hit", "project_id", in.ProjectID, "search_id", h.ID)
	return &types.SearchResults{SearchID: h.ID, Results: results}
}

func (p *Pipeline) expandKeywords(ctx context.Context, in Input, eng types.Engine, searchID int64, sink types.ProgressSink) ([]string, []string, error) {
	extractedHL, extractedLL, err := p.facade.Keywords(ctx, eng, in.Query.Question, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("keyword expansion: %w", err)
	}
	hl := engine.UnionKeywords(in.Query.HLKeywords, extractedHL)
	ll := engine.UnionKeywords(in.Query.LLKeywords, extractedLL)

	sink.Notify(types.PrefixHighLevelKeywords + strings.Join(hl, types.SEP))
	sink.Notify(types.PrefixLowLevelKeywords + strings.Join(ll, types.SEP))

	if err := p.keywords.InsertMany(ctx, in.Schema, searchID, types.KeywordHigh, hl); err != nil {
		p.log.Error("Keyword persistence failed", "search_id", searchID, "type", types.KeywordHigh, "error", err)
	}
	if err := p.keywords.InsertMany(ctx, in.Schema, searchID, types.KeywordLow, ll); err != nil {
		p.log.Error("Keyword persistence failed", "search_id", searchID, "type", types.KeywordLow, "error", err)
	}
	return hl, ll, nil
}

// searchWithRetries runs the engine search up to searchRetries times; after
// the first failure the entity, relation, and depth caps are tightened so
// oversized contexts stop tripping the provider.
func (p *Pipeline) searchWithRetries(ctx context.Context, in Input, eng types.Engine, hl, ll []string, sink types.ProgressSink) (*types.ChatResponse, error) {
	params := types.SearchParams{
		Format:           types.FormatJSON,
		Mode:             types.ModeHybrid,
		Engine:           eng,
		HLKeywords:       hl,
		LLKeywords:       ll,
		StructuredOutput: true,
		IsSearchQuery:    true,
		FilepathDepth:    in.Query.MaxDepth,
		Context: types.ContextParams{
			Query:      in.Query.Question,
			ProjectDir: in.ProjectDir,
			Format:     types.ContextJSON,
		},
		Sink: sink,
	}

	var lastErr error
	for attempt := 0; attempt < searchRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 0 {
			params.MaxEntities = retryEntityCap
			params.MaxRelations = retryRelationCap
			params.FilepathDepth = retryDepthCap
			sink.Notify(fmt.Sprintf("Retrying search with reduced context (attempt %d)", attempt+1))
		}
		resp, err := p.facade.Search(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		p.log.Warn("Engine search failed", "attempt", attempt+1, "max", searchRetries, "error", err.Error())
	}
	return nil, fmt.Errorf("engine search: %w", lastErr)
}

// persist writes results and the final response text. Both are best-effort:
// the answer is already computed, a storage fault should not void it.
func (p *Pipeline) persist(ctx context.Context, schema string, searchID int64, response string, results []types.DocumentResult) {
	if len(results) > 0 {
		if err := p.history.InsertResults(ctx, schema, searchID, results); err != nil {
			p.log.Error("Result persistence failed", "search_id", searchID, "error", err)
		}
	}
	if err := p.history.UpdateResponse(ctx, schema, searchID, response); err != nil {
		p.log.Error("Response persistence failed", "search_id", searchID, "error", err)
	}
}

// referenceFiles returns up to max unique reference file paths in order.
func referenceFiles(refs []types.Reference, max int) []string {
	seen := make(map[string]bool, len(refs))
	var out []string
	for _, ref := range refs {
		if ref.File == "" || seen[ref.File] {
			continue
		}
		seen[ref.File] = true
		out = append(out, ref.File)
		if len(out) == max {
			break
		}
	}
	return out
}
