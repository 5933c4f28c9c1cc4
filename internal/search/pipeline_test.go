package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/onepointltd/kbserver/internal/engine"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

// callLog records store calls in invocation order.
type callLog struct {
	events []string
}

func (l *callLog) add(event string) { l.events = append(l.events, event) }

func (l *callLog) index(event string) int {
	for i, e := range l.events {
		if e == event {
			return i
		}
	}
	return -1
}

type stubHistory struct {
	log     *callLog
	fresh   *types.SearchHistory
	results []types.DocumentResult

	inserted        *types.SearchHistory
	insertedResults []types.DocumentResult
	updatedResponse string
}

func (s *stubHistory) Insert(ctx context.Context, schema string, h *types.SearchHistory) (int64, error) {
	s.log.add("history_insert")
	s.inserted = h
	return 42, nil
}

func (s *stubHistory) FindFreshByDigest(ctx context.Context, schema string, projectID int64, digest string) (*types.SearchHistory, error) {
	return s.fresh, nil
}

func (s *stubHistory) FindResults(ctx context.Context, schema string, searchID int64) ([]types.DocumentResult, error) {
	return s.results, nil
}

func (s *stubHistory) InsertResults(ctx context.Context, schema string, searchID int64, results []types.DocumentResult) error {
	s.log.add("results_insert")
	s.insertedResults = results
	return nil
}

func (s *stubHistory) UpdateResponse(ctx context.Context, schema string, searchID int64, response string) error {
	s.log.add("response_update")
	s.updatedResponse = response
	return nil
}

type stubKeywords struct {
	log *callLog
}

func (s *stubKeywords) InsertMany(ctx context.Context, schema string, searchID int64, kwType string, keywords []string) error {
	s.log.add("keywords_" + kwType)
	return nil
}

type stubMatcher struct {
	calls int
}

func (s *stubMatcher) Match(ctx context.Context, schema string, projectID int64, projectDir string, q *types.MatchQuery) (*types.MatchOutput, error) {
	s.calls++
	return &types.MatchOutput{Entities: map[string][]types.MatchedEntity{}}, nil
}

// scriptedEngine returns a fixed response and counts searches.
type scriptedEngine struct {
	name     types.Engine
	resp     *types.ChatResponse
	searches int
}

func (e *scriptedEngine) Name() types.Engine { return e.name }

func (e *scriptedEngine) Search(ctx context.Context, params types.SearchParams) (*types.ChatResponse, error) {
	e.searches++
	return e.resp, nil
}

func (e *scriptedEngine) Keywords(ctx context.Context, query string, history []types.ChatTurn) ([]string, []string, error) {
	return []string{"theme"}, []string{"detail"}, nil
}

func pipelineFixture(t *testing.T, light *scriptedEngine, hist *stubHistory, kw *stubKeywords, m *stubMatcher) (*Pipeline, string) {
	t.Helper()
	projectDir := t.TempDir()
	inputDir := filepath.Join(projectDir, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, "doc.txt"), []byte("document body"), 0o644); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	graph := &scriptedEngine{name: types.EngineGraph}
	cacheEng := &scriptedEngine{name: types.EngineCache}
	facade := engine.NewFacade(graph, light, cacheEng, logger.NewNop())
	summarizer := NewSummarizer(&stubLLM{jsonOut: map[string]any{
		"summary":               "covers the topic",
		"relevance_explanation": "matches the profile",
		"relevancy":             string(types.RelevancyHigh),
	}}, logger.NewNop())
	return NewPipeline(facade, m, summarizer, hist, kw, logger.NewNop()), projectDir
}

func TestRelevantDocumentsMissPath(t *testing.T) {
	t.Parallel()
	log := &callLog{}
	hist := &stubHistory{log: log}
	kw := &stubKeywords{log: log}
	m := &stubMatcher{}
	light := &scriptedEngine{
		name: types.EngineLight,
		resp: &types.ChatResponse{Structured: &types.StructuredResponse{
			Response:   "final answer",
			References: []types.Reference{{File: "doc.txt"}, {File: "doc.txt"}},
		}},
	}
	p, projectDir := pipelineFixture(t, light, hist, kw, m)

	out, err := p.RelevantDocuments(context.Background(), Input{
		Schema:     "acme",
		ProjectID:  1,
		ProjectDir: projectDir,
		Engine:     types.EngineLight,
		Query:      &types.DocumentSearchQuery{Question: "what is covered", UserProfile: "analyst"},
	})
	if err != nil {
		t.Fatalf("RelevantDocuments: %v", err)
	}
	if out.SearchID != 42 {
		t.Fatalf("search id = %d, want the inserted row id", out.SearchID)
	}
	if out.RequestID == "" {
		t.Fatal("request id empty")
	}
	if len(out.Results) != 1 || out.Results[0].File != "doc.txt" {
		t.Fatalf("results = %+v, want the single deduplicated reference", out.Results)
	}
	if out.Results[0].Relevancy != types.RelevancyHigh {
		t.Fatalf("relevancy = %s", out.Results[0].Relevancy)
	}

	// the history row is written before any keyword row references it
	hi, ki := log.index("history_insert"), log.index("keywords_"+types.KeywordHigh)
	if hi < 0 || ki < 0 || hi > ki {
		t.Fatalf("call order = %v, want history insert before keyword writes", log.events)
	}
	if hist.inserted == nil || hist.inserted.Digest == "" {
		t.Fatalf("history row = %+v, want digest set", hist.inserted)
	}
	if hist.updatedResponse != "final answer" {
		t.Fatalf("persisted response = %q", hist.updatedResponse)
	}
	if len(hist.insertedResults) != 1 {
		t.Fatalf("persisted %d results, want 1", len(hist.insertedResults))
	}
	if m.calls != 1 {
		t.Fatalf("matcher ran %d times, want 1", m.calls)
	}
	if light.searches != 1 {
		t.Fatalf("engine ran %d searches, want 1", light.searches)
	}
}

func TestRelevantDocumentsDigestHit(t *testing.T) {
	t.Parallel()
	log := &callLog{}
	hist := &stubHistory{
		log:     log,
		fresh:   &types.SearchHistory{ID: 7, RequestID: "stale-request"},
		results: []types.DocumentResult{{File: "doc.txt", Relevancy: types.RelevancyVeryHigh}},
	}
	kw := &stubKeywords{log: log}
	m := &stubMatcher{}
	light := &scriptedEngine{name: types.EngineLight}
	p, projectDir := pipelineFixture(t, light, hist, kw, m)

	out, err := p.RelevantDocuments(context.Background(), Input{
		Schema:     "acme",
		ProjectID:  1,
		ProjectDir: projectDir,
		Engine:     types.EngineLight,
		Query:      &types.DocumentSearchQuery{Question: "what is covered", UserProfile: "analyst"},
	})
	if err != nil {
		t.Fatalf("RelevantDocuments: %v", err)
	}
	if out.SearchID != 7 {
		t.Fatalf("search id = %d, want the cached row id", out.SearchID)
	}
	if out.RequestID == "" || out.RequestID == "stale-request" {
		t.Fatalf("request id = %q, want a fresh one", out.RequestID)
	}
	if len(out.Results) != 1 || out.Results[0].Relevancy != types.RelevancyVeryHigh {
		t.Fatalf("results = %+v, want the stored ones", out.Results)
	}

	// the hit short-circuits everything downstream of the lookup
	if len(log.events) != 0 {
		t.Fatalf("stores written on cache hit: %v", log.events)
	}
	if light.searches != 0 {
		t.Fatal("engine searched on cache hit")
	}
	if m.calls != 0 {
		t.Fatal("matcher ran on cache hit")
	}
}
