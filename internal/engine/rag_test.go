package engine

import (
	"context"
	"testing"

	"github.com/onepointltd/kbserver/internal/config"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

type stubRetriever struct {
	hl, ll []string
}

func (s *stubRetriever) Query(ctx context.Context, projectDir, query string, mode types.SearchMode) (*RetrievedContext, error) {
	return &RetrievedContext{
		TextUnits: []map[string]any{{"content": "context chunk"}},
	}, nil
}

func (s *stubRetriever) ExtractKeywords(ctx context.Context, query string, history []types.ChatTurn) ([]string, []string, error) {
	return s.hl, s.ll, nil
}

func (s *stubRetriever) TokenCount(text string) int { return len(text) / 4 }

func threeTurnHistory() []types.ChatTurn {
	return []types.ChatTurn{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "follow-up"},
	}
}

func TestSearchStructuredPassesSingleHistoryTurn(t *testing.T) {
	t.Parallel()
	llm := &recordingLLM{jsonReply: map[string]any{"response": "ok", "references": []any{}}}
	eng := NewLightEngine(&stubRetriever{}, llm, config.Tuning{}, logger.NewNop())

	resp, err := eng.Search(context.Background(), types.SearchParams{
		Engine:           types.EngineLight,
		Mode:             types.ModeHybrid,
		HLKeywords:       []string{"theme"},
		StructuredOutput: true,
		History:          threeTurnHistory(),
		Context:          types.ContextParams{Query: "q", Format: types.ContextJSON},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Structured == nil || resp.Structured.Response != "ok" {
		t.Fatalf("structured response = %+v", resp.Structured)
	}
	if len(llm.lastHistory) != 1 {
		t.Fatalf("structured call got %d history turns, want 1", len(llm.lastHistory))
	}
	if llm.lastHistory[0].Content != "follow-up" {
		t.Fatalf("structured call got turn %q, want the most recent one", llm.lastHistory[0].Content)
	}
}

func TestSearchTextPassesSingleHistoryTurn(t *testing.T) {
	t.Parallel()
	llm := &recordingLLM{reply: "answer"}
	eng := NewLightEngine(&stubRetriever{}, llm, config.Tuning{}, logger.NewNop())

	resp, err := eng.Search(context.Background(), types.SearchParams{
		Engine:     types.EngineLight,
		Mode:       types.ModeHybrid,
		HLKeywords: []string{"theme"},
		History:    threeTurnHistory(),
		Context:    types.ContextParams{Query: "q", Format: types.ContextJSON},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Text != "answer" {
		t.Fatalf("response = %q", resp.Text)
	}
	if len(llm.lastHistory) != 1 || llm.lastHistory[0].Content != "follow-up" {
		t.Fatalf("text call history = %+v, want the single most recent turn", llm.lastHistory)
	}
}
