package search

import (
	"context"
	"math"
	"testing"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

type stubLLM struct {
	embeddings map[string][]float32
	jsonOut    map[string]any
	textOut    string
}

func (s *stubLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = s.embeddings[in]
	}
	return out, nil
}

func (s *stubLLM) GenerateText(ctx context.Context, system, user string, history []types.ChatTurn) (string, error) {
	return s.textOut, nil
}

func (s *stubLLM) GenerateJSON(ctx context.Context, system, user string, history []types.ChatTurn, schemaName string, schema map[string]any) (map[string]any, error) {
	return s.jsonOut, nil
}

func (s *stubLLM) StreamText(ctx context.Context, system, user string, history []types.ChatTurn, onFragment types.StreamHandler) (string, error) {
	if onFragment != nil {
		onFragment(s.textOut)
	}
	return s.textOut, nil
}

func TestCosine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"empty", nil, nil, 0},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tc := range cases {
		if got := Cosine(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s: Cosine = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRankCandidatesFiltersAndCaps(t *testing.T) {
	t.Parallel()
	all := []types.CentralityEntity{
		{Name: "Edge Case", Type: "concept", Centrality: 0.2},
		{Name: "Data Mesh", Type: "Concept", Centrality: 0.9},
		{Name: "Alice", Type: "person", Centrality: 0.8},
		{Name: "Pipelines", Type: "concept", Centrality: 0.5},
	}

	got := rankCandidates(all, &types.MatchQuery{EntityTypes: []string{"CONCEPT"}, TopN: 2})
	if len(got) != 2 {
		t.Fatalf("kept %d candidates, want 2", len(got))
	}
	if got[0].Name != "Data Mesh" || got[1].Name != "Pipelines" {
		t.Fatalf("candidates = %v, want centrality order within the requested type", got)
	}

	// no type filter keeps everything up to the default cap
	if got := rankCandidates(all, &types.MatchQuery{}); len(got) != len(all) {
		t.Fatalf("unfiltered kept %d, want %d", len(got), len(all))
	}
	if got := rankCandidates(nil, &types.MatchQuery{}); len(got) != 0 {
		t.Fatalf("empty input kept %d, want 0", len(got))
	}
}

func TestDedupeDropsNearDuplicates(t *testing.T) {
	t.Parallel()
	llm := &stubLLM{embeddings: map[string][]float32{
		"Data Mesh":     {1, 0, 0},
		"Data Meshes":   {0.99, 0.1, 0},
		"Orchestration": {0, 1, 0},
		"Governance":    {0, 0, 1},
	}}
	m := NewMatcher(llm, nil, nil, logger.NewNop())

	in := []types.MatchedEntity{
		{Name: "Data Mesh", Type: "concept", Score: 0.9},
		{Name: "Data Meshes", Type: "concept", Score: 0.8},
		{Name: "Orchestration", Type: "concept", Score: 0.7},
		{Name: "Governance", Type: "concept", Score: 0.6},
	}
	out, err := m.dedupe(context.Background(), in)
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("kept %d entities, want 3", len(out))
	}
	for _, e := range out {
		if e.Name == "Data Meshes" {
			t.Fatal("near-duplicate entity survived dedup")
		}
	}
}

func TestDedupeKeepsAllWhenTooFewSurvive(t *testing.T) {
	t.Parallel()
	// every name embeds identically, so greedy dedup would keep just one
	llm := &stubLLM{embeddings: map[string][]float32{
		"A": {1, 0},
		"B": {1, 0},
		"C": {1, 0},
	}}
	m := NewMatcher(llm, nil, nil, logger.NewNop())

	in := []types.MatchedEntity{
		{Name: "A", Score: 0.9},
		{Name: "B", Score: 0.8},
		{Name: "C", Score: 0.7},
	}
	out, err := m.dedupe(context.Background(), in)
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("kept %d entities, want all %d when dedup leaves fewer than two", len(out), len(in))
	}
}

func TestDedupeSkipsSmallSets(t *testing.T) {
	t.Parallel()
	m := NewMatcher(&stubLLM{}, nil, nil, logger.NewNop())
	in := []types.MatchedEntity{{Name: "A"}, {Name: "B"}}
	out, err := m.dedupe(context.Background(), in)
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("kept %d entities, want 2 untouched", len(out))
	}
}
