package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/types"
)

// FileRetriever reads the working-dir artifacts an indexer leaves behind
// (entities.json, relations.json, text_units.json under the engine project
// directory) and extracts keywords through the LLM. It stands in for the
// engine-internal retrieval stores, which are opaque to this server.
type FileRetriever struct {
	log *logger.Logger
	llm services.LLMClient
}

func NewFileRetriever(llm services.LLMClient, baseLog *logger.Logger) *FileRetriever {
	return &FileRetriever{log: baseLog.With("service", "FileRetriever"), llm: llm}
}

func (r *FileRetriever) Query(ctx context.Context, projectDir, query string, mode types.SearchMode) (*RetrievedContext, error) {
	out := &RetrievedContext{}
	var err error
	if out.Entities, err = readArtifact(projectDir, "entities.json"); err != nil {
		return nil, err
	}
	if out.Relations, err = readArtifact(projectDir, "relations.json"); err != nil {
		return nil, err
	}
	// naive mode is pure vector retrieval over chunks; entity and relation
	// context is omitted there.
	if mode == types.ModeNaive {
		out.Entities, out.Relations = nil, nil
	}
	if out.TextUnits, err = readArtifact(projectDir, "text_units.json"); err != nil {
		return nil, err
	}
	return out, nil
}

func readArtifact(projectDir, name string) ([]map[string]any, error) {
	raw, err := os.ReadFile(filepath.Join(projectDir, "output", name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return items, nil
}

const keywordExtractionPrompt = `Extract retrieval keywords from the conversation.
High-level keywords name coarse themes; low-level keywords name specific entities and terms.`

func keywordSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"high_level_keywords": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"low_level_keywords":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"high_level_keywords", "low_level_keywords"},
		"additionalProperties": false,
	}
}

func (r *FileRetriever) ExtractKeywords(ctx context.Context, query string, history []types.ChatTurn) ([]string, []string, error) {
	var convo strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&convo, "%s: %s\n", turn.Role, turn.Content)
	}
	fmt.Fprintf(&convo, "user: %s\n", query)

	out, err := r.llm.GenerateJSON(ctx, keywordExtractionPrompt, convo.String(), nil, "keyword_extraction", keywordSchema())
	if err != nil {
		return nil, nil, fmt.Errorf("keyword extraction: %w", err)
	}
	return stringList(out["high_level_keywords"]), stringList(out["low_level_keywords"]), nil
}

// TokenCount approximates the tokenizer the real engines supply. The 4:1
// byte heuristic matches what the budgets were tuned against.
func (r *FileRetriever) TokenCount(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// TruncateByTokens keeps the list prefix whose cumulative JSON token size
// stays within budget.
func TruncateByTokens(items []map[string]any, maxTokens int, count func(string) int) []map[string]any {
	if maxTokens <= 0 || len(items) == 0 {
		return items
	}
	total := 0
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		total += count(string(raw))
		if total > maxTokens {
			return items[:i]
		}
	}
	return items
}

// CapCount bounds the list length; zero or negative max means unbounded.
func CapCount(items []map[string]any, max int) []map[string]any {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}
