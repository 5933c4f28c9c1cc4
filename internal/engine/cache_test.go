package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

type recordingLLM struct {
	lastSystem  string
	lastHistory []types.ChatTurn
	reply       string
	jsonReply   map[string]any
}

func (r *recordingLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (r *recordingLLM) GenerateText(ctx context.Context, system, user string, history []types.ChatTurn) (string, error) {
	r.lastSystem = system
	r.lastHistory = history
	return r.reply, nil
}

func (r *recordingLLM) GenerateJSON(ctx context.Context, system, user string, history []types.ChatTurn, schemaName string, schema map[string]any) (map[string]any, error) {
	r.lastSystem = system
	r.lastHistory = history
	if r.jsonReply == nil {
		return nil, errors.New("not implemented")
	}
	return r.jsonReply, nil
}

func (r *recordingLLM) StreamText(ctx context.Context, system, user string, history []types.ChatTurn, onFragment types.StreamHandler) (string, error) {
	r.lastSystem = system
	for _, fragment := range strings.SplitAfter(r.reply, " ") {
		onFragment(fragment)
	}
	return r.reply, nil
}

func seedProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	inputDir := filepath.Join(dir, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(inputDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestCacheEngineSeedsCorpusInOrder(t *testing.T) {
	t.Parallel()
	dir := seedProject(t, map[string]string{
		"b.txt":     "second document",
		"a.txt":     "first document",
		"notes.pdf": "ignored binary",
	})
	llm := &recordingLLM{reply: "answer"}
	eng := NewCacheEngine(llm, logger.NewNop())

	resp, err := eng.Search(context.Background(), types.SearchParams{
		Engine:         types.EngineCache,
		ConversationID: "conv-1",
		Context:        types.ContextParams{ProjectDir: dir, Query: "what is this"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Text != "answer" {
		t.Fatalf("response = %q", resp.Text)
	}
	first := strings.Index(llm.lastSystem, "first document")
	second := strings.Index(llm.lastSystem, "second document")
	if first < 0 || second < 0 {
		t.Fatalf("corpus missing from system prompt:\n%s", llm.lastSystem)
	}
	if first > second {
		t.Fatal("corpus files not concatenated in lexicographic order")
	}
	if strings.Contains(llm.lastSystem, "ignored binary") {
		t.Fatal("non-txt input leaked into corpus")
	}
}

func TestCacheEngineReusesSession(t *testing.T) {
	t.Parallel()
	dir := seedProject(t, map[string]string{"doc.txt": "original corpus"})
	llm := &recordingLLM{reply: "ok"}
	eng := NewCacheEngine(llm, logger.NewNop())

	params := types.SearchParams{
		Engine:         types.EngineCache,
		ConversationID: "conv-1",
		Context:        types.ContextParams{ProjectDir: dir, Query: "q1"},
	}
	if _, err := eng.Search(context.Background(), params); err != nil {
		t.Fatalf("first search: %v", err)
	}

	// the session, not the filesystem, must back the follow-up turn
	if err := os.RemoveAll(filepath.Join(dir, "input")); err != nil {
		t.Fatalf("remove input: %v", err)
	}
	params.Context.Query = "q2"
	if _, err := eng.Search(context.Background(), params); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if !strings.Contains(llm.lastSystem, "original corpus") {
		t.Fatal("cached session corpus not reused")
	}

	// a fresh conversation re-reads the now-empty input dir and fails
	params.ConversationID = "conv-2"
	if _, err := eng.Search(context.Background(), params); err == nil {
		t.Fatal("expected error for new session without inputs")
	}
}

func TestCacheEngineStreamEmitsFragments(t *testing.T) {
	t.Parallel()
	dir := seedProject(t, map[string]string{"doc.txt": "corpus"})
	llm := &recordingLLM{reply: "streamed answer"}
	eng := NewCacheEngine(llm, logger.NewNop())

	var got strings.Builder
	resp, err := eng.SearchStream(context.Background(), types.SearchParams{
		Engine:         types.EngineCache,
		ConversationID: "conv-1",
		Context:        types.ContextParams{ProjectDir: dir, Query: "q"},
	}, func(fragment string) { got.WriteString(fragment) })
	if err != nil {
		t.Fatalf("SearchStream: %v", err)
	}
	if got.String() != "streamed answer" || resp.Text != "streamed answer" {
		t.Fatalf("stream = %q, final = %q", got.String(), resp.Text)
	}
}

func TestCacheEngineRejectsKeywordExtraction(t *testing.T) {
	t.Parallel()
	eng := NewCacheEngine(&recordingLLM{}, logger.NewNop())
	if _, _, err := eng.Keywords(context.Background(), "q", nil); !errors.Is(err, ErrKeywordsUnsupported) {
		t.Fatalf("err = %v, want ErrKeywordsUnsupported", err)
	}
}
