package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/onepointltd/kbserver/internal/cache"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/types"
)

const sessionTTL = 2 * time.Hour

// ErrKeywordsUnsupported reports a keyword extraction request against the
// cache engine, which does no retrieval.
var ErrKeywordsUnsupported = errors.New("keyword extraction not supported by cache engine")

type cacheSession struct {
	corpus string
}

// CacheEngine answers chat turns directly against the concatenated project
// corpus instead of a retrieval index. Sessions are held in memory for two
// hours keyed by project directory and conversation id, so a follow-up turn
// reuses the corpus it was seeded with. It is the only engine that streams.
type CacheEngine struct {
	log      *logger.Logger
	llm      services.LLMClient
	sessions *cache.TTL[cacheSession]
}

func NewCacheEngine(llm services.LLMClient, baseLog *logger.Logger) *CacheEngine {
	return &CacheEngine{
		log:      baseLog.With("engine", string(types.EngineCache)),
		llm:      llm,
		sessions: cache.NewTTL[cacheSession](sessionTTL),
	}
}

func (e *CacheEngine) Name() types.Engine { return types.EngineCache }

func (e *CacheEngine) Keywords(ctx context.Context, query string, history []types.ChatTurn) ([]string, []string, error) {
	return nil, nil, ErrKeywordsUnsupported
}

func sessionKey(projectDir, conversationID string) string {
	return projectDir + "|" + conversationID
}

// loadCorpus concatenates every .txt file under <projectDir>/input in
// lexicographic order.
func loadCorpus(projectDir string) (string, error) {
	inputDir := filepath.Join(projectDir, "input")
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return "", fmt.Errorf("read input dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var corpus strings.Builder
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(inputDir, name))
		if err != nil {
			return "", fmt.Errorf("read input file %s: %w", name, err)
		}
		corpus.Write(raw)
		corpus.WriteString("\n\n")
	}
	if corpus.Len() == 0 {
		return "", fmt.Errorf("no .txt inputs under %s", inputDir)
	}
	return corpus.String(), nil
}

func (e *CacheEngine) session(params types.SearchParams) (cacheSession, error) {
	key := sessionKey(params.Context.ProjectDir, params.ConversationID)
	if sess, ok := e.sessions.Get(key); ok {
		return sess, nil
	}
	corpus, err := loadCorpus(params.Context.ProjectDir)
	if err != nil {
		return cacheSession{}, err
	}
	sess := cacheSession{corpus: corpus}
	e.sessions.Set(key, sess)
	e.log.Info("Seeded cache session", "key", key, "corpus_bytes", len(corpus))
	return sess, nil
}

const cacheSystemPrompt = `You are a helpful assistant. Answer using only the document collection below.

---Documents---
%s`

func (e *CacheEngine) prompt(sess cacheSession, additional string) string {
	prompt := fmt.Sprintf(cacheSystemPrompt, sess.corpus)
	if additional != "" {
		prompt += "\n" + additional
	}
	return prompt
}

func (e *CacheEngine) Search(ctx context.Context, params types.SearchParams) (*types.ChatResponse, error) {
	sess, err := e.session(params)
	if err != nil {
		return nil, err
	}
	text, err := e.llm.GenerateText(ctx, e.prompt(sess, params.SystemPrompt), params.Context.Query, params.History)
	if err != nil {
		return nil, err
	}
	return &types.ChatResponse{Question: params.Context.Query, Text: text}, nil
}

func (e *CacheEngine) SearchStream(ctx context.Context, params types.SearchParams, onFragment types.StreamHandler) (*types.ChatResponse, error) {
	sess, err := e.session(params)
	if err != nil {
		return nil, err
	}
	text, err := e.llm.StreamText(ctx, e.prompt(sess, params.SystemPrompt), params.Context.Query, params.History, onFragment)
	if err != nil {
		return nil, err
	}
	return &types.ChatResponse{Question: params.Context.Query, Text: text}, nil
}
