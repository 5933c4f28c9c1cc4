package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

var (
	// ErrModeUnsupported reports a search mode the selected engine cannot run.
	ErrModeUnsupported = errors.New("search mode not supported by engine")
	// ErrStreamingUnsupported reports a stream request outside the cache engine.
	ErrStreamingUnsupported = errors.New("streaming is only available for the cache engine")
)

// RetrievedContext is what an engine retriever hands back before token
// truncation.
type RetrievedContext struct {
	Entities  []map[string]any
	Relations []map[string]any
	TextUnits []map[string]any
}

// Retriever is the black-box contract over the underlying RAG stores. The
// indexing algorithms behind it are out of scope; the façade only consumes
// its query surface and its tokenizer.
type Retriever interface {
	Query(ctx context.Context, projectDir, query string, mode types.SearchMode) (*RetrievedContext, error)
	// ExtractKeywords asks the engine keyword extractor for high- and
	// low-level keyword lists given the query and prior turns.
	ExtractKeywords(ctx context.Context, query string, history []types.ChatTurn) (hl []string, ll []string, err error)
	// TokenCount is the engine-supplied tokenizer used for budget truncation.
	TokenCount(text string) int
}

// Engine is the uniform search surface over one retrieval backend.
type Engine interface {
	Name() types.Engine
	Search(ctx context.Context, params types.SearchParams) (*types.ChatResponse, error)
	Keywords(ctx context.Context, query string, history []types.ChatTurn) ([]string, []string, error)
}

// Streamer is implemented by engines that can emit incremental fragments.
type Streamer interface {
	SearchStream(ctx context.Context, params types.SearchParams, onFragment types.StreamHandler) (*types.ChatResponse, error)
}

// Facade routes a search to the right engine after normalizing the mode
// according to the per-engine rules.
type Facade struct {
	log     *logger.Logger
	engines map[types.Engine]Engine
}

func NewFacade(graph, light, cacheEng Engine, baseLog *logger.Logger) *Facade {
	return &Facade{
		log: baseLog.With("service", "EngineFacade"),
		engines: map[types.Engine]Engine{
			types.EngineGraph: graph,
			types.EngineLight: light,
			types.EngineCache: cacheEng,
		},
	}
}

func (f *Facade) Engine(name types.Engine) (Engine, error) {
	eng, ok := f.engines[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q", name)
	}
	return eng, nil
}

// NormalizeMode applies the cross-engine mode rules:
// drift is graph-only; the light engine answers local questions in hybrid
// mode and maps all to hybrid.
func NormalizeMode(engine types.Engine, mode types.SearchMode) (types.SearchMode, error) {
	if mode == types.ModeDrift && engine != types.EngineGraph {
		return "", fmt.Errorf("%w: drift requires the graph engine", ErrModeUnsupported)
	}
	if engine == types.EngineLight {
		switch mode {
		case types.ModeLocal, types.ModeAll:
			return types.ModeHybrid, nil
		}
	}
	return mode, nil
}

func (f *Facade) Search(ctx context.Context, params types.SearchParams) (*types.ChatResponse, error) {
	eng, err := f.Engine(params.Engine)
	if err != nil {
		return nil, err
	}
	mode, err := NormalizeMode(params.Engine, params.Mode)
	if err != nil {
		return nil, err
	}
	params.Mode = mode
	if params.Stream && params.Engine != types.EngineCache {
		return nil, ErrStreamingUnsupported
	}
	resp, err := eng.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	resp.ExpandReferences()
	return resp, nil
}

// SearchStream dispatches a streaming chat; only the cache engine qualifies.
func (f *Facade) SearchStream(ctx context.Context, params types.SearchParams, onFragment types.StreamHandler) (*types.ChatResponse, error) {
	eng, err := f.Engine(params.Engine)
	if err != nil {
		return nil, err
	}
	streamer, ok := eng.(Streamer)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return streamer.SearchStream(ctx, params, onFragment)
}

func (f *Facade) Keywords(ctx context.Context, engine types.Engine, query string, history []types.ChatTurn) ([]string, []string, error) {
	eng, err := f.Engine(engine)
	if err != nil {
		return nil, nil, err
	}
	return eng.Keywords(ctx, query, history)
}
