package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/onepointltd/kbserver/internal/config"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/types"
)

// ragEngine is the shared question-answering core of the graph and light
// engines: retrieve context, truncate to budget, prompt, answer.
type ragEngine struct {
	name      types.Engine
	log       *logger.Logger
	retriever Retriever
	llm       services.LLMClient
	tuning    config.Tuning
	modes     map[types.SearchMode]bool
}

func newRAGEngine(name types.Engine, retriever Retriever, llm services.LLMClient, tuning config.Tuning, modes []types.SearchMode, baseLog *logger.Logger) *ragEngine {
	allowed := make(map[types.SearchMode]bool, len(modes))
	for _, m := range modes {
		allowed[m] = true
	}
	return &ragEngine{
		name:      name,
		log:       baseLog.With("engine", string(name)),
		retriever: retriever,
		llm:       llm,
		tuning:    tuning,
		modes:     allowed,
	}
}

func (e *ragEngine) Name() types.Engine { return e.name }

func (e *ragEngine) Keywords(ctx context.Context, query string, history []types.ChatTurn) ([]string, []string, error) {
	return e.retriever.ExtractKeywords(ctx, query, history)
}

func (e *ragEngine) Search(ctx context.Context, params types.SearchParams) (*types.ChatResponse, error) {
	if !e.modes[params.Mode] {
		return nil, fmt.Errorf("%w: %s/%s", ErrModeUnsupported, e.name, params.Mode)
	}
	query := params.Context.Query

	hl, ll := params.HLKeywords, params.LLKeywords
	if len(hl) == 0 && len(ll) == 0 {
		extractedHL, extractedLL, err := e.retriever.ExtractKeywords(ctx, query, params.History)
		if err != nil {
			return nil, err
		}
		hl = UnionKeywords(hl, extractedHL)
		ll = UnionKeywords(ll, extractedLL)
	}
	if params.Sink != nil {
		params.Sink.Notify(types.PrefixHighLevelKeywords + strings.Join(hl, types.SEP))
		params.Sink.Notify(types.PrefixLowLevelKeywords + strings.Join(ll, types.SEP))
	}
	if len(hl) == 0 && len(ll) == 0 {
		return &types.ChatResponse{Question: query, Text: FailResponse}, nil
	}

	retrieved, err := e.retriever.Query(ctx, params.Context.ProjectDir, query, params.Mode)
	if err != nil {
		return nil, err
	}
	entities, relations, textUnits := e.truncate(retrieved, params)
	if params.Sink != nil && len(relations) > 0 {
		if raw, err := json.Marshal(relations); err == nil {
			params.Sink.Notify(types.PrefixRelationships + string(raw))
		}
	}

	blob, err := contextBlob(entities, relations, textUnits, params.Context.Format)
	if err != nil {
		return nil, err
	}
	prompt := BuildSystemPrompt(blob, params.SystemPrompt)
	prompt = InjectKeywords(prompt, hl, ll)

	resp := &types.ChatResponse{
		Question:         query,
		Context:          blob,
		EntitiesContext:  entities,
		RelationsContext: relations,
		TextUnitsContext: textUnits,
		HLKeywords:       hl,
		LLKeywords:       ll,
	}

	history := historyTail(params.History, 1)
	if params.StructuredOutput {
		schema := params.OutputSchema
		if schema == nil {
			schema = structuredResponseSchema()
		}
		out, err := e.llm.GenerateJSON(ctx, prompt, query, history, "chat_response", schema)
		if err != nil {
			return nil, err
		}
		structured, err := decodeStructured(out)
		if err != nil {
			return nil, err
		}
		resp.Structured = structured
		return resp, nil
	}

	text, err := e.llm.GenerateText(ctx, prompt, query, history)
	if err != nil {
		return nil, err
	}
	resp.Text = text
	return resp, nil
}

func (e *ragEngine) truncate(retrieved *RetrievedContext, params types.SearchParams) (entities, relations, textUnits []map[string]any) {
	maxEntityTokens := e.tuning.LocalContextMaxTokens
	maxRelationTokens := e.tuning.GlobalContextMaxTokens
	maxTotal := params.Context.MaxContextTokens
	if maxTotal > 0 {
		if maxEntityTokens > maxTotal {
			maxEntityTokens = maxTotal
		}
		if maxRelationTokens > maxTotal {
			maxRelationTokens = maxTotal
		}
	}
	entities = TruncateByTokens(retrieved.Entities, maxEntityTokens, e.retriever.TokenCount)
	relations = TruncateByTokens(retrieved.Relations, maxRelationTokens, e.retriever.TokenCount)
	textUnits = TruncateByTokens(retrieved.TextUnits, maxTotal, e.retriever.TokenCount)
	if params.IsSearchQuery {
		entities = CapCount(entities, params.MaxEntities)
		relations = CapCount(relations, params.MaxRelations)
	}
	return entities, relations, textUnits
}

func contextBlob(entities, relations, textUnits []map[string]any, format types.ContextFormat) (string, error) {
	doc := map[string]any{
		"entities":   entities,
		"relations":  relations,
		"text_units": textUnits,
	}
	switch format {
	case types.ContextJSON, types.ContextJSONString, types.ContextJSONStringWithJSON, "":
		raw, err := json.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("marshal context: %w", err)
		}
		return string(raw), nil
	default:
		return "", fmt.Errorf("unknown context format %q", format)
	}
}

func decodeStructured(out map[string]any) (*types.StructuredResponse, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	var structured types.StructuredResponse
	if err := json.Unmarshal(raw, &structured); err != nil {
		return nil, fmt.Errorf("decode structured response: %w", err)
	}
	return &structured, nil
}

// NewGraphEngine builds the entity+relation graph engine; it is the only
// engine allowed to run drift searches.
func NewGraphEngine(retriever Retriever, llm services.LLMClient, tuning config.Tuning, baseLog *logger.Logger) Engine {
	return newRAGEngine(types.EngineGraph, retriever, llm, tuning,
		[]types.SearchMode{types.ModeLocal, types.ModeGlobal, types.ModeHybrid, types.ModeMix, types.ModeNaive, types.ModeDrift, types.ModeAll},
		baseLog)
}

// NewLightEngine builds the lighter keyword-mode engine. Local and all are
// normalized to hybrid before dispatch, so they are accepted here too.
func NewLightEngine(retriever Retriever, llm services.LLMClient, tuning config.Tuning, baseLog *logger.Logger) Engine {
	return newRAGEngine(types.EngineLight, retriever, llm, tuning,
		[]types.SearchMode{types.ModeGlobal, types.ModeHybrid, types.ModeMix, types.ModeNaive},
		baseLog)
}
