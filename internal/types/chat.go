package types

import (
	"encoding/json"
	"strings"
)

// SEP separates multiple file paths inside a single structured reference as
// emitted by the retrieval engines.
const SEP = "<SEP>"

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Reference struct {
	File        string `json:"file"`
	Type        string `json:"type,omitempty"`
	MainKeyword string `json:"main_keyword,omitempty"`
}

// StructuredResponse is the structured variant of ChatResponse.Response.
type StructuredResponse struct {
	Response   string      `json:"response"`
	References []Reference `json:"references"`
}

// ChatResponse carries the engine answer plus the context it was built from.
// Response is a tagged union: exactly one of Text or Structured is set.
type ChatResponse struct {
	Question   string              `json:"question"`
	Text       string              `json:"-"`
	Structured *StructuredResponse `json:"-"`
	Context    string              `json:"context,omitempty"`

	EntitiesContext  []map[string]any `json:"entities_context,omitempty"`
	RelationsContext []map[string]any `json:"relations_context,omitempty"`
	TextUnitsContext []map[string]any `json:"text_units_context,omitempty"`

	HLKeywords []string `json:"hl_keywords,omitempty"`
	LLKeywords []string `json:"ll_keywords,omitempty"`
}

func (r *ChatResponse) IsStructured() bool { return r.Structured != nil }

// ExpandReferences splits every reference file on SEP, emitting one
// reference per path while preserving type and main keyword. Only defined on
// the structured variant; the plain variant is returned untouched.
func (r *ChatResponse) ExpandReferences() {
	if r.Structured == nil {
		return
	}
	expanded := make([]Reference, 0, len(r.Structured.References))
	for _, ref := range r.Structured.References {
		if !strings.Contains(ref.File, SEP) {
			expanded = append(expanded, ref)
			continue
		}
		for _, file := range strings.Split(ref.File, SEP) {
			file = strings.TrimSpace(file)
			if file == "" {
				continue
			}
			expanded = append(expanded, Reference{File: file, Type: ref.Type, MainKeyword: ref.MainKeyword})
		}
	}
	r.Structured.References = expanded
}

func (r ChatResponse) MarshalJSON() ([]byte, error) {
	type alias ChatResponse
	var response any
	if r.Structured != nil {
		response = r.Structured
	} else {
		response = r.Text
	}
	return json.Marshal(struct {
		alias
		Response any `json:"response"`
	}{alias: alias(r), Response: response})
}

func (r *ChatResponse) UnmarshalJSON(data []byte) error {
	type alias ChatResponse
	aux := struct {
		*alias
		Response json.RawMessage `json:"response"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Response) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(aux.Response, &text); err == nil {
		r.Text = text
		return nil
	}
	var structured StructuredResponse
	if err := json.Unmarshal(aux.Response, &structured); err != nil {
		return err
	}
	r.Structured = &structured
	return nil
}

// ProgressSink receives human-readable progress messages while a pipeline
// runs. Implementations must be safe for use from a single request goroutine.
type ProgressSink interface {
	Notify(message string)
}

// NoopSink discards every message.
type NoopSink struct{}

func (NoopSink) Notify(string) {}

// Progress message prefixes recognized by persisting sinks.
const (
	PrefixHighLevelKeywords = "HIGH_LEVEL_KEYWORDS:"
	PrefixLowLevelKeywords  = "LOW_LEVEL_KEYWORDS:"
	PrefixRelationships     = "RELATIONSHIPS:"
)

// ContextParams describe how the engine should assemble retrieval context.
type ContextParams struct {
	Query            string        `json:"query"`
	ProjectDir       string        `json:"project_dir"`
	MaxContextTokens int           `json:"max_context_tokens"`
	Format           ContextFormat `json:"context_format"`
}

// SearchParams is the uniform request accepted by every retrieval engine.
type SearchParams struct {
	Format           Format         `json:"format"`
	Mode             SearchMode     `json:"search_mode"`
	Engine           Engine         `json:"engine"`
	Context          ContextParams  `json:"context_params"`
	SystemPrompt     string         `json:"additional_system_prompt,omitempty"`
	HLKeywords       []string       `json:"hl_keywords,omitempty"`
	LLKeywords       []string       `json:"ll_keywords,omitempty"`
	History          []ChatTurn     `json:"chat_history,omitempty"`
	ConversationID   string         `json:"conversation_id,omitempty"`
	Stream           bool           `json:"stream,omitempty"`
	StructuredOutput bool           `json:"structured_output,omitempty"`
	OutputSchema     map[string]any `json:"output_schema,omitempty"`
	FilepathDepth    int            `json:"filepath_depth,omitempty"`
	MaxEntities      int            `json:"max_entities,omitempty"`
	MaxRelations     int            `json:"max_relations,omitempty"`
	IsSearchQuery    bool           `json:"is_search_query,omitempty"`

	Sink ProgressSink `json:"-"`
}

// StreamHandler receives incremental text fragments when Stream is set.
// Only the cache engine supports streaming.
type StreamHandler func(fragment string)
