package types

import "fmt"

// Engine identifies a retrieval backend variant. The set is closed: each
// engine owns a subdirectory under the tenant folder and its own working
// state layout.
type Engine string

const (
	EngineGraph Engine = "graph"
	EngineLight Engine = "light"
	EngineCache Engine = "cache"
)

func ParseEngine(s string) (Engine, error) {
	switch Engine(s) {
	case EngineGraph, EngineLight, EngineCache:
		return Engine(s), nil
	default:
		return "", fmt.Errorf("unknown engine %q", s)
	}
}

func AllEngines() []Engine {
	return []Engine{EngineGraph, EngineLight, EngineCache}
}

// SearchMode selects how an engine builds context.
type SearchMode string

const (
	ModeLocal  SearchMode = "local"
	ModeGlobal SearchMode = "global"
	ModeHybrid SearchMode = "hybrid"
	ModeMix    SearchMode = "mix"
	ModeNaive  SearchMode = "naive"
	ModeDrift  SearchMode = "drift"
	ModeAll    SearchMode = "all"
)

func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(s) {
	case ModeLocal, ModeGlobal, ModeHybrid, ModeMix, ModeNaive, ModeDrift, ModeAll:
		return SearchMode(s), nil
	default:
		return "", fmt.Errorf("unknown search mode %q", s)
	}
}

// Format is the response rendering requested by the client.
type Format string

const (
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatHTML, FormatJSON, FormatMarkdown:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown response format %q", s)
	}
}

// ContextFormat controls how the engine serializes retrieved context.
type ContextFormat string

const (
	ContextJSONString         ContextFormat = "json_string"
	ContextJSON               ContextFormat = "json"
	ContextJSONStringWithJSON ContextFormat = "json_string_with_json"
)

// IndexingStatus tracks the lifecycle of a project index build.
type IndexingStatus string

const (
	IndexNotStarted IndexingStatus = "not-started"
	IndexRunning    IndexingStatus = "running"
	IndexCompleted  IndexingStatus = "completed"
	IndexFailed     IndexingStatus = "failed"
	IndexUnknown    IndexingStatus = "unknown"
)
