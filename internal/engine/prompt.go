package engine

import (
	"strings"

	"github.com/onepointltd/kbserver/internal/types"
)

// FailResponse is the canned answer returned when keyword extraction yields
// nothing to retrieve with.
const FailResponse = "Sorry, I'm not able to provide an answer to that question."

const systemPromptTemplate = `You are a helpful assistant answering questions about the indexed knowledge base.

Use only the retrieval context below. If the context does not contain the answer, say so.

High-level keywords: <high_level_keywords></high_level_keywords>
Low-level keywords: <low_level_keywords></low_level_keywords>

---Retrieval context---
{context}
`

// BuildSystemPrompt assembles the engine system prompt around the context
// blob and an optional caller-supplied addition.
func BuildSystemPrompt(contextBlob, additional string) string {
	prompt := strings.Replace(systemPromptTemplate, "{context}", contextBlob, 1)
	if additional != "" {
		prompt += "\n" + additional
	}
	return prompt
}

// InjectKeywords textually replaces the empty keyword regions of the prompt
// template. Already-filled regions are left untouched.
func InjectKeywords(prompt string, hl, ll []string) string {
	if len(hl) > 0 {
		prompt = strings.Replace(prompt,
			"<high_level_keywords></high_level_keywords>",
			"<high_level_keywords>"+strings.Join(hl, ", ")+"</high_level_keywords>", 1)
	}
	if len(ll) > 0 {
		prompt = strings.Replace(prompt,
			"<low_level_keywords></low_level_keywords>",
			"<low_level_keywords>"+strings.Join(ll, ", ")+"</low_level_keywords>", 1)
	}
	return prompt
}

// structuredResponseSchema is the default schema requested when the caller
// wants structured output but supplies none.
func structuredResponseSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"response": map[string]any{"type": "string"},
			"references": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file":         map[string]any{"type": "string"},
						"type":         map[string]any{"type": "string"},
						"main_keyword": map[string]any{"type": "string"},
					},
					"required":             []string{"file"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"response", "references"},
		"additionalProperties": false,
	}
}

// UnionKeywords merges caller seeds with extracted keywords preserving order
// and dropping duplicates case-insensitively.
func UnionKeywords(seeds, extracted []string) []string {
	seen := make(map[string]bool, len(seeds)+len(extracted))
	out := make([]string, 0, len(seeds)+len(extracted))
	for _, list := range [][]string{seeds, extracted} {
		for _, kw := range list {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			key := strings.ToLower(kw)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, kw)
		}
	}
	return out
}

func historyTail(history []types.ChatTurn, max int) []types.ChatTurn {
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}
