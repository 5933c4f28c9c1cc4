package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/types"
)

const (
	summarizeRetries     = 5
	summarizeConcurrency = 4
	// summaries read at most this many bytes per document to bound the prompt
	summarizeMaxDocBytes = 48 * 1024
)

// Summarizer produces a per-document relevance summary against the user
// profile and question.
type Summarizer struct {
	log *logger.Logger
	llm services.LLMClient
}

func NewSummarizer(llm services.LLMClient, baseLog *logger.Logger) *Summarizer {
	return &Summarizer{log: baseLog.With("service", "Summarizer"), llm: llm}
}

const summarizeSystemPrompt = `You summarize one knowledge-base document for a specific reader.
Given the reader profile and their question, return a short summary of the document,
an explanation of why it is or is not relevant to the reader, and a relevancy grade.`

func summarizeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":               map[string]any{"type": "string"},
			"relevance_explanation": map[string]any{"type": "string"},
			"relevancy": map[string]any{
				"type": "string",
				"enum": []string{
					string(types.RelevancyVeryHigh), string(types.RelevancyHigh),
					string(types.RelevancyMedium), string(types.RelevancyLow),
					string(types.RelevancyNotRelevant),
				},
			},
		},
		"required":             []string{"summary", "relevance_explanation", "relevancy"},
		"additionalProperties": false,
	}
}

// SummarizeDocuments summarizes every file in parallel. A document that still
// fails after its retry budget is graded NOT_RELEVANT with the error recorded
// in the explanation, so one bad file never sinks the batch.
func (s *Summarizer) SummarizeDocuments(ctx context.Context, projectDir, question, profile string, files []string) ([]types.DocumentResult, error) {
	results := make([]types.DocumentResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(summarizeConcurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			res, err := s.summarizeOne(ctx, projectDir, question, profile, file)
			if err != nil {
				s.log.Error("Document summarization failed", "file", file, "error", err)
				res = types.DocumentResult{
					File:                 file,
					RelevanceExplanation: fmt.Sprintf("summarization failed: %v", err),
					Relevancy:            types.RelevancyNotRelevant,
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Summarizer) summarizeOne(ctx context.Context, projectDir, question, profile, file string) (types.DocumentResult, error) {
	text, err := readDocument(projectDir, file)
	if err != nil {
		return types.DocumentResult{}, err
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Reader profile: %s\n", profile)
	fmt.Fprintf(&user, "Question: %s\n\nDocument %s:\n%s", question, file, text)

	var lastErr error
	for attempt := 0; attempt < summarizeRetries; attempt++ {
		if ctx.Err() != nil {
			return types.DocumentResult{}, ctx.Err()
		}
		out, err := s.llm.GenerateJSON(ctx, summarizeSystemPrompt, user.String(), nil, "document_summary", summarizeSchema())
		if err == nil {
			summary, _ := out["summary"].(string)
			explanation, _ := out["relevance_explanation"].(string)
			relevancy, _ := out["relevancy"].(string)
			return types.DocumentResult{
				File:                 file,
				Summary:              summary,
				RelevanceExplanation: explanation,
				Relevancy:            types.ParseRelevancy(relevancy),
			}, nil
		}
		lastErr = err
		s.log.Warn("Summarization attempt failed",
			"file", file, "attempt", attempt+1, "max", summarizeRetries, "error", err.Error())
		time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
	}
	return types.DocumentResult{}, fmt.Errorf("summarize %s: %w", file, lastErr)
}

// readDocument resolves a reference path inside the project. original_input
// holds the unconverted upload and wins when both copies exist.
func readDocument(projectDir, file string) (string, error) {
	base := filepath.Base(file)
	for _, dir := range []string{"original_input", "input"} {
		raw, err := os.ReadFile(filepath.Join(projectDir, dir, base))
		if err == nil {
			if len(raw) > summarizeMaxDocBytes {
				raw = raw[:summarizeMaxDocBytes]
			}
			return string(raw), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read document %s: %w", file, err)
		}
	}
	return "", fmt.Errorf("document %s not found under %s", file, projectDir)
}

// Rank orders results by relevancy weight, highest first. The sort is stable
// so equal grades keep their summarization order.
func Rank(results []types.DocumentResult) []types.DocumentResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevancy.Weight() > results[j].Relevancy.Weight()
	})
	return results
}
