package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/cache"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/search"
	"github.com/onepointltd/kbserver/internal/types"
)

// SearchHandler serves entity matching, relevant-document search, link
// extraction, and the topic/question generation endpoints.
type SearchHandler struct {
	log *logger.Logger
	rt  *Runtime
}

func NewSearchHandler(rt *Runtime) *SearchHandler {
	return &SearchHandler{log: rt.Log.With("handler", "SearchHandler"), rt: rt}
}

type expandEntitiesRequest struct {
	Project string `json:"project"`
	Engine  string `json:"engine"`
	types.MatchQuery
}

func (h *SearchHandler) ExpandEntities(c *gin.Context) {
	var req expandEntitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	scope, ok := h.rt.resolveProject(c, defaultEngine(req.Engine), req.Project)
	if !ok {
		return
	}
	if !h.rt.requireIndexed(c, scope) {
		return
	}
	out, err := h.rt.Matcher.Match(c.Request.Context(), scope.Schema, scope.ProjectID, scope.ProjectDir, &req.MatchQuery)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Entity matching failed", err.Error())
		return
	}
	RespondOK(c, out)
}

type relevantDocumentsRequest struct {
	Project string `json:"project"`
	Engine  string `json:"engine"`
	types.DocumentSearchQuery
}

func (h *SearchHandler) RelevantDocuments(c *gin.Context) {
	var req relevantDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	scope, ok := h.rt.resolveProject(c, defaultEngine(req.Engine), req.Project)
	if !ok {
		return
	}
	if !h.rt.requireIndexed(c, scope) {
		return
	}
	results, err := h.rt.Pipeline.RelevantDocuments(c.Request.Context(), search.Input{
		Schema:     scope.Schema,
		ProjectID:  scope.ProjectID,
		ProjectDir: scope.ProjectDir,
		Engine:     scope.Engine,
		Query:      &req.DocumentSearchQuery,
	})
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Search failed", err.Error())
		return
	}
	RespondOK(c, results)
}

type extractLinksRequest struct {
	Project string `json:"project"`
	Engine  string `json:"engine"`
	Verify  bool   `json:"verify"`
}

// ExtractLinks scans the project inputs for URLs, optionally verifies them,
// and persists the surviving (path, link) pairs.
func (h *SearchHandler) ExtractLinks(c *gin.Context) {
	var req extractLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	scope, ok := h.rt.resolveProject(c, defaultEngine(req.Engine), req.Project)
	if !ok {
		return
	}
	if !h.rt.requireIndexed(c, scope) {
		return
	}
	pathLinks, err := h.rt.Links.ExtractLinks(scope.ProjectDir)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Link extraction failed", err.Error())
		return
	}
	if req.Verify {
		pathLinks = h.rt.Links.VerifyLinks(c.Request.Context(), pathLinks)
	}
	rows := search.PathLinks(scope.ProjectID, pathLinks)
	if err := h.rt.Repos.PathLinks.UpsertMany(c.Request.Context(), scope.Schema, rows); err != nil {
		h.log.Error("Path link persistence failed", "project_id", scope.ProjectID, "error", err)
	}
	RespondOK(c, gin.H{"links": pathLinks})
}

type generateQuestionsRequest struct {
	Project string   `json:"project"`
	Engine  string   `json:"engine"`
	Topics  []string `json:"topics"`
}

const questionsSystemPrompt = `For each topic, write three concrete questions a reader of the
indexed knowledge base would plausibly ask about it. Questions must be answerable from
documents about the topic, not general trivia.`

func questionsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topics": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":      map[string]any{"type": "string"},
						"questions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required":             []string{"name", "questions"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"topics"},
		"additionalProperties": false,
	}
}

// GenerateQuestions builds per-topic question lists. The result is cached in
// the project cache keyed by the request's topic list.
func (h *SearchHandler) GenerateQuestions(c *gin.Context) {
	var req generateQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	if len(req.Topics) == 0 {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "topics are required")
		return
	}
	scope, ok := h.rt.resolveProject(c, defaultEngine(req.Engine), req.Project)
	if !ok {
		return
	}
	if !h.rt.requireIndexed(c, scope) {
		return
	}

	projectCache := cache.NewProjectCache(scope.ProjectDir)
	cacheKey := questionsCacheKey(req.Topics)
	var cached map[string][]string
	if found, err := projectCache.Get(cacheKey, &cached); err == nil && found {
		RespondOK(c, gin.H{"questions": cached})
		return
	}

	out, err := h.rt.LLM.GenerateJSON(c.Request.Context(), questionsSystemPrompt,
		"Topics:\n- "+strings.Join(req.Topics, "\n- "), nil, "topic_questions", questionsSchema())
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Question generation failed", err.Error())
		return
	}

	questions := make(map[string][]string, len(req.Topics))
	items, _ := out["topics"].([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := obj["name"].(string)
		var qs []string
		if rawQs, ok := obj["questions"].([]any); ok {
			for _, q := range rawQs {
				if s, ok := q.(string); ok {
					qs = append(qs, s)
				}
			}
		}
		questions[name] = qs
		if _, err := h.rt.Repos.Topics.Upsert(c.Request.Context(), scope.Schema, &types.Topic{
			ProjectID: scope.ProjectID,
			Name:      name,
			Type:      "generated",
			Questions: qs,
		}); err != nil {
			h.log.Error("Topic persistence failed", "topic", name, "error", err)
		}
	}
	if err := projectCache.Set(cacheKey, questions); err != nil {
		h.log.Error("Question cache write failed", "error", err)
	}
	RespondOK(c, gin.H{"questions": questions})
}

// questionsCacheKey keys the cache by the actual topic list, order included.
func questionsCacheKey(topics []string) string {
	sum := sha256.Sum256([]byte(strings.Join(topics, "\x00")))
	return "questions_" + hex.EncodeToString(sum[:])
}

// searchHistoryEntry is one history row with its persisted keywords attached.
type searchHistoryEntry struct {
	types.SearchHistory
	Keywords []types.Keyword `json:"keywords"`
}

// History lists the most recent searches of a project, newest first, with the
// keywords each search expanded to.
func (h *SearchHandler) History(c *gin.Context) {
	scope, ok := h.rt.resolveProject(c, defaultEngine(c.Query("engine")), c.Query("project"))
	if !ok {
		return
	}
	if !h.rt.requireIndexed(c, scope) {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.rt.Repos.SearchHistory.FindByProject(c.Request.Context(), scope.Schema, scope.ProjectID, limit)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "History listing failed", err.Error())
		return
	}
	entries := make([]searchHistoryEntry, 0, len(rows))
	for _, row := range rows {
		keywords, err := h.rt.Repos.Keywords.FindBySearchID(c.Request.Context(), scope.Schema, row.ID)
		if err != nil {
			InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "History listing failed", err.Error())
			return
		}
		entries = append(entries, searchHistoryEntry{SearchHistory: row, Keywords: keywords})
	}
	RespondOK(c, gin.H{"history": entries})
}

// Topics lists the stored topics of a project.
func (h *SearchHandler) Topics(c *gin.Context) {
	scope, ok := h.rt.resolveProject(c, defaultEngine(c.Query("engine")), c.Query("project"))
	if !ok {
		return
	}
	if !h.rt.requireIndexed(c, scope) {
		return
	}
	topics, err := h.rt.Repos.Topics.FindByProject(c.Request.Context(), scope.Schema, scope.ProjectID)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Topic listing failed", err.Error())
		return
	}
	RespondOK(c, gin.H{"topics": topics})
}

type relatedTopicsRequest struct {
	Project string `json:"project"`
	Engine  string `json:"engine"`
	Topic   string `json:"topic"`
}

const relatedTopicsSystemPrompt = `From the candidate topic list, pick the topics most closely
related to the given topic. Return only names from the candidate list.`

func relatedTopicsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"related": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"related"},
		"additionalProperties": false,
	}
}

// RelatedTopics picks the stored topics nearest to the given one.
func (h *SearchHandler) RelatedTopics(c *gin.Context) {
	var req relatedTopicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	if req.Topic == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "topic is required")
		return
	}
	scope, ok := h.rt.resolveProject(c, defaultEngine(req.Engine), req.Project)
	if !ok {
		return
	}
	if !h.rt.requireIndexed(c, scope) {
		return
	}
	topics, err := h.rt.Repos.Topics.FindByProject(c.Request.Context(), scope.Schema, scope.ProjectID)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Topic listing failed", err.Error())
		return
	}
	if len(topics) == 0 {
		RespondOK(c, gin.H{"related": []string{}})
		return
	}

	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Name)
	}
	user := fmt.Sprintf("Topic: %s\nCandidates:\n- %s", req.Topic, strings.Join(names, "\n- "))
	out, err := h.rt.LLM.GenerateJSON(c.Request.Context(), relatedTopicsSystemPrompt, user, nil, "related_topics", relatedTopicsSchema())
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Related-topic lookup failed", err.Error())
		return
	}
	var related []string
	if items, ok := out["related"].([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				related = append(related, s)
			}
		}
	}
	RespondOK(c, gin.H{"related": related})
}

func defaultEngine(name string) string {
	if name == "" {
		return string(types.EngineLight)
	}
	return name
}
