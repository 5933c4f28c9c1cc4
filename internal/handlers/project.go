package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/engine"
	"github.com/onepointltd/kbserver/internal/ingest"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

// ProjectHandler serves project listing, querying, context inspection, chat,
// and index uploads.
type ProjectHandler struct {
	log *logger.Logger
	rt  *Runtime
}

func NewProjectHandler(rt *Runtime) *ProjectHandler {
	return &ProjectHandler{log: rt.Log.With("handler", "ProjectHandler"), rt: rt}
}

// List groups the tenant's projects by engine.
func (h *ProjectHandler) List(c *gin.Context) {
	scope, ok := h.rt.resolveTenant(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	out := gin.H{}
	for eng, key := range map[types.Engine]string{
		types.EngineGraph: "graphrag_projects",
		types.EngineLight: "lightrag_projects",
		types.EngineCache: "cag_projects",
	} {
		projects, err := h.rt.Repos.Projects.FindByEngine(ctx, scope.Schema, eng)
		if err != nil {
			InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Project listing failed", err.Error())
			return
		}
		names := make([]string, 0, len(projects))
		for _, p := range projects {
			names = append(names, p.Name)
		}
		out[key] = names
	}
	RespondOK(c, out)
}

// Query answers one question against a project in the requested format.
// Unknown search modes are a 400, never a silent fallthrough.
func (h *ProjectHandler) Query(c *gin.Context) {
	scope, ok := h.rt.resolveProject(c, c.Query("engine"), c.Query("project"))
	if !ok {
		return
	}
	question := c.Query("question")
	if question == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "question is required")
		return
	}
	mode, err := types.ParseSearchMode(c.DefaultQuery("search", string(types.ModeHybrid)))
	if err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid search mode", err.Error())
		return
	}
	format, err := types.ParseFormat(c.DefaultQuery("format", string(types.FormatJSON)))
	if err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid format", err.Error())
		return
	}
	contextSize, _ := strconv.Atoi(c.Query("context_size"))

	resp, err := h.rt.Facade.Search(c.Request.Context(), types.SearchParams{
		Format: format,
		Mode:   mode,
		Engine: scope.Engine,
		Context: types.ContextParams{
			Query:            question,
			ProjectDir:       scope.ProjectDir,
			MaxContextTokens: contextSize,
			Format:           types.ContextJSON,
		},
	})
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Query failed", err.Error())
		return
	}

	switch format {
	case types.FormatHTML:
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte("<div>"+resp.Text+"</div>"))
	case types.FormatMarkdown:
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(resp.Text))
	default:
		RespondOK(c, resp)
	}
}

// Context returns the raw retrieval context a query would see, without
// invoking the completion model.
func (h *ProjectHandler) Context(c *gin.Context) {
	scope, ok := h.rt.resolveProject(c, c.Query("engine"), c.Query("project"))
	if !ok {
		return
	}
	question := c.Query("question")
	if question == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "question is required")
		return
	}
	mode, err := types.ParseSearchMode(c.DefaultQuery("search", string(types.ModeHybrid)))
	if err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid search mode", err.Error())
		return
	}

	retrieved, err := h.rt.Retriever.Query(c.Request.Context(), scope.ProjectDir, question, mode)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Context build failed", err.Error())
		return
	}
	maxTokens, _ := strconv.Atoi(c.Query("context_size"))
	entities := engine.TruncateByTokens(retrieved.Entities, maxTokens, h.rt.Retriever.TokenCount)
	relations := engine.TruncateByTokens(retrieved.Relations, maxTokens, h.rt.Retriever.TokenCount)
	textUnits := engine.TruncateByTokens(retrieved.TextUnits, maxTokens, h.rt.Retriever.TokenCount)

	var contextText string
	sources := make([]string, 0, len(textUnits))
	for _, unit := range textUnits {
		if content, ok := unit["content"].(string); ok {
			contextText += content + "\n"
		}
		if file, ok := unit["file_path"].(string); ok && file != "" {
			sources = append(sources, file)
		}
	}
	RespondOK(c, gin.H{
		"context_text":           contextText,
		"sources":                sources,
		"local_context_records":  entities,
		"global_context_records": relations,
	})
}

type chatRequest struct {
	Project string `json:"project"`
	types.SearchParams
}

// Chat runs a conversational turn. Read-only tokens are allowed here by the
// middleware whitelist.
func (h *ProjectHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	scope, ok := h.rt.resolveProject(c, string(req.Engine), req.Project)
	if !ok {
		return
	}
	req.Context.ProjectDir = scope.ProjectDir

	resp, err := h.rt.Facade.Search(c.Request.Context(), req.SearchParams)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Chat failed", err.Error())
		return
	}
	RespondOK(c, resp)
}

type deleteIndexRequest struct {
	Project string `json:"project"`
	Engine  string `json:"engine"`
}

// DeleteIndex clears a project: the engine directory tree and the DB row go
// together, and the cascade FKs take every dependent row with them.
func (h *ProjectHandler) DeleteIndex(c *gin.Context) {
	var req deleteIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	scope, ok := h.rt.resolveProject(c, req.Engine, ingest.NormalizeProjectName(req.Project))
	if !ok {
		return
	}
	if err := h.rt.Tenants.DeleteProjectFolder(scope.TenantDir, scope.Engine, scope.Project); err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Project deletion failed", err.Error())
		return
	}
	if err := h.rt.Repos.Projects.Delete(c.Request.Context(), scope.Schema, scope.Engine, scope.Project); err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Project row deletion failed", err.Error())
		return
	}
	h.log.Info("Project deleted", "engine", string(scope.Engine), "project", scope.Project)
	RespondOK(c, gin.H{"message": "project " + scope.Project + " deleted"})
}

// UploadIndex accepts the multipart upload form and kicks off indexing.
func (h *ProjectHandler) UploadIndex(c *gin.Context) {
	engineName := c.PostForm("engine")
	project := c.PostForm("project")
	scope, ok := h.rt.resolveProject(c, engineName, ingest.NormalizeProjectName(project))
	if !ok {
		return
	}
	zipBase64 := c.PostForm("file")
	if zipBase64 == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "file is required")
		return
	}
	incremental, _ := strconv.ParseBool(c.PostForm("incremental"))

	result, err := h.rt.Ingest.UploadIndex(c.Request.Context(), ingest.UploadInput{
		Schema:      scope.Schema,
		TenantDir:   scope.TenantDir,
		Engine:      scope.Engine,
		Project:     project,
		FileName:    c.PostForm("file_name"),
		ZipBase64:   zipBase64,
		Incremental: incremental,
	})
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Indexing failed", err.Error())
		return
	}
	RespondOK(c, gin.H{
		"message":         "indexed " + result.Project,
		"extracted_files": result.ExtractedFiles,
	})
}
