package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/snippet"
)

// SnippetHandler serves embeddable widget snippets and direct chat URLs.
type SnippetHandler struct {
	log *logger.Logger
	rt  *Runtime
}

func NewSnippetHandler(rt *Runtime) *SnippetHandler {
	return &SnippetHandler{log: rt.Log.With("handler", "SnippetHandler"), rt: rt}
}

type generateSnippetRequest struct {
	Project       string `json:"project"`
	WidgetType    string `json:"widget_type"`
	RootElementID string `json:"root_element_id"`
}

// GenerateSnippet renders the embed snippet. The embedded token is read-only:
// the widget may chat and search but never mutate the tenant.
func (h *SnippetHandler) GenerateSnippet(c *gin.Context) {
	var req generateSnippetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	scope, ok := h.rt.resolveTenant(c)
	if !ok {
		return
	}
	if req.Project == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "project is required")
		return
	}
	token, _, err := h.rt.Auth.MintToken(scope.Claims.Name, scope.Claims.Email,
		[]string{services.PermissionRead}, false)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Token mint failed", err.Error())
		return
	}
	html, err := h.rt.Snippets.Render(snippet.Model{
		WidgetType:    req.WidgetType,
		RootElementID: req.RootElementID,
		Token:         token,
		Project:       req.Project,
	})
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Snippet rendering failed", err.Error())
		return
	}
	RespondOK(c, gin.H{"snippet": html})
}

type directURLRequest struct {
	ChatType   string `json:"chat_type"`
	Project    string `json:"project"`
	Platform   string `json:"platform"`
	SearchType string `json:"search_type"`
	Streaming  bool   `json:"streaming"`
}

func (h *SnippetHandler) GenerateDirectURL(c *gin.Context) {
	var req directURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	scope, ok := h.rt.resolveTenant(c)
	if !ok {
		return
	}
	kind, err := snippet.ParseChatKind(req.ChatType)
	if err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid chat type", err.Error())
		return
	}
	if req.Project == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "project is required")
		return
	}
	token, _, err := h.rt.Auth.MintToken(scope.Claims.Name, scope.Claims.Email,
		[]string{services.PermissionRead}, false)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Token mint failed", err.Error())
		return
	}
	url := h.rt.Snippets.DirectURL(kind, req.Project, req.Platform, req.SearchType, token, req.Streaming)
	RespondOK(c, gin.H{"url": url})
}
