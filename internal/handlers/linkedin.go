package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/logger"
)

// LinkedInHandler serves synchronous profile extraction; the streaming
// variant lives on the WebSocket hub.
type LinkedInHandler struct {
	log *logger.Logger
	rt  *Runtime
}

func NewLinkedInHandler(rt *Runtime) *LinkedInHandler {
	return &LinkedInHandler{log: rt.Log.With("handler", "LinkedInHandler"), rt: rt}
}

type extractProfileRequest struct {
	Project     string `json:"project"`
	Engine      string `json:"engine"`
	LinkedInURL string `json:"linkedin_url"`
}

func (h *LinkedInHandler) ExtractProfile(c *gin.Context) {
	var req extractProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	if req.LinkedInURL == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "linkedin_url is required")
		return
	}
	scope, ok := h.rt.resolveProject(c, defaultEngine(req.Engine), req.Project)
	if !ok {
		return
	}
	if !h.rt.requireIndexed(c, scope) {
		return
	}
	profile, err := h.rt.LinkedIn.ExtractProfile(c.Request.Context(), scope.Schema, scope.ProjectID, req.LinkedInURL, nil)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Profile extraction failed", err.Error())
		return
	}
	RespondOK(c, gin.H{"profile": profile})
}
