package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/services"
)

// TokenHandler validates and derives tokens.
type TokenHandler struct {
	log *logger.Logger
	rt  *Runtime
}

func NewTokenHandler(rt *Runtime) *TokenHandler {
	return &TokenHandler{log: rt.Log.With("handler", "TokenHandler"), rt: rt}
}

// Validate checks a token outside the protected tree. Read-only tokens are
// rejected: embed tokens must not pass for full credentials.
func (h *TokenHandler) Validate(c *gin.Context) {
	token := TokenFromRequest(c)
	if token == "" {
		InvalidResponse(c, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", "missing token")
		return
	}
	claims, err := h.rt.Auth.DecodeToken(token)
	if err != nil {
		InvalidResponse(c, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", err.Error())
		return
	}
	if claims.ReadOnly() {
		InvalidResponse(c, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", "read-only tokens are not valid here")
		return
	}
	RespondOK(c, gin.H{"valid": true, "name": claims.Name, "email": claims.Email, "folder_name": claims.Subject})
}

// GenerateReadToken mints a read-only sibling of the caller's token, for
// embedding in widgets and shared URLs.
func (h *TokenHandler) GenerateReadToken(c *gin.Context) {
	scope, ok := h.rt.resolveTenant(c)
	if !ok {
		return
	}
	token, _, err := h.rt.Auth.MintToken(scope.Claims.Name, scope.Claims.Email,
		[]string{services.PermissionRead}, false)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Token mint failed", err.Error())
		return
	}
	RespondOK(c, gin.H{"token": token})
}
