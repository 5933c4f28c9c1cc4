package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/config"
	"github.com/onepointltd/kbserver/internal/handlers"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/services"
)

// readTokenWhitelist lists the mutating path fragments a read-only token may
// still call: conversational and generative endpoints that never change
// tenant state.
var readTokenWhitelist = []string{
	"chat",
	"search",
	"questions",
	"related-topics",
	"pdf-generate",
}

// AuthMiddleware decodes bearer tokens and enforces the per-group scope
// rules: admin-only tenant management and the write-permission requirement on
// mutating methods.
type AuthMiddleware struct {
	log       *logger.Logger
	auth      services.AuthService
	adminFile *config.AdminFile
}

func NewAuthMiddleware(auth services.AuthService, adminFile *config.AdminFile, baseLog *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		log:       baseLog.With("middleware", "AuthMiddleware"),
		auth:      auth,
		adminFile: adminFile,
	}
}

// Authenticate guards the /protected tree. Preflight and non-protected paths
// pass untouched; everything else needs a decodable token, and the token's
// scope must cover the path and method.
func (am *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		path := c.Request.URL.Path
		if !strings.HasPrefix(path, "/protected") {
			c.Next()
			return
		}

		claims, ok := am.decode(c)
		if !ok {
			return
		}
		c.Set(handlers.ClaimsKey, claims)

		if strings.HasPrefix(path, "/protected/tennant") && !am.adminFile.IsAdministrator(claims.Email) {
			am.log.Warn("Tenant management denied", "email", claims.Email, "path", path)
			handlers.InvalidResponse(c, http.StatusUnauthorized, handlers.CodeUnauthorized,
				"Unauthorized", "tenant management requires an administrator token")
			return
		}
		if isMutating(c.Request.Method) && !claims.HasPermission(services.PermissionWrite) && !whitelisted(path) {
			handlers.InvalidResponse(c, http.StatusUnauthorized, handlers.CodeUnauthorized,
				"Unauthorized", "token lacks write permission")
			return
		}
		c.Next()
	}
}

// RequireAdmin guards the /admin group: any decodable token whose email is on
// the administrators list.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		claims, ok := am.decode(c)
		if !ok {
			return
		}
		if !am.adminFile.IsAdministrator(claims.Email) {
			handlers.InvalidResponse(c, http.StatusUnauthorized, handlers.CodeUnauthorized,
				"Unauthorized", "administrator access required")
			return
		}
		c.Set(handlers.ClaimsKey, claims)
		c.Next()
	}
}

func (am *AuthMiddleware) decode(c *gin.Context) (*services.TokenClaims, bool) {
	token := handlers.TokenFromRequest(c)
	if token == "" {
		handlers.InvalidResponse(c, http.StatusUnauthorized, handlers.CodeUnauthorized,
			"Unauthorized", "missing bearer token")
		return nil, false
	}
	claims, err := am.auth.DecodeToken(token)
	if err != nil {
		handlers.InvalidResponse(c, http.StatusUnauthorized, handlers.CodeUnauthorized,
			"Unauthorized", err.Error())
		return nil, false
	}
	return claims, true
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func whitelisted(path string) bool {
	for _, fragment := range readTokenWhitelist {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}
