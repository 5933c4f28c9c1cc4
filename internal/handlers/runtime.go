package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/bus"
	"github.com/onepointltd/kbserver/internal/config"
	"github.com/onepointltd/kbserver/internal/engine"
	"github.com/onepointltd/kbserver/internal/ingest"
	"github.com/onepointltd/kbserver/internal/linkedin"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/repos"
	"github.com/onepointltd/kbserver/internal/search"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/snippet"
	"github.com/onepointltd/kbserver/internal/tenant"
	"github.com/onepointltd/kbserver/internal/types"
)

// ClaimsKey is where the auth middleware stores decoded token claims on the
// request context.
const ClaimsKey = "token_claims"

// Runtime bundles every service the handlers depend on. It is built once in
// main and passed to each handler constructor.
type Runtime struct {
	Cfg       config.Config
	Log       *logger.Logger
	Auth      services.AuthService
	AdminFile *config.AdminFile
	Tenants   *tenant.Service
	Repos     *repos.Repos
	Facade    *engine.Facade
	Retriever engine.Retriever
	LLM       services.LLMClient
	Pipeline  *search.Pipeline
	Matcher   *search.Matcher
	Links     *search.LinkExtractor
	LinkedIn  *linkedin.Service
	Ingest    *ingest.Service
	Snippets  *snippet.Generator
	Bus       bus.ProgressBus
}

// Claims returns the decoded token claims the middleware attached, or nil on
// unauthenticated routes.
func Claims(c *gin.Context) *services.TokenClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*services.TokenClaims)
	return claims
}

// tenantScope is the resolved coordinate system of one authenticated request.
type tenantScope struct {
	Schema    string
	TenantDir string
	Claims    *services.TokenClaims
}

// resolveTenant maps the request token to its tenant folder and DB schema.
// A missing folder is a 404: the tenant was deleted after the token was cut.
func (rt *Runtime) resolveTenant(c *gin.Context) (*tenantScope, bool) {
	claims := Claims(c)
	if claims == nil {
		InvalidResponse(c, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", "missing token claims")
		return nil, false
	}
	dir, err := rt.Tenants.ExtractTenantFolder(claims.Subject)
	if err != nil {
		if errors.Is(err, tenant.ErrNoTenant) {
			InvalidResponse(c, http.StatusNotFound, CodeNotFound, "Tenant not found", err.Error())
		} else {
			InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Tenant lookup failed", err.Error())
		}
		return nil, false
	}
	return &tenantScope{Schema: claims.Subject, TenantDir: dir, Claims: claims}, true
}

// projectScope additionally locates one project of the tenant.
type projectScope struct {
	tenantScope
	Engine     types.Engine
	Project    string
	ProjectDir string
	ProjectID  int64
}

// resolveProject resolves the (engine, project) pair inside a tenant. The
// project row may be absent for never-indexed projects; ProjectID is zero
// then.
func (rt *Runtime) resolveProject(c *gin.Context, engineName, project string) (*projectScope, bool) {
	scope, ok := rt.resolveTenant(c)
	if !ok {
		return nil, false
	}
	eng, err := types.ParseEngine(engineName)
	if err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid engine", err.Error())
		return nil, false
	}
	if project == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid project", "missing project name")
		return nil, false
	}
	dir, err := rt.Tenants.FindProjectFolder(scope.TenantDir, eng, project)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Project lookup failed", err.Error())
		return nil, false
	}
	out := &projectScope{tenantScope: *scope, Engine: eng, Project: project, ProjectDir: dir}
	row, err := rt.Repos.Projects.FindByName(c.Request.Context(), scope.Schema, eng, project)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Project lookup failed", err.Error())
		return nil, false
	}
	if row != nil {
		out.ProjectID = row.ID
	}
	return out, true
}

// requireIndexed fails with 404 when the project has no DB row yet.
func (rt *Runtime) requireIndexed(c *gin.Context, scope *projectScope) bool {
	if scope.ProjectID == 0 {
		InvalidResponse(c, http.StatusNotFound, CodeNotFound, "Project not found",
			fmt.Sprintf("project %q has not been indexed", scope.Project))
		return false
	}
	return true
}

// TokenFromRequest pulls the bearer token from the Authorization header or
// the token query parameter.
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); len(header) > 7 && header[:7] == "Bearer " {
		return header[7:]
	}
	return c.Query("token")
}
