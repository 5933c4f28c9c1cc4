package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/config"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/types"
)

type stubAuth struct {
	claims map[string]*services.TokenClaims
}

func (s *stubAuth) MintToken(name, email string, permissions []string, materializeTenant bool) (string, string, error) {
	return "", "", errors.New("not implemented")
}

func (s *stubAuth) DecodeToken(tokenString string) (*services.TokenClaims, error) {
	claims, ok := s.claims[tokenString]
	if !ok {
		return nil, services.ErrInvalidToken
	}
	return claims, nil
}

func (s *stubAuth) Bootstrap(ctx context.Context) (string, error) { return "", nil }
func (s *stubAuth) AdminLogin(ctx context.Context, name, email, password string) (string, error) {
	return "", errors.New("not implemented")
}
func (s *stubAuth) CreateAdminUser(ctx context.Context, name, email, password string) (*types.AdminUser, error) {
	return nil, errors.New("not implemented")
}
func (s *stubAuth) ListAdminUsers(ctx context.Context) ([]types.AdminUser, error) { return nil, nil }
func (s *stubAuth) DeleteAdminUser(ctx context.Context, email string) error       { return nil }

func testRouter(auth services.AuthService, adminFile *config.AdminFile) *gin.Engine {
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(auth, adminFile, logger.NewNop())
	router := gin.New()
	router.Use(am.Authenticate())
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	router.GET("/", ok)
	router.POST("/protected/tennant/create", ok)
	router.GET("/protected/projects", ok)
	router.POST("/protected/project/upload_index", ok)
	router.DELETE("/protected/project/delete_index", ok)
	router.POST("/protected/project/chat", ok)
	router.POST("/protected/search/relevant_documents", ok)
	router.GET("/protected/search/history", ok)
	router.POST("/protected/pdf/pdf-generate", ok)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthenticateSkipsPublicPaths(t *testing.T) {
	t.Parallel()
	router := testRouter(&stubAuth{}, &config.AdminFile{})
	if w := do(t, router, http.MethodGet, "/", ""); w.Code != http.StatusOK {
		t.Fatalf("public path status = %d", w.Code)
	}
}

func TestAuthenticateRequiresToken(t *testing.T) {
	t.Parallel()
	router := testRouter(&stubAuth{}, &config.AdminFile{})
	if w := do(t, router, http.MethodGet, "/protected/projects", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/protected/projects", "bogus"); w.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token status = %d, want 401", w.Code)
	}
}

func TestAuthenticateTenantManagementNeedsAdmin(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{claims: map[string]*services.TokenClaims{
		"plain": {Name: "User", Email: "user@example.com"},
		"admin": {Name: "Admin", Email: "admin@example.com"},
	}}
	adminFile := &config.AdminFile{Administrators: []string{"admin@example.com"}}
	router := testRouter(auth, adminFile)

	if w := do(t, router, http.MethodPost, "/protected/tennant/create", "plain"); w.Code != http.StatusUnauthorized {
		t.Fatalf("non-admin tenant create status = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/protected/tennant/create", "admin"); w.Code != http.StatusOK {
		t.Fatalf("admin tenant create status = %d, want 200", w.Code)
	}
}

func TestAuthenticateReadTokenScope(t *testing.T) {
	t.Parallel()
	auth := &stubAuth{claims: map[string]*services.TokenClaims{
		"read": {Name: "Widget", Email: "w@example.com", Permissions: []string{services.PermissionRead}},
		"full": {Name: "Owner", Email: "o@example.com"},
	}}
	router := testRouter(auth, &config.AdminFile{})

	// mutating routes off the whitelist reject read tokens
	if w := do(t, router, http.MethodPost, "/protected/project/upload_index", "read"); w.Code != http.StatusUnauthorized {
		t.Fatalf("read token upload status = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/protected/project/delete_index", "read"); w.Code != http.StatusUnauthorized {
		t.Fatalf("read token delete_index status = %d, want 401", w.Code)
	}
	// whitelisted conversational routes stay open
	for _, path := range []string{
		"/protected/project/chat",
		"/protected/search/relevant_documents",
		"/protected/pdf/pdf-generate",
	} {
		if w := do(t, router, http.MethodPost, path, "read"); w.Code != http.StatusOK {
			t.Fatalf("read token %s status = %d, want 200", path, w.Code)
		}
	}
	// GETs never need write permission
	for _, path := range []string{"/protected/projects", "/protected/search/history"} {
		if w := do(t, router, http.MethodGet, path, "read"); w.Code != http.StatusOK {
			t.Fatalf("read token GET %s status = %d, want 200", path, w.Code)
		}
	}
	// full tokens pass everywhere outside tenant management
	if w := do(t, router, http.MethodPost, "/protected/project/upload_index", "full"); w.Code != http.StatusOK {
		t.Fatalf("full token upload status = %d, want 200", w.Code)
	}
}
