package tenant

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

var (
	// ErrNoTenant reports a token whose tenant folder does not exist.
	ErrNoTenant = errors.New("no tenant folder for token")
	// ErrTenantExists reports a create against an already-materialized folder.
	ErrTenantExists = errors.New("tenant folder already exists")
)

// Descriptor is the tenant.json file written at folder creation.
type Descriptor struct {
	FolderName string    `json:"folder_name"`
	Token      string    `json:"token"`
	CreatedAt  time.Time `json:"created_at"`
}

// Service maps token subjects to per-tenant filesystem roots and locates
// engine project directories beneath them.
type Service struct {
	root string
	log  *logger.Logger
}

func NewService(root string, log *logger.Logger) *Service {
	return &Service{root: root, log: log.With("service", "TenantService")}
}

func (s *Service) Root() string { return s.root }

// ExtractTenantFolder resolves the folder for a token subject, failing when
// the folder has not been materialized.
func (s *Service) ExtractTenantFolder(subject string) (string, error) {
	if subject == "" {
		return "", ErrNoTenant
	}
	dir := filepath.Join(s.root, subject)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNoTenant, subject)
	}
	return dir, nil
}

// FindProjectFolder returns <tenant>/<engine>/<project>, creating the
// directory tree if absent.
func (s *Service) FindProjectFolder(tenantDir string, engine types.Engine, project string) (string, error) {
	dir := filepath.Join(tenantDir, string(engine), project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create project folder: %w", err)
	}
	return dir, nil
}

// CreateTenantFolder materializes the folder for a subject and writes the
// tenant.json descriptor. Fails when the folder already exists.
func (s *Service) CreateTenantFolder(subject, token string) (string, error) {
	dir := filepath.Join(s.root, subject)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrTenantExists, subject)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create tenant folder: %w", err)
	}
	desc := Descriptor{FolderName: subject, Token: token, CreatedAt: time.Now().UTC()}
	raw, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tenant descriptor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tenant.json"), raw, 0o600); err != nil {
		return "", fmt.Errorf("write tenant descriptor: %w", err)
	}
	s.log.Info("Tenant folder created", "folder", subject)
	return dir, nil
}

// DeleteTenantFolderByFolder removes the tenant tree recursively. Any cache
// keyed by paths under the tree is invalid afterwards.
func (s *Service) DeleteTenantFolderByFolder(folder string) error {
	if folder == "" || folder == "." || folder == ".." {
		return fmt.Errorf("invalid tenant folder %q", folder)
	}
	dir := filepath.Join(s.root, folder)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", ErrNoTenant, folder)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete tenant folder: %w", err)
	}
	s.log.Info("Tenant folder deleted", "folder", folder)
	return nil
}

// DeleteProjectFolder removes <tenant>/<engine>/<project> recursively. The
// project name must be a plain directory name, never a path.
func (s *Service) DeleteProjectFolder(tenantDir string, engine types.Engine, project string) error {
	if project == "" || project == "." || project == ".." || project != filepath.Base(project) {
		return fmt.Errorf("invalid project name %q", project)
	}
	dir := filepath.Join(tenantDir, string(engine), project)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete project folder: %w", err)
	}
	s.log.Info("Project folder deleted", "engine", string(engine), "project", project)
	return nil
}

// ListProjectFolders returns the project directory names for one engine.
func (s *Service) ListProjectFolders(tenantDir string, engine types.Engine) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(tenantDir, string(engine)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
