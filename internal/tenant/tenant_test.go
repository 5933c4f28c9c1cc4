package tenant

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

func TestTenantFolderLifecycle(t *testing.T) {
	t.Parallel()
	s := NewService(t.TempDir(), logger.NewNop())

	dir, err := s.CreateTenantFolder("acme_corp", "tok")
	if err != nil {
		t.Fatalf("CreateTenantFolder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tenant.json")); err != nil {
		t.Fatalf("tenant descriptor not written: %v", err)
	}

	if _, err := s.CreateTenantFolder("acme_corp", "tok"); !errors.Is(err, ErrTenantExists) {
		t.Fatalf("second create err = %v, want ErrTenantExists", err)
	}

	found, err := s.ExtractTenantFolder("acme_corp")
	if err != nil {
		t.Fatalf("ExtractTenantFolder: %v", err)
	}
	if found != dir {
		t.Fatalf("ExtractTenantFolder = %s, want %s", found, dir)
	}

	if err := s.DeleteTenantFolderByFolder("acme_corp"); err != nil {
		t.Fatalf("DeleteTenantFolderByFolder: %v", err)
	}
	if _, err := s.ExtractTenantFolder("acme_corp"); !errors.Is(err, ErrNoTenant) {
		t.Fatalf("extract after delete err = %v, want ErrNoTenant", err)
	}
	if err := s.DeleteTenantFolderByFolder("acme_corp"); !errors.Is(err, ErrNoTenant) {
		t.Fatalf("second delete err = %v, want ErrNoTenant", err)
	}
}

func TestExtractTenantFolderRejectsEmptySubject(t *testing.T) {
	t.Parallel()
	s := NewService(t.TempDir(), logger.NewNop())
	if _, err := s.ExtractTenantFolder(""); !errors.Is(err, ErrNoTenant) {
		t.Fatalf("err = %v, want ErrNoTenant", err)
	}
}

func TestDeleteTenantFolderRejectsTraversal(t *testing.T) {
	t.Parallel()
	s := NewService(t.TempDir(), logger.NewNop())
	for _, folder := range []string{"", ".", ".."} {
		if err := s.DeleteTenantFolderByFolder(folder); err == nil {
			t.Fatalf("delete %q succeeded, want error", folder)
		}
	}
}

func TestDeleteProjectFolder(t *testing.T) {
	t.Parallel()
	s := NewService(t.TempDir(), logger.NewNop())
	tenantDir, err := s.CreateTenantFolder("acme", "tok")
	if err != nil {
		t.Fatalf("CreateTenantFolder: %v", err)
	}
	dir, err := s.FindProjectFolder(tenantDir, types.EngineLight, "handbook")
	if err != nil {
		t.Fatalf("FindProjectFolder: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed project file: %v", err)
	}

	if err := s.DeleteProjectFolder(tenantDir, types.EngineLight, "handbook"); err != nil {
		t.Fatalf("DeleteProjectFolder: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("project dir still present after delete: %v", err)
	}
	// the tenant folder itself must survive
	if _, err := s.ExtractTenantFolder("acme"); err != nil {
		t.Fatalf("tenant folder gone after project delete: %v", err)
	}

	// deleting an absent project is a no-op, not an error
	if err := s.DeleteProjectFolder(tenantDir, types.EngineLight, "handbook"); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	for _, name := range []string{"", ".", "..", "../acme", "a/b"} {
		if err := s.DeleteProjectFolder(tenantDir, types.EngineLight, name); err == nil {
			t.Fatalf("delete %q succeeded, want error", name)
		}
	}
}

func TestFindProjectFolderCreatesTree(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s := NewService(root, logger.NewNop())
	tenantDir, err := s.CreateTenantFolder("acme", "tok")
	if err != nil {
		t.Fatalf("CreateTenantFolder: %v", err)
	}

	dir, err := s.FindProjectFolder(tenantDir, types.EngineGraph, "handbook")
	if err != nil {
		t.Fatalf("FindProjectFolder: %v", err)
	}
	if dir != filepath.Join(tenantDir, "graph", "handbook") {
		t.Fatalf("project dir = %s", dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("project dir not materialized: %v", err)
	}

	names, err := s.ListProjectFolders(tenantDir, types.EngineGraph)
	if err != nil {
		t.Fatalf("ListProjectFolders: %v", err)
	}
	if len(names) != 1 || names[0] != "handbook" {
		t.Fatalf("ListProjectFolders = %v", names)
	}

	empty, err := s.ListProjectFolders(tenantDir, types.EngineCache)
	if err != nil || empty != nil {
		t.Fatalf("ListProjectFolders for unused engine = %v, %v", empty, err)
	}
}
