package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/onepointltd/kbserver/internal/cache"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/repos"
	"github.com/onepointltd/kbserver/internal/search"
	"github.com/onepointltd/kbserver/internal/tenant"
	"github.com/onepointltd/kbserver/internal/types"
)

// incrementalFailureTolerance is how many per-file failures an incremental
// batch swallows before the whole batch fails.
const incrementalFailureTolerance = 3

var projectNamePattern = regexp.MustCompile(`[^a-z0-9_-]`)

// NormalizeProjectName lowercases the name and maps every character outside
// [a-z0-9_-] to an underscore.
func NormalizeProjectName(name string) string {
	return projectNamePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
}

// UploadInput is one decoded upload_index request, already resolved to a
// tenant.
type UploadInput struct {
	Schema      string
	TenantDir   string
	Engine      types.Engine
	Project     string
	FileName    string
	ZipBase64   string
	Incremental bool
	Sink        types.ProgressSink
}

type UploadResult struct {
	Project        string `json:"project"`
	ExtractedFiles int    `json:"extracted_files"`
}

// Service owns index ingestion: store the upload, lay out the project
// directories, convert PDFs, and hand off to the engine indexer.
type Service struct {
	log        *logger.Logger
	tenants    *tenant.Service
	converter  Converter
	indexer    Indexer
	projects   *repos.ProjectRepo
	centrality *repos.CentralityTopicRepo
	expanded   *repos.ExpandedEntityRepo
}

func NewService(tenants *tenant.Service, converter Converter, indexer Indexer, projects *repos.ProjectRepo, centrality *repos.CentralityTopicRepo, expanded *repos.ExpandedEntityRepo, baseLog *logger.Logger) *Service {
	return &Service{
		log:        baseLog.With("service", "IngestService"),
		tenants:    tenants,
		converter:  converter,
		indexer:    indexer,
		projects:   projects,
		centrality: centrality,
		expanded:   expanded,
	}
}

func (s *Service) UploadIndex(ctx context.Context, in UploadInput) (*UploadResult, error) {
	sink := in.Sink
	if sink == nil {
		sink = types.NoopSink{}
	}
	project := NormalizeProjectName(in.Project)
	if project == "" {
		return nil, fmt.Errorf("empty project name")
	}

	zipBytes, err := base64.StdEncoding.DecodeString(in.ZipBase64)
	if err != nil {
		return nil, fmt.Errorf("decode upload: %w", err)
	}
	if err := s.storeUpload(in.TenantDir, in.FileName, zipBytes); err != nil {
		return nil, err
	}

	projectDir, err := s.tenants.FindProjectFolder(in.TenantDir, in.Engine, project)
	if err != nil {
		return nil, err
	}

	reader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("open upload archive: %w", err)
	}

	var files []string
	if in.Incremental && in.Engine == types.EngineLight {
		files, err = s.extractIncremental(ctx, reader, projectDir, sink)
	} else {
		files, err = s.extractFull(ctx, reader, projectDir, sink)
	}
	if err != nil {
		return nil, err
	}

	row := &types.Project{Engine: in.Engine, Name: project, InputFiles: files, Status: types.IndexRunning}
	projectID, err := s.projects.Upsert(ctx, in.Schema, row)
	if err != nil {
		return nil, fmt.Errorf("upsert project: %w", err)
	}

	if err := s.indexer.Index(ctx, in.Engine, projectDir, files, sink); err != nil {
		if stErr := s.projects.SetStatus(ctx, in.Schema, projectID, types.IndexFailed); stErr != nil {
			s.log.Error("Status update failed", "project_id", projectID, "error", stErr)
		}
		return nil, err
	}
	if err := s.projects.SetStatus(ctx, in.Schema, projectID, types.IndexCompleted); err != nil {
		s.log.Error("Status update failed", "project_id", projectID, "error", err)
	}
	s.syncDerived(ctx, in, projectID, projectDir)

	sink.Notify(fmt.Sprintf("Indexed %d files into %s", len(files), project))
	return &UploadResult{Project: project, ExtractedFiles: len(files)}, nil
}

// syncDerived refreshes the DB-side derivatives of a finished index run: the
// centrality ranking is mirrored into tb_topics_with_centrality, and
// incremental runs deactivate the cached entity matches the re-indexed graph
// may have outdated. Both writes are best-effort.
func (s *Service) syncDerived(ctx context.Context, in UploadInput, projectID int64, projectDir string) {
	if s.expanded != nil && in.Incremental {
		if err := s.expanded.Invalidate(ctx, in.Schema, projectID); err != nil {
			s.log.Warn("Expanded-entity invalidation failed", "project_id", projectID, "error", err)
		}
	}
	if s.centrality != nil {
		var entities []types.CentralityEntity
		found, err := cache.NewProjectCache(projectDir).Get(search.CentralityCacheKey, &entities)
		if err != nil || !found {
			return
		}
		if err := s.centrality.UpsertMany(ctx, in.Schema, projectID, entities); err != nil {
			s.log.Warn("Centrality mirror failed", "project_id", projectID, "error", err)
		}
	}
}

func (s *Service) storeUpload(tenantDir, fileName string, zipBytes []byte) error {
	uploadDir := filepath.Join(tenantDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	name := filepath.Base(fileName)
	if name == "." || name == string(filepath.Separator) {
		name = "upload.zip"
	}
	if err := os.WriteFile(filepath.Join(uploadDir, name), zipBytes, 0o644); err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	return nil
}

// extractFull clears the project inputs and extracts the archive twice, once
// into input/ (where PDFs get converted) and once into original_input/
// (untouched originals).
func (s *Service) extractFull(ctx context.Context, reader *zip.Reader, projectDir string, sink types.ProgressSink) ([]string, error) {
	inputDir := filepath.Join(projectDir, "input")
	originalDir := filepath.Join(projectDir, "original_input")
	for _, dir := range []string{inputDir, originalDir} {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("clear %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var files []string
	for _, zf := range reader.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(zf.Name)
		if strings.HasPrefix(name, ".") {
			continue
		}
		if err := extractOne(zf, filepath.Join(inputDir, name)); err != nil {
			return nil, err
		}
		if err := extractOne(zf, filepath.Join(originalDir, name)); err != nil {
			return nil, err
		}
		files = append(files, name)
	}
	sink.Notify(fmt.Sprintf("Extracted %d files", len(files)))

	converted, err := s.convertPDFs(ctx, inputDir, files, -1, sink)
	if err != nil {
		return nil, err
	}
	return converted, nil
}

// extractIncremental re-extracts only the archive entries that already exist
// under input/, then invalidates the centrality cache so matching sees the
// re-indexed graph. Up to incrementalFailureTolerance per-file failures are
// swallowed.
func (s *Service) extractIncremental(ctx context.Context, reader *zip.Reader, projectDir string, sink types.ProgressSink) ([]string, error) {
	inputDir := filepath.Join(projectDir, "input")
	originalDir := filepath.Join(projectDir, "original_input")
	existing, err := listFiles(inputDir)
	if err != nil {
		return nil, err
	}

	failures := 0
	var files []string
	for _, zf := range reader.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(zf.Name)
		if !existing[name] && !existing[txtName(name)] {
			continue
		}
		if err := extractOne(zf, filepath.Join(inputDir, name)); err == nil {
			_ = extractOne(zf, filepath.Join(originalDir, name))
			files = append(files, name)
			continue
		}
		failures++
		s.log.Warn("Incremental extraction failed for file", "file", name, "failures", failures)
		if failures > incrementalFailureTolerance {
			return nil, fmt.Errorf("incremental batch failed: %d file failures", failures)
		}
	}
	sink.Notify(fmt.Sprintf("Re-extracted %d existing files", len(files)))

	converted, err := s.convertPDFs(ctx, inputDir, files, incrementalFailureTolerance-failures, sink)
	if err != nil {
		return nil, err
	}

	if err := cache.NewProjectCache(projectDir).Clear(search.CentralityCacheKey); err != nil {
		s.log.Warn("Centrality cache invalidation failed", "dir", projectDir, "error", err)
	}
	return converted, nil
}

// convertPDFs rewrites every .pdf under input/ to .md plus .txt. tolerance < 0
// means fail on the first conversion error.
func (s *Service) convertPDFs(ctx context.Context, inputDir string, files []string, tolerance int, sink types.ProgressSink) ([]string, error) {
	failures := 0
	out := make([]string, 0, len(files))
	for _, name := range files {
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			out = append(out, name)
			continue
		}
		txt, err := s.convertOne(ctx, inputDir, name)
		if err != nil {
			if tolerance < 0 {
				return nil, err
			}
			failures++
			s.log.Warn("PDF conversion failed", "file", name, "failures", failures, "error", err.Error())
			if failures > tolerance {
				return nil, fmt.Errorf("conversion batch failed: %w", err)
			}
			continue
		}
		sink.Notify(fmt.Sprintf("Converted %s", name))
		out = append(out, txt)
	}
	return out, nil
}

func (s *Service) convertOne(ctx context.Context, inputDir, name string) (string, error) {
	pdfPath := filepath.Join(inputDir, name)
	raw, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", fmt.Errorf("read pdf %s: %w", name, err)
	}
	text, err := s.converter.Convert(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", name, err)
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if err := os.WriteFile(filepath.Join(inputDir, stem+".md"), []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, stem+".txt"), []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write text: %w", err)
	}
	// engines read .txt; the source pdf stays in original_input only
	if err := os.Remove(pdfPath); err != nil {
		return "", fmt.Errorf("remove converted pdf: %w", err)
	}
	return stem + ".txt", nil
}

func extractOne(zf *zip.File, dest string) error {
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %s: %w", zf.Name, err)
	}
	defer rc.Close()
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("extract %s: %w", zf.Name, err)
	}
	return nil
}

func listFiles(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	out := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			out[entry.Name()] = true
		}
	}
	return out, nil
}

func txtName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".txt"
}
