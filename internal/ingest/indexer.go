package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

// Indexer hands a prepared project directory to the engine-specific index
// builder. The build itself is a black box to this server.
type Indexer interface {
	Index(ctx context.Context, engine types.Engine, projectDir string, files []string, sink types.ProgressSink) error
}

// CommandIndexer shells out to a per-engine indexer binary configured via
// INDEXER_CMD_GRAPH / INDEXER_CMD_LIGHT / INDEXER_CMD_CACHE. The project
// directory is appended as the final argument; file names for incremental
// runs arrive on INDEX_FILES.
type CommandIndexer struct {
	log *logger.Logger
}

func NewCommandIndexer(baseLog *logger.Logger) *CommandIndexer {
	return &CommandIndexer{log: baseLog.With("service", "CommandIndexer")}
}

func (ix *CommandIndexer) Index(ctx context.Context, engine types.Engine, projectDir string, files []string, sink types.ProgressSink) error {
	if sink == nil {
		sink = types.NoopSink{}
	}
	envKey := "INDEXER_CMD_" + strings.ToUpper(string(engine))
	command := strings.TrimSpace(os.Getenv(envKey))
	if command == "" {
		// cache-engine projects need no index build; others do
		if engine == types.EngineCache {
			return nil
		}
		return fmt.Errorf("no indexer configured: set %s", envKey)
	}

	parts := strings.Fields(command)
	args := append(parts[1:], projectDir)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Env = append(os.Environ(), "INDEX_FILES="+strings.Join(files, ","))

	sink.Notify(fmt.Sprintf("Indexing %s project", engine))
	ix.log.Info("Running indexer", "engine", string(engine), "dir", projectDir, "files", len(files))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("indexer %s: %w: %s", engine, err, strings.TrimSpace(string(out)))
	}
	return nil
}
