package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// ProjectCache persists expensive derived artifacts (centrality rankings,
// topic lists) under <project>/cache/<key>.bin so they survive restarts.
// Writes go through a temp file and rename so readers never observe a
// partial blob.
type ProjectCache struct {
	projectDir string
}

func NewProjectCache(projectDir string) *ProjectCache {
	return &ProjectCache{projectDir: projectDir}
}

func (c *ProjectCache) dir() string {
	return filepath.Join(c.projectDir, "cache")
}

func (c *ProjectCache) path(key string) string {
	return filepath.Join(c.dir(), key+".bin")
}

func (c *ProjectCache) Set(key string, value any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	if err := os.MkdirAll(c.dir(), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir(), key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(key))
}

// Get decodes the stored blob into out. Returns false when the key is absent.
func (c *ProjectCache) Get(key string, out any) (bool, error) {
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read cache file %s: %w", key, err)
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(out); err != nil {
		return false, fmt.Errorf("decode cache value %s: %w", key, err)
	}
	return true, nil
}

func (c *ProjectCache) Clear(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (c *ProjectCache) ClearAll() error {
	err := os.RemoveAll(c.dir())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
