package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/onepointltd/kbserver/internal/logger"
)

func writeInput(t *testing.T, dir, name, content string) {
	t.Helper()
	inputDir := filepath.Join(dir, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeInput(t, dir, "a.txt", "See https://example.com/page. Also https://example.com/page, again.\nAnd http://other.test/x")
	writeInput(t, dir, "b.txt", "no links here")
	writeInput(t, dir, "c.md", "https://ignored.example.com markdown is skipped")

	l := NewLinkExtractor(logger.NewNop())
	out, err := l.ExtractLinks(dir)
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d files with links, want 1: %v", len(out), out)
	}
	links := out["a.txt"]
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2 after trailing-punctuation dedup: %v", len(links), links)
	}
	if links[0] != "https://example.com/page" || links[1] != "http://other.test/x" {
		t.Fatalf("unexpected links: %v", links)
	}
}

func TestExtractLinksMissingInputDir(t *testing.T) {
	t.Parallel()
	l := NewLinkExtractor(logger.NewNop())
	out, err := l.ExtractLinks(t.TempDir())
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %v, want empty map", out)
	}
}

func TestVerifyLinks(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/no-head":
			// rejects HEAD but answers GET
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	l := NewLinkExtractor(logger.NewNop())
	in := map[string][]string{
		"doc.txt": {srv.URL + "/ok", srv.URL + "/no-head", srv.URL + "/gone"},
	}
	out := l.VerifyLinks(context.Background(), in)
	links := out["doc.txt"]
	if len(links) != 2 {
		t.Fatalf("got %d verified links, want 2: %v", len(links), links)
	}
	for _, link := range links {
		if link == srv.URL+"/gone" {
			t.Fatal("dead link survived verification")
		}
	}
}

func TestPathLinksRows(t *testing.T) {
	t.Parallel()
	rows := PathLinks(7, map[string][]string{
		"b.txt": {"https://x.test"},
		"a.txt": {"https://y.test", "https://z.test"},
	})
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Path != "a.txt" || rows[2].Path != "b.txt" {
		t.Fatalf("rows not sorted by path: %v", rows)
	}
	for _, row := range rows {
		if row.ProjectID != 7 {
			t.Fatalf("row carries project %d, want 7", row.ProjectID)
		}
	}
}
