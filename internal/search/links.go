package search

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
)

const (
	linkVerifyTimeout     = 5 * time.Second
	linkVerifyConcurrency = 8
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// LinkExtractor finds URLs inside project input documents and checks which
// ones still resolve.
type LinkExtractor struct {
	log    *logger.Logger
	client *http.Client
}

func NewLinkExtractor(baseLog *logger.Logger) *LinkExtractor {
	return &LinkExtractor{
		log: baseLog.With("service", "LinkExtractor"),
		// redirects are followed by default; only the per-request budget is ours
		client: &http.Client{Timeout: linkVerifyTimeout},
	}
}

// ExtractLinks scans every .txt file under <projectDir>/input and returns one
// (path, links) pair per file that contains at least one URL. Trailing
// sentence punctuation is stripped from matches.
func (l *LinkExtractor) ExtractLinks(projectDir string) (map[string][]string, error) {
	inputDir := filepath.Join(projectDir, "input")
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]string{}, nil
		}
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	out := make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(inputDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read input file %s: %w", entry.Name(), err)
		}
		links := dedupLinks(urlPattern.FindAllString(string(raw), -1))
		if len(links) > 0 {
			out[entry.Name()] = links
		}
	}
	return out, nil
}

func dedupLinks(matches []string) []string {
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// VerifyLinks probes every URL and keeps the ones that answer with a
// non-client-error status. HEAD is tried first; servers that reject HEAD get
// one GET attempt.
func (l *LinkExtractor) VerifyLinks(ctx context.Context, pathLinks map[string][]string) map[string][]string {
	type probe struct {
		path string
		link string
	}
	var probes []probe
	for path, links := range pathLinks {
		for _, link := range links {
			probes = append(probes, probe{path: path, link: link})
		}
	}

	var mu sync.Mutex
	verified := make(map[string][]string, len(pathLinks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(linkVerifyConcurrency)
	for _, p := range probes {
		p := p
		g.Go(func() error {
			if l.verify(ctx, p.link) {
				mu.Lock()
				verified[p.path] = append(verified[p.path], p.link)
				mu.Unlock()
			} else {
				l.log.Warn("Dropping unreachable link", "path", p.path, "link", p.link)
			}
			return nil
		})
	}
	_ = g.Wait()

	for path := range verified {
		sort.Strings(verified[path])
	}
	return verified
}

func (l *LinkExtractor) verify(ctx context.Context, link string) bool {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, link, nil)
		if err != nil {
			return false
		}
		resp, err := l.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 400 {
			return true
		}
		// 405 means the server dislikes HEAD, not that the link is dead
		if method == http.MethodHead && resp.StatusCode == http.StatusMethodNotAllowed {
			continue
		}
		return false
	}
	return false
}

// PathLinks converts the verified map to persistence rows for one project.
func PathLinks(projectID int64, verified map[string][]string) []types.PathLink {
	var out []types.PathLink
	paths := make([]string, 0, len(verified))
	for path := range verified {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		for _, link := range verified[path] {
			out = append(out, types.PathLink{ProjectID: projectID, Path: path, Link: link})
		}
	}
	return out
}
