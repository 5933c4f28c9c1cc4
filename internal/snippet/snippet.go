package snippet

import (
	"fmt"
	"html/template"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/onepointltd/kbserver/internal/logger"
)

// ChatKind is the embeddable chat surface a snippet or direct URL targets.
type ChatKind string

const (
	KindFloatingChat ChatKind = "floating-chat"
	KindChat         ChatKind = "chat"
)

func ParseChatKind(s string) (ChatKind, error) {
	switch ChatKind(s) {
	case KindFloatingChat, KindChat:
		return ChatKind(s), nil
	default:
		return "", fmt.Errorf("unknown chat type %q", s)
	}
}

// Model is the data rendered into the embed snippet.
type Model struct {
	WidgetType    string
	RootElementID string
	Token         string
	Project       string
	CSSPaths      []string
	ScriptPaths   []string
}

var snippetTemplate = template.Must(template.New("snippet").Parse(`<div id="{{.RootElementID}}" data-widget="{{.WidgetType}}" data-project="{{.Project}}" data-token="{{.Token}}"></div>
{{- range .CSSPaths}}
<link rel="stylesheet" href="{{.}}">
{{- end}}
{{- range .ScriptPaths}}
<script src="{{.}}" defer></script>
{{- end}}
`))

// Generator renders embed snippets and assembles direct chat URLs.
type Generator struct {
	log       *logger.Logger
	baseURL   string
	assetsDir string
}

func NewGenerator(baseURL, assetsDir string, baseLog *logger.Logger) *Generator {
	return &Generator{
		log:       baseLog.With("service", "SnippetGenerator"),
		baseURL:   strings.TrimRight(baseURL, "/"),
		assetsDir: assetsDir,
	}
}

// Render produces the HTML snippet for the model, discovering css/js asset
// paths by globbing the frontend assets directory when the model carries none.
func (g *Generator) Render(m Model) (string, error) {
	if m.RootElementID == "" {
		m.RootElementID = "kb-chat-root"
	}
	if len(m.CSSPaths) == 0 {
		m.CSSPaths = g.globAssets("*.css")
	}
	if len(m.ScriptPaths) == 0 {
		m.ScriptPaths = g.globAssets("*.js")
	}
	var out strings.Builder
	if err := snippetTemplate.Execute(&out, m); err != nil {
		return "", fmt.Errorf("render snippet: %w", err)
	}
	return out.String(), nil
}

func (g *Generator) globAssets(pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(g.assetsDir, "assets", pattern))
	if err != nil || len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(g.assetsDir, m)
		if err != nil {
			continue
		}
		out = append(out, g.baseURL+"/"+filepath.ToSlash(rel))
	}
	return out
}

// DirectURL assembles the shareable chat URL for a project and token.
func (g *Generator) DirectURL(kind ChatKind, project, platform, searchType, token string, streaming bool) string {
	q := url.Values{}
	q.Set("project", project)
	q.Set("platform", platform)
	q.Set("search_type", searchType)
	q.Set("token", token)
	q.Set("chat_type", string(kind))
	q.Set("streaming", strconv.FormatBool(streaming))
	return fmt.Sprintf("%s/%s?%s", g.baseURL, kind, q.Encode())
}
