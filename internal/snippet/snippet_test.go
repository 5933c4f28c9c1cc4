package snippet

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onepointltd/kbserver/internal/logger"
)

func TestParseChatKind(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"floating-chat", "chat"} {
		if _, err := ParseChatKind(s); err != nil {
			t.Fatalf("ParseChatKind(%q): %v", s, err)
		}
	}
	if _, err := ParseChatKind("popup"); err == nil {
		t.Fatal("expected error for unknown chat kind")
	}
}

func TestRenderSnippet(t *testing.T) {
	t.Parallel()
	assetsDir := t.TempDir()
	inner := filepath.Join(assetsDir, "assets")
	if err := os.MkdirAll(inner, 0o755); err != nil {
		t.Fatalf("mkdir assets: %v", err)
	}
	for _, name := range []string{"widget.css", "widget.js"} {
		if err := os.WriteFile(filepath.Join(inner, name), []byte("/**/"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	g := NewGenerator("https://kb.example.com/", assetsDir, logger.NewNop())
	html, err := g.Render(Model{
		WidgetType: "floating-chat",
		Token:      "tok123",
		Project:    "handbook",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		`id="kb-chat-root"`,
		`data-project="handbook"`,
		`data-token="tok123"`,
		`https://kb.example.com/assets/widget.css`,
		`https://kb.example.com/assets/widget.js" defer`,
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("snippet missing %q:\n%s", want, html)
		}
	}
}

func TestRenderEscapesModel(t *testing.T) {
	t.Parallel()
	g := NewGenerator("https://kb.example.com", t.TempDir(), logger.NewNop())
	html, err := g.Render(Model{Project: `"><script>alert(1)</script>`})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Fatalf("model value not escaped:\n%s", html)
	}
}

func TestDirectURL(t *testing.T) {
	t.Parallel()
	g := NewGenerator("https://kb.example.com", t.TempDir(), logger.NewNop())
	raw := g.DirectURL(KindChat, "handbook", "web", "hybrid", "tok123", true)

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Path != "/chat" {
		t.Fatalf("path = %s, want /chat", u.Path)
	}
	q := u.Query()
	for key, want := range map[string]string{
		"project":     "handbook",
		"platform":    "web",
		"search_type": "hybrid",
		"token":       "tok123",
		"chat_type":   "chat",
		"streaming":   "true",
	} {
		if got := q.Get(key); got != want {
			t.Fatalf("query %s = %q, want %q", key, got, want)
		}
	}
}
