package engine

import (
	"strings"
	"testing"
)

func TestUnionKeywords(t *testing.T) {
	t.Parallel()
	got := UnionKeywords(
		[]string{"Data Mesh", "ai", "  "},
		[]string{"AI", "governance", "data mesh", "cloud"},
	)
	want := []string{"Data Mesh", "ai", "governance", "cloud"}
	if len(got) != len(want) {
		t.Fatalf("UnionKeywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("UnionKeywords[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInjectKeywords(t *testing.T) {
	t.Parallel()
	prompt := BuildSystemPrompt("the context", "")
	out := InjectKeywords(prompt, []string{"themes"}, []string{"terms", "names"})
	if !strings.Contains(out, "<high_level_keywords>themes</high_level_keywords>") {
		t.Fatalf("high-level keywords not injected:\n%s", out)
	}
	if !strings.Contains(out, "<low_level_keywords>terms, names</low_level_keywords>") {
		t.Fatalf("low-level keywords not injected:\n%s", out)
	}
	if !strings.Contains(out, "the context") {
		t.Fatal("context blob missing from prompt")
	}
}

func TestInjectKeywordsLeavesEmptyRegions(t *testing.T) {
	t.Parallel()
	prompt := BuildSystemPrompt("ctx", "")
	out := InjectKeywords(prompt, nil, nil)
	if !strings.Contains(out, "<high_level_keywords></high_level_keywords>") {
		t.Fatal("empty keyword region rewritten without keywords")
	}
}

func TestBuildSystemPromptAppendsAdditional(t *testing.T) {
	t.Parallel()
	out := BuildSystemPrompt("ctx", "Answer in French.")
	if !strings.HasSuffix(strings.TrimSpace(out), "Answer in French.") {
		t.Fatalf("additional prompt not appended:\n%s", out)
	}
}
