package engine

import "testing"

func TestTruncateByTokens(t *testing.T) {
	t.Parallel()
	items := []map[string]any{
		{"name": "a"},
		{"name": "b"},
		{"name": "c"},
	}
	// each item marshals identically; count one token per item
	count := func(string) int { return 1 }

	if got := TruncateByTokens(items, 2, count); len(got) != 2 {
		t.Fatalf("kept %d items, want 2", len(got))
	}
	if got := TruncateByTokens(items, 3, count); len(got) != 3 {
		t.Fatalf("kept %d items, want all 3 at the exact budget", len(got))
	}
	if got := TruncateByTokens(items, 0, count); len(got) != 3 {
		t.Fatalf("zero budget truncated to %d, want unbounded", len(got))
	}
	if got := TruncateByTokens(nil, 5, count); got != nil {
		t.Fatalf("nil items = %v", got)
	}
}

func TestCapCount(t *testing.T) {
	t.Parallel()
	items := []map[string]any{{"n": 1}, {"n": 2}, {"n": 3}}
	if got := CapCount(items, 2); len(got) != 2 {
		t.Fatalf("capped to %d, want 2", len(got))
	}
	if got := CapCount(items, 0); len(got) != 3 {
		t.Fatalf("zero cap kept %d, want all", len(got))
	}
	if got := CapCount(items, 10); len(got) != 3 {
		t.Fatalf("large cap kept %d, want all", len(got))
	}
}
