package types

import "testing"

func TestParseEngine(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"graph", "light", "cache"} {
		eng, err := ParseEngine(name)
		if err != nil {
			t.Fatalf("ParseEngine(%q): %v", name, err)
		}
		if string(eng) != name {
			t.Fatalf("ParseEngine(%q) = %q", name, eng)
		}
	}
	if _, err := ParseEngine("graphrag"); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestParseSearchMode(t *testing.T) {
	t.Parallel()
	for _, mode := range []string{"local", "global", "hybrid", "mix", "naive", "drift", "all"} {
		if _, err := ParseSearchMode(mode); err != nil {
			t.Fatalf("ParseSearchMode(%q): %v", mode, err)
		}
	}
	if _, err := ParseSearchMode("fuzzy"); err == nil {
		t.Fatal("expected error for unknown search mode")
	}
}
