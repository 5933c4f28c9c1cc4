package search

import (
	"testing"

	"github.com/onepointltd/kbserver/internal/types"
)

func TestNormalizeText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  hello   world ", "hello world"},
		{"one\ntwo\t three", "one two three"},
		{"already clean", "already clean"},
	}
	for _, tc := range cases {
		if got := NormalizeText(tc.in); got != tc.want {
			t.Fatalf("NormalizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMatchQueryDigestStable(t *testing.T) {
	t.Parallel()
	a := &types.MatchQuery{
		UserProfile:      "CTO of a consultancy",
		TopicsOfInterest: []string{"data", "ai"},
		BiggestChallenge: "scaling delivery",
		EntityTypes:      []string{"organization"},
	}
	b := &types.MatchQuery{
		UserProfile:      "  CTO  of a\nconsultancy ",
		TopicsOfInterest: []string{"data", "ai"},
		BiggestChallenge: "scaling   delivery",
		EntityTypes:      []string{"organization"},
	}
	da, err := MatchQueryDigest(a)
	if err != nil {
		t.Fatalf("digest a: %v", err)
	}
	db, err := MatchQueryDigest(b)
	if err != nil {
		t.Fatalf("digest b: %v", err)
	}
	if da != db {
		t.Fatalf("whitespace variants digest differently: %s vs %s", da, db)
	}
	if len(da) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(da))
	}
}

func TestMatchQueryDigestListOrderMatters(t *testing.T) {
	t.Parallel()
	a := &types.MatchQuery{TopicsOfInterest: []string{"data", "ai"}}
	b := &types.MatchQuery{TopicsOfInterest: []string{"ai", "data"}}
	da, err := MatchQueryDigest(a)
	if err != nil {
		t.Fatalf("digest a: %v", err)
	}
	db, err := MatchQueryDigest(b)
	if err != nil {
		t.Fatalf("digest b: %v", err)
	}
	if da == db {
		t.Fatal("reordered topic lists must digest differently")
	}
}

func TestDocumentQueryDigestDistinguishesQuestions(t *testing.T) {
	t.Parallel()
	a := &types.DocumentSearchQuery{Question: "what is graphrag", UserProfile: "analyst"}
	b := &types.DocumentSearchQuery{Question: "what is lightrag", UserProfile: "analyst"}
	da, err := DocumentQueryDigest(a)
	if err != nil {
		t.Fatalf("digest a: %v", err)
	}
	db, err := DocumentQueryDigest(b)
	if err != nil {
		t.Fatalf("digest b: %v", err)
	}
	if da == db {
		t.Fatal("different questions must digest differently")
	}
}
