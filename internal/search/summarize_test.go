package search

import (
	"testing"

	"github.com/onepointltd/kbserver/internal/types"
)

func TestRankOrdersByRelevancyWeight(t *testing.T) {
	t.Parallel()
	in := []types.DocumentResult{
		{File: "low.txt", Relevancy: types.RelevancyLow},
		{File: "top.txt", Relevancy: types.RelevancyVeryHigh},
		{File: "none.txt", Relevancy: types.RelevancyNotRelevant},
		{File: "mid.txt", Relevancy: types.RelevancyMedium},
		{File: "high.txt", Relevancy: types.RelevancyHigh},
	}
	out := Rank(in)
	want := []string{"top.txt", "high.txt", "mid.txt", "low.txt", "none.txt"}
	for i, file := range want {
		if out[i].File != file {
			t.Fatalf("rank[%d] = %s, want %s", i, out[i].File, file)
		}
	}
}

func TestRankIsStableWithinGrade(t *testing.T) {
	t.Parallel()
	in := []types.DocumentResult{
		{File: "first.txt", Relevancy: types.RelevancyHigh},
		{File: "second.txt", Relevancy: types.RelevancyHigh},
	}
	out := Rank(in)
	if out[0].File != "first.txt" || out[1].File != "second.txt" {
		t.Fatalf("equal grades reordered: %v", out)
	}
}
