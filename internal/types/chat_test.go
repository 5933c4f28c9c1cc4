package types

import (
	"encoding/json"
	"testing"
)

func TestExpandReferences(t *testing.T) {
	t.Parallel()
	r := &ChatResponse{
		Structured: &StructuredResponse{
			Response: "answer",
			References: []Reference{
				{File: "a.txt", Type: "doc"},
				{File: "b.txt<SEP>c.txt <SEP> d.txt", Type: "doc", MainKeyword: "mesh"},
				{File: "<SEP>"},
			},
		},
	}
	r.ExpandReferences()
	refs := r.Structured.References
	if len(refs) != 4 {
		t.Fatalf("got %d references, want 4: %v", len(refs), refs)
	}
	want := []string{"a.txt", "b.txt", "c.txt", "d.txt"}
	for i, file := range want {
		if refs[i].File != file {
			t.Fatalf("refs[%d].File = %q, want %q", i, refs[i].File, file)
		}
	}
	if refs[1].MainKeyword != "mesh" || refs[3].MainKeyword != "mesh" {
		t.Fatal("split references must keep the main keyword")
	}
}

func TestExpandReferencesPlainVariantUntouched(t *testing.T) {
	t.Parallel()
	r := &ChatResponse{Text: "plain answer"}
	r.ExpandReferences()
	if r.Text != "plain answer" || r.Structured != nil {
		t.Fatalf("plain response mutated: %+v", r)
	}
}

func TestChatResponseMarshalUnion(t *testing.T) {
	t.Parallel()
	plain := ChatResponse{Question: "q", Text: "hello"}
	raw, err := json.Marshal(plain)
	if err != nil {
		t.Fatalf("marshal plain: %v", err)
	}
	var decodedPlain ChatResponse
	if err := json.Unmarshal(raw, &decodedPlain); err != nil {
		t.Fatalf("unmarshal plain: %v", err)
	}
	if decodedPlain.Text != "hello" || decodedPlain.Structured != nil {
		t.Fatalf("plain round trip: %+v", decodedPlain)
	}

	structured := ChatResponse{
		Question:   "q",
		Structured: &StructuredResponse{Response: "answer", References: []Reference{{File: "a.txt"}}},
	}
	raw, err = json.Marshal(structured)
	if err != nil {
		t.Fatalf("marshal structured: %v", err)
	}
	var decoded ChatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal structured: %v", err)
	}
	if decoded.Structured == nil || decoded.Structured.Response != "answer" {
		t.Fatalf("structured round trip: %+v", decoded)
	}
	if len(decoded.Structured.References) != 1 || decoded.Structured.References[0].File != "a.txt" {
		t.Fatalf("references lost in round trip: %+v", decoded.Structured)
	}
}

func TestRelevancyWeights(t *testing.T) {
	t.Parallel()
	cases := []struct {
		r    Relevancy
		want int
	}{
		{RelevancyVeryHigh, 100},
		{RelevancyHigh, 75},
		{RelevancyMedium, 50},
		{RelevancyLow, 25},
		{RelevancyNotRelevant, 0},
		{Relevancy("bogus"), 0},
	}
	for _, tc := range cases {
		if got := tc.r.Weight(); got != tc.want {
			t.Fatalf("%s weight = %d, want %d", tc.r, got, tc.want)
		}
	}
}

func TestParseRelevancyFallsBackToNotRelevant(t *testing.T) {
	t.Parallel()
	if got := ParseRelevancy("SOMEWHAT"); got != RelevancyNotRelevant {
		t.Fatalf("ParseRelevancy = %s, want %s", got, RelevancyNotRelevant)
	}
	if got := ParseRelevancy("HIGH"); got != RelevancyHigh {
		t.Fatalf("ParseRelevancy = %s, want %s", got, RelevancyHigh)
	}
}
