package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/onepointltd/kbserver/internal/types"
)

// NormalizeText collapses runs of whitespace to a single space and trims the
// ends. Digests over free-text fields go through this first so cosmetic
// formatting changes do not defeat the cache.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// canonicalDigest hashes the canonical JSON of v: object keys sorted, list
// order preserved. Round-tripping through map[string]any gives us sorted keys
// for free since encoding/json emits map keys in sorted order.
func canonicalDigest(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("digest rebuild: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("digest canonical marshal: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MatchQueryDigest computes the cache key of an entity-match request. Topic
// and entity-type order is significant; free text is whitespace-normalized.
func MatchQueryDigest(q *types.MatchQuery) (string, error) {
	normalized := types.MatchQuery{
		UserProfile:      NormalizeText(q.UserProfile),
		TopicsOfInterest: q.TopicsOfInterest,
		BiggestChallenge: NormalizeText(q.BiggestChallenge),
		EntityTypes:      q.EntityTypes,
		TopN:             q.TopN,
		ScoreThreshold:   q.ScoreThreshold,
	}
	return canonicalDigest(normalized)
}

// DocumentQueryDigest computes the cache key of a relevant-documents request.
func DocumentQueryDigest(q *types.DocumentSearchQuery) (string, error) {
	normalized := types.DocumentSearchQuery{
		Question:         NormalizeText(q.Question),
		UserProfile:      NormalizeText(q.UserProfile),
		TopThreeTopics:   q.TopThreeTopics,
		BiggestChallenge: NormalizeText(q.BiggestChallenge),
		EntityTypes:      q.EntityTypes,
		HLKeywords:       q.HLKeywords,
		LLKeywords:       q.LLKeywords,
		MaxDepth:         q.MaxDepth,
	}
	return canonicalDigest(normalized)
}
