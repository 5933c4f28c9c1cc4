package types

import "time"

// Relevancy is the ordinal relevance grade returned by per-document
// summarization.
type Relevancy string

const (
	RelevancyVeryHigh    Relevancy = "VERY_HIGH"
	RelevancyHigh        Relevancy = "HIGH"
	RelevancyMedium      Relevancy = "MEDIUM"
	RelevancyLow         Relevancy = "LOW"
	RelevancyNotRelevant Relevancy = "NOT_RELEVANT"
)

func (r Relevancy) Weight() int {
	switch r {
	case RelevancyVeryHigh:
		return 100
	case RelevancyHigh:
		return 75
	case RelevancyMedium:
		return 50
	case RelevancyLow:
		return 25
	default:
		return 0
	}
}

func ParseRelevancy(s string) Relevancy {
	switch Relevancy(s) {
	case RelevancyVeryHigh, RelevancyHigh, RelevancyMedium, RelevancyLow, RelevancyNotRelevant:
		return Relevancy(s)
	default:
		return RelevancyNotRelevant
	}
}

// MatchQuery drives entity matching against a user profile. List order is
// significant for digesting; free-text fields are whitespace-normalized
// before the digest is computed.
type MatchQuery struct {
	UserProfile      string   `json:"user_profile"`
	TopicsOfInterest []string `json:"topics_of_interest"`
	BiggestChallenge string   `json:"biggest_challenge"`
	EntityTypes      []string `json:"entity_types"`
	TopN             int      `json:"top_n,omitempty"`
	ScoreThreshold   float64  `json:"score_threshold,omitempty"`
}

type MatchedEntity struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Score       float64 `json:"score"`
	Level       string  `json:"level"` // high or low
	Description string  `json:"description,omitempty"`
}

// MatchOutput buckets surviving entities by entity type.
type MatchOutput struct {
	Entities map[string][]MatchedEntity `json:"entities"`
}

// DocumentSearchQuery is the relevant-documents request.
type DocumentSearchQuery struct {
	Question         string   `json:"question"`
	UserProfile      string   `json:"user_profile"`
	TopThreeTopics   []string `json:"top_three_topics"`
	BiggestChallenge string   `json:"biggest_challenge"`
	EntityTypes      []string `json:"entity_types,omitempty"`
	HLKeywords       []string `json:"hl_keywords,omitempty"`
	LLKeywords       []string `json:"ll_keywords,omitempty"`
	MaxDepth         int      `json:"max_depth,omitempty"`
}

type DocumentResult struct {
	File                 string    `json:"file"`
	Summary              string    `json:"summary"`
	RelevanceExplanation string    `json:"relevance_explanation"`
	Relevancy            Relevancy `json:"relevancy"`
}

type SearchResults struct {
	RequestID string           `json:"request_id"`
	SearchID  int64            `json:"search_id"`
	Results   []DocumentResult `json:"results"`
}

// Persistence row types.

type Project struct {
	ID         int64          `json:"id"`
	Engine     Engine         `json:"engine"`
	Name       string         `json:"name"`
	InputFiles []string       `json:"input_files"`
	Status     IndexingStatus `json:"status"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type AdminUser struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

type SearchHistory struct {
	ID               int64     `json:"id"`
	ProjectID        int64     `json:"project_id"`
	RequestID        string    `json:"request_id"`
	Digest           string    `json:"-"`
	UserProfile      string    `json:"user_profile"`
	TopThreeTopics   []string  `json:"top_three_topics"`
	BiggestChallenge string    `json:"biggest_challenge"`
	Response         string    `json:"response"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	KeywordHigh = "high"
	KeywordLow  = "low"
)

type Keyword struct {
	SearchID int64  `json:"search_id"`
	Type     string `json:"type"`
	Keyword  string `json:"keyword"`
}

type PathLink struct {
	ProjectID int64  `json:"project_id"`
	Path      string `json:"path"`
	Link      string `json:"link"`
}

type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Duration    string `json:"duration,omitempty"`
	Description string `json:"description,omitempty"`
}

type Profile struct {
	ProjectID   int64        `json:"project_id"`
	LinkedInURL string       `json:"linkedin_url"`
	Name        string       `json:"name,omitempty"`
	Headline    string       `json:"headline,omitempty"`
	Experiences []Experience `json:"experiences"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Topic struct {
	ID          int64    `json:"id"`
	ProjectID   int64    `json:"project_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Questions   []string `json:"questions"`
}

// CentralityEntity is an entry of the per-project centrality cache consulted
// by entity matching.
type CentralityEntity struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Centrality  float64 `json:"centrality"`
}
