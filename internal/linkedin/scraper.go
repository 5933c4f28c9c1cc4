package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/types"
	"github.com/onepointltd/kbserver/internal/utils"
)

const pollInterval = 5 * time.Second

// Terminal run statuses; anything else means the run is still going.
const (
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
	statusTimedOut  = "TIMED-OUT"
	statusAborted   = "ABORTED"
)

// Scraper pulls a public profile snapshot from an Apify-style actor API: start
// a run, poll its status every five seconds until terminal, then read the
// dataset items.
type Scraper struct {
	log        *logger.Logger
	baseURL    string
	token      string
	actorID    string
	httpClient *http.Client
}

func NewScraper(baseLog *logger.Logger) *Scraper {
	return &Scraper{
		log:        baseLog.With("service", "LinkedInScraper"),
		baseURL:    utils.GetEnv("APIFY_BASE_URL", "https://api.apify.com", nil),
		token:      utils.GetEnv("APIFY_API_TOKEN", "", nil),
		actorID:    utils.GetEnv("APIFY_LINKEDIN_ACTOR_ID", "", nil),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type runInfo struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

type datasetItem struct {
	FullName    string `json:"fullName"`
	Headline    string `json:"headline"`
	Experiences []struct {
		Title       string `json:"title"`
		CompanyName string `json:"companyName"`
		Duration    string `json:"duration"`
		Description string `json:"description"`
	} `json:"experiences"`
}

// Scrape runs the actor for one profile URL. Progress is reported through the
// sink so WebSocket clients can watch the polling loop.
func (s *Scraper) Scrape(ctx context.Context, profileURL string, sink types.ProgressSink) (*types.Profile, error) {
	if s.token == "" || s.actorID == "" {
		return nil, fmt.Errorf("scraper not configured: APIFY_API_TOKEN and APIFY_LINKEDIN_ACTOR_ID required")
	}
	if sink == nil {
		sink = types.NoopSink{}
	}

	run, err := s.startRun(ctx, profileURL)
	if err != nil {
		return nil, err
	}
	sink.Notify(fmt.Sprintf("Profile scrape started (run %s)", run.Data.ID))

	for !isTerminal(run.Data.Status) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
		run, err = s.fetchRun(ctx, run.Data.ID)
		if err != nil {
			return nil, err
		}
		sink.Notify(fmt.Sprintf("Profile scrape status: %s", run.Data.Status))
	}
	if run.Data.Status != statusSucceeded {
		return nil, fmt.Errorf("profile scrape ended with status %s", run.Data.Status)
	}

	profile, err := s.fetchProfile(ctx, run.Data.DefaultDatasetID)
	if err != nil {
		return nil, err
	}
	profile.LinkedInURL = profileURL
	return profile, nil
}

func (s *Scraper) startRun(ctx context.Context, profileURL string) (*runInfo, error) {
	body, err := json.Marshal(map[string]any{"profileUrls": []string{profileURL}})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v2/acts/%s/runs?token=%s", s.baseURL, s.actorID, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var run runInfo
	if err := s.doJSON(req, &run); err != nil {
		return nil, fmt.Errorf("start scrape run: %w", err)
	}
	return &run, nil
}

func (s *Scraper) fetchRun(ctx context.Context, runID string) (*runInfo, error) {
	url := fmt.Sprintf("%s/v2/actor-runs/%s?token=%s", s.baseURL, runID, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var run runInfo
	if err := s.doJSON(req, &run); err != nil {
		return nil, fmt.Errorf("poll scrape run: %w", err)
	}
	return &run, nil
}

func (s *Scraper) fetchProfile(ctx context.Context, datasetID string) (*types.Profile, error) {
	url := fmt.Sprintf("%s/v2/datasets/%s/items?token=%s", s.baseURL, datasetID, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var items []datasetItem
	if err := s.doJSON(req, &items); err != nil {
		return nil, fmt.Errorf("fetch scrape dataset: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("scrape dataset %s is empty", datasetID)
	}

	item := items[0]
	profile := &types.Profile{
		Name:        item.FullName,
		Headline:    item.Headline,
		Experiences: make([]types.Experience, 0, len(item.Experiences)),
		UpdatedAt:   time.Now(),
	}
	for _, exp := range item.Experiences {
		profile.Experiences = append(profile.Experiences, types.Experience{
			Title:       exp.Title,
			Company:     exp.CompanyName,
			Duration:    exp.Duration,
			Description: exp.Description,
		})
	}
	return profile, nil
}

func (s *Scraper) doJSON(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("scraper http %d: %s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

func isTerminal(status string) bool {
	switch status {
	case statusSucceeded, statusFailed, statusTimedOut, statusAborted:
		return true
	}
	return false
}
