package linkedin

import (
	"context"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/repos"
	"github.com/onepointltd/kbserver/internal/types"
)

// ProfileScraper is the external scrape boundary; the HTTP and WebSocket
// handlers only see this.
type ProfileScraper interface {
	Scrape(ctx context.Context, profileURL string, sink types.ProgressSink) (*types.Profile, error)
}

// Service fronts the scraper with the thirty-day profile snapshot cache in
// tb_profiles.
type Service struct {
	log      *logger.Logger
	scraper  ProfileScraper
	profiles *repos.ProfileRepo
}

func NewService(scraper ProfileScraper, profiles *repos.ProfileRepo, baseLog *logger.Logger) *Service {
	return &Service{
		log:      baseLog.With("service", "LinkedInService"),
		scraper:  scraper,
		profiles: profiles,
	}
}

// ExtractProfile returns the cached snapshot when fresh, otherwise scrapes and
// stores a new one. Persistence failure after a successful scrape is logged
// and the scraped profile is still returned.
func (s *Service) ExtractProfile(ctx context.Context, schema string, projectID int64, profileURL string, sink types.ProgressSink) (*types.Profile, error) {
	cached, err := s.profiles.FindFresh(ctx, schema, projectID, profileURL)
	if err != nil {
		s.log.Error("Profile cache lookup failed", "error", err)
	} else if cached != nil {
		s.log.Info("Profile cache hit", "project_id", projectID, "url", profileURL)
		if sink != nil {
			sink.Notify("Returning cached profile")
		}
		return cached, nil
	}

	profile, err := s.scraper.Scrape(ctx, profileURL, sink)
	if err != nil {
		return nil, err
	}
	profile.ProjectID = projectID
	if err := s.profiles.Upsert(ctx, schema, profile); err != nil {
		s.log.Error("Profile persistence failed", "project_id", projectID, "error", err)
	}
	return profile, nil
}
