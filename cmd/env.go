package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/riq-labs/faculty-pipeline/internal/checkpoint"
	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/contact"
	"github.com/riq-labs/faculty-pipeline/internal/directory"
	"github.com/riq-labs/faculty-pipeline/internal/fetch"
	"github.com/riq-labs/faculty-pipeline/internal/pipeline"
	"github.com/riq-labs/faculty-pipeline/internal/resilience"
	"github.com/riq-labs/faculty-pipeline/internal/roster"
	"github.com/riq-labs/faculty-pipeline/internal/website"
	"github.com/riq-labs/faculty-pipeline/pkg/brave"
	"github.com/riq-labs/faculty-pipeline/pkg/openalex"
	"github.com/riq-labs/faculty-pipeline/pkg/orcid"
)

func initStore(ctx context.Context) (checkpoint.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "faculty.db"
		}
		s, err := checkpoint.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := checkpoint.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "file":
		dir := cfg.Store.Path
		if dir == "" {
			dir = "checkpoints"
		}
		return checkpoint.NewFile(dir)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadInstitutions() (map[string]config.Institution, error) {
	return config.LoadInstitutions(cfg.Institutions.Path)
}

// newGuards builds the per-service quota guards from the configured rate
// limits. One registry per run: exhaustion must be visible across phases.
func newGuards() *resilience.GuardRegistry {
	guards := resilience.NewGuardRegistry(0, 1)
	guards.Set(resilience.NewGuard("brave", cfg.Brave.RPS, 1))
	guards.Set(resilience.NewGuard("orcid", cfg.ORCID.RPS, 1))
	guards.Set(resilience.NewGuard("openalex", 10, 2))
	return guards
}

func newScrapeClient() *fetch.Client {
	return fetch.New(
		fetch.WithUserAgent(cfg.Scrape.UserAgent),
		fetch.WithHostRate(cfg.Scrape.HostRPS, 2),
		fetch.WithRobots(cfg.Scrape.RespectRobots),
		fetch.WithMaxBodySize(int64(cfg.Scrape.MaxBodyKB)*1024),
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.Scrape.Timeout()}),
	)
}

// newPipeline wires every phase for one institution.
func newPipeline(store checkpoint.Store, inst config.Institution, guards *resilience.GuardRegistry) (*pipeline.Pipeline, error) {
	if cfg.OpenAlex.ContactEmail == "" {
		return nil, eris.New("openalex contact email is required (FACULTY_OPENALEX_CONTACT_EMAIL)")
	}
	if cfg.Brave.Key == "" {
		return nil, eris.New("brave API key is required (FACULTY_BRAVE_KEY)")
	}

	oaClient := openalex.NewClient(cfg.OpenAlex.ContactEmail, openalex.WithBaseURL(cfg.OpenAlex.BaseURL))
	braveClient := brave.NewClient(cfg.Brave.Key, brave.WithBaseURL(cfg.Brave.BaseURL))
	orcidClient := orcid.NewClient(orcid.WithBaseURL(cfg.ORCID.BaseURL))
	scraper := newScrapeClient()

	return pipeline.New(
		cfg,
		inst,
		store,
		roster.New(oaClient, cfg.Pipeline, cfg.OpenAlex),
		directory.NewScraper(scraper, inst),
		website.New(braveClient, guards.Get("brave"), inst, cfg.Pipeline),
		contact.NewRegistry(orcidClient, guards.Get("orcid")),
		contact.NewExtractor(scraper, inst, cfg.Pipeline.MaxContactPages),
		contact.NewFallback(braveClient, guards.Get("brave"), inst),
		guards,
	), nil
}
