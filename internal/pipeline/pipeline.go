// Package pipeline orchestrates the enrichment phases: roster extraction,
// directory harvesting, website resolution, registry lookup, contact-page
// email extraction and fallback search. Each completed phase is
// checkpointed before the next starts, so an interrupted run resumes
// without re-spending API quota.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/riq-labs/faculty-pipeline/internal/checkpoint"
	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/directory"
	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/resilience"
	"github.com/riq-labs/faculty-pipeline/internal/roster"
)

const maxFallbackSearches = 100

// RosterExtractor builds the canonical faculty roster (Phase 1).
type RosterExtractor interface {
	Extract(ctx context.Context, inst config.Institution) ([]model.FacultyRecord, roster.Stats, error)
}

// DirectoryHarvester scrapes department directories (Phase 2A).
type DirectoryHarvester interface {
	Harvest(ctx context.Context) (*directory.Cache, error)
}

// WebsiteResolver finds personal/lab pages via search (Phase 2B).
type WebsiteResolver interface {
	Eligible(roster []*model.FacultyRecord, maxQueries int) []*model.FacultyRecord
	Resolve(ctx context.Context, rec *model.FacultyRecord) (model.WebsiteData, bool, error)
}

// RegistryLookup fetches registry-published emails (Phase 3A).
type RegistryLookup interface {
	Lookup(ctx context.Context, rec *model.FacultyRecord) (model.EmailData, bool, error)
}

// EmailExtractor mines resolved websites for emails (Phase 3B).
type EmailExtractor interface {
	Extract(ctx context.Context, pageURL, name string) (model.EmailData, bool)
}

// FallbackSearcher mines search snippets for emails (Phase 3C).
type FallbackSearcher interface {
	Search(ctx context.Context, rec *model.FacultyRecord) (model.EmailData, bool, error)
}

// Pipeline wires the six phases to a checkpoint store and the per-service
// quota guards.
type Pipeline struct {
	cfg       *config.Config
	inst      config.Institution
	store     checkpoint.Store
	roster    RosterExtractor
	directory DirectoryHarvester
	websites  WebsiteResolver
	registry  RegistryLookup
	emails    EmailExtractor
	fallback  FallbackSearcher
	guards    *resilience.GuardRegistry
}

// New creates a Pipeline with all phase dependencies.
func New(
	cfg *config.Config,
	inst config.Institution,
	store checkpoint.Store,
	rosterEx RosterExtractor,
	dirHarvester DirectoryHarvester,
	websiteResolver WebsiteResolver,
	registryLookup RegistryLookup,
	emailExtractor EmailExtractor,
	fallbackSearcher FallbackSearcher,
	guards *resilience.GuardRegistry,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		inst:      inst,
		store:     store,
		roster:    rosterEx,
		directory: dirHarvester,
		websites:  websiteResolver,
		registry:  registryLookup,
		emails:    emailExtractor,
		fallback:  fallbackSearcher,
		guards:    guards,
	}
}

// Options controls one run.
type Options struct {
	// Resume picks up from the latest checkpoint instead of starting cold.
	Resume bool
	// Only restricts the run to the named phases; nil runs everything.
	Only []model.PhaseID
	// MaxQueries caps the search queries Phase 2B may plan; zero uses the
	// resolver's default budget.
	MaxQueries int
}

func (o Options) wants(id model.PhaseID) bool {
	if len(o.Only) == 0 {
		return true
	}
	for _, p := range o.Only {
		if p == id {
			return true
		}
	}
	return false
}

// Run executes the pipeline for the configured institution and returns the
// final result. Item-level failures never abort the run; only a failed
// roster phase (nothing to enrich) or a checkpoint write error does.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.RunResult, error) {
	log := zap.L().With(zap.String("institution", p.inst.Name))
	started := time.Now()

	var records []model.FacultyRecord
	startIdx := 0
	if opts.Resume {
		snap, err := p.store.Latest(ctx, p.inst.Name)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load checkpoint")
		}
		if snap != nil {
			records = snap.Roster
			startIdx = phaseIndex(snap.Phase) + 1
			log.Info("resuming from checkpoint",
				zap.String("phase", string(snap.Phase)),
				zap.Int("roster", len(records)))
		}
	}

	meta := model.RunMetadata{
		RunID:        uuid.NewString(),
		Institution:  p.inst.Name,
		StartedAt:    started,
		ItemFailures: make(map[string]int),
	}

	for i, id := range model.Phases {
		if i < startIdx {
			continue
		}
		if !opts.wants(id) {
			meta.Phases = append(meta.Phases, model.PhaseResult{Phase: id, Status: model.PhaseStatusSkipped})
			continue
		}

		result := p.runPhase(ctx, id, &records, opts)
		meta.Phases = append(meta.Phases, result)
		if result.Errors > 0 {
			meta.ItemFailures[string(id)] = result.Errors
		}
		if result.Status == model.PhaseStatusFailed {
			if id == model.PhaseRoster {
				return nil, eris.New("pipeline: roster extraction failed: " + result.Error)
			}
			// A failed phase is never checkpointed; a resumed run retries it.
			continue
		}
		if err := ctx.Err(); err != nil {
			// Interrupted mid-phase. The previous checkpoint stays the
			// latest one, so the cut-short phase re-runs on resume.
			return nil, err
		}

		snap := checkpoint.Snapshot{
			Institution: p.inst.Name,
			Phase:       id,
			Result:      result,
			Roster:      records,
			SavedAt:     time.Now().UTC(),
		}
		if err := p.store.SavePhase(ctx, snap); err != nil {
			return nil, eris.Wrap(err, "pipeline: save checkpoint")
		}
	}

	websites, emails, highConf, topics, sources := model.CoverageStats(records)
	meta.FinishedAt = time.Now()
	meta.TotalFaculty = len(records)
	meta.WebsitesFound = websites
	meta.EmailsFound = emails
	meta.HighConfEmails = highConf
	meta.EmailSources = sources
	if len(records) > 0 {
		meta.WebsiteCoverage = float64(websites) / float64(len(records))
		meta.EmailCoverage = float64(emails) / float64(len(records))
		meta.TopicsCoverage = float64(topics) / float64(len(records))
	}
	meta.QuotaExhausted = make(map[string]bool)
	for service, state := range p.guards.Snapshots() {
		meta.QuotaExhausted[service] = state.Exhausted
		if service == "brave" {
			meta.SearchQueriesUsed = state.CallsUsed
		}
	}

	result := &model.RunResult{Metadata: meta, Faculty: records}
	if err := p.store.SaveFinal(ctx, result); err != nil {
		return nil, eris.Wrap(err, "pipeline: save final result")
	}
	log.Info("run complete",
		zap.String("run_id", meta.RunID),
		zap.Int("faculty", meta.TotalFaculty),
		zap.Int("websites", meta.WebsitesFound),
		zap.Int("emails", meta.EmailsFound))
	return result, nil
}

func (p *Pipeline) runPhase(ctx context.Context, id model.PhaseID, records *[]model.FacultyRecord, opts Options) model.PhaseResult {
	log := zap.L().With(zap.String("phase", string(id)))
	log.Info("phase starting")
	start := time.Now()

	var res model.PhaseResult
	var err error
	switch id {
	case model.PhaseRoster:
		res, err = p.phaseRoster(ctx, records)
	case model.PhaseDirectories:
		res, err = p.phaseDirectories(ctx, *records)
	case model.PhaseWebsites:
		res, err = p.phaseWebsites(ctx, *records, opts.MaxQueries)
	case model.PhaseRegistry:
		res, err = p.phaseRegistry(ctx, *records)
	case model.PhaseEmails:
		res, err = p.phaseEmails(ctx, *records)
	case model.PhaseFallback:
		res, err = p.phaseFallback(ctx, *records)
	}

	res.Phase = id
	res.DurationMS = time.Since(start).Milliseconds()
	switch {
	case err != nil:
		res.Status = model.PhaseStatusFailed
		res.Error = err.Error()
		log.Error("phase failed", zap.Int64("duration_ms", res.DurationMS), zap.Error(err))
	case res.Status == "":
		res.Status = model.PhaseStatusComplete
		fallthrough
	default:
		log.Info("phase finished",
			zap.String("status", string(res.Status)),
			zap.Int64("duration_ms", res.DurationMS),
			zap.Int("processed", res.Processed),
			zap.Int("found", res.Found))
	}
	return res
}

func (p *Pipeline) phaseRoster(ctx context.Context, records *[]model.FacultyRecord) (model.PhaseResult, error) {
	extracted, stats, err := p.roster.Extract(ctx, p.inst)
	if err != nil {
		return model.PhaseResult{}, err
	}
	*records = extracted
	return model.PhaseResult{
		Processed: stats.Scanned,
		Found:     len(extracted),
		Metadata: map[string]any{
			"total_in_source": stats.TotalInOpenAlex,
			"with_orcid":      stats.WithORCID,
		},
	}, nil
}

func (p *Pipeline) phaseDirectories(ctx context.Context, records []model.FacultyRecord) (model.PhaseResult, error) {
	cache, err := p.directory.Harvest(ctx)
	if err != nil {
		return model.PhaseResult{}, err
	}
	emails, websites := directory.Enrich(records, cache, p.cfg.Pipeline.FuzzyThreshold)
	return model.PhaseResult{
		Processed: len(records),
		Found:     emails + websites,
		Metadata: map[string]any{
			"cached_emails":    len(cache.Emails),
			"cached_websites":  len(cache.Websites),
			"emails_matched":   emails,
			"websites_matched": websites,
		},
	}, nil
}

func (p *Pipeline) phaseWebsites(ctx context.Context, records []model.FacultyRecord, maxQueries int) (model.PhaseResult, error) {
	guard := p.guards.Get("brave")
	eligible := p.websites.Eligible(recordPtrs(records), maxQueries)

	var processed, found, failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for _, rec := range eligible {
		// Stop scheduling once the search quota is gone; in-flight
		// lookups finish and their results are kept.
		if guard.Exhausted() {
			break
		}
		g.Go(func() error {
			site, ok, err := p.websites.Resolve(gctx, rec)
			processed.Add(1)
			if err != nil {
				failures.Add(1)
				zap.L().Warn("website resolution failed", zap.String("name", rec.DisplayName), zap.Error(err))
				return nil
			}
			if ok && rec.SetWebsite(site) {
				found.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := model.PhaseResult{
		Processed: int(processed.Load()),
		Found:     int(found.Load()),
		Errors:    int(failures.Load()),
		Metadata:  map[string]any{"eligible": len(eligible)},
	}
	if guard.Exhausted() {
		res.Status = model.PhaseStatusExhausted
	}
	return res, nil
}

func (p *Pipeline) phaseRegistry(ctx context.Context, records []model.FacultyRecord) (model.PhaseResult, error) {
	var eligible []*model.FacultyRecord
	for i := range records {
		if records[i].ORCID != "" && !records[i].HasEmail() {
			eligible = append(eligible, &records[i])
		}
	}

	var found, failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for _, rec := range eligible {
		g.Go(func() error {
			email, ok, err := p.registry.Lookup(gctx, rec)
			if err != nil {
				failures.Add(1)
				zap.L().Warn("registry lookup failed", zap.String("name", rec.DisplayName), zap.Error(err))
				return nil
			}
			if ok && rec.SetEmail(email) {
				found.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := model.PhaseResult{
		Processed: len(eligible),
		Found:     int(found.Load()),
		Errors:    int(failures.Load()),
	}
	if p.guards.Get("orcid").Exhausted() {
		res.Status = model.PhaseStatusExhausted
	}
	return res, nil
}

func (p *Pipeline) phaseEmails(ctx context.Context, records []model.FacultyRecord) (model.PhaseResult, error) {
	var eligible []*model.FacultyRecord
	for i := range records {
		rec := &records[i]
		if rec.HasWebsite() && !rec.HasEmail() && rec.Website.PageType != model.PageTypeAggregator {
			eligible = append(eligible, rec)
		}
	}

	var found atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for _, rec := range eligible {
		g.Go(func() error {
			if email, ok := p.emails.Extract(gctx, rec.Website.Value, rec.DisplayName); ok && rec.SetEmail(email) {
				found.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return model.PhaseResult{
		Processed: len(eligible),
		Found:     int(found.Load()),
	}, nil
}

func (p *Pipeline) phaseFallback(ctx context.Context, records []model.FacultyRecord) (model.PhaseResult, error) {
	guard := p.guards.Get("brave")
	if guard.Exhausted() {
		// Lowest-priority phase: first to go when search quota is spent.
		return model.PhaseResult{Status: model.PhaseStatusSkipped}, nil
	}

	var eligible []*model.FacultyRecord
	for i := range records {
		if !records[i].HasEmail() {
			eligible = append(eligible, &records[i])
		}
	}
	if len(eligible) > maxFallbackSearches {
		eligible = eligible[:maxFallbackSearches]
	}

	var processed, found, failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for _, rec := range eligible {
		if guard.Exhausted() {
			break
		}
		g.Go(func() error {
			email, ok, err := p.fallback.Search(gctx, rec)
			processed.Add(1)
			if err != nil {
				failures.Add(1)
				zap.L().Warn("fallback search failed", zap.String("name", rec.DisplayName), zap.Error(err))
				return nil
			}
			if ok && rec.SetEmail(email) {
				found.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := model.PhaseResult{
		Processed: int(processed.Load()),
		Found:     int(found.Load()),
		Errors:    int(failures.Load()),
	}
	if guard.Exhausted() {
		res.Status = model.PhaseStatusExhausted
	}
	return res, nil
}

func (p *Pipeline) workers() int {
	if p.cfg.Pipeline.Workers > 0 {
		return p.cfg.Pipeline.Workers
	}
	return 8
}

func recordPtrs(records []model.FacultyRecord) []*model.FacultyRecord {
	ptrs := make([]*model.FacultyRecord, len(records))
	for i := range records {
		ptrs[i] = &records[i]
	}
	return ptrs
}

func phaseIndex(id model.PhaseID) int {
	for i, p := range model.Phases {
		if p == id {
			return i
		}
	}
	return -1
}
