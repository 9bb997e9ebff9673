package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riq-labs/faculty-pipeline/internal/checkpoint"
	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/directory"
	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/resilience"
	"github.com/riq-labs/faculty-pipeline/internal/roster"
)

type fakeRoster struct {
	records []model.FacultyRecord
	err     error
	calls   int
}

func (f *fakeRoster) Extract(context.Context, config.Institution) ([]model.FacultyRecord, roster.Stats, error) {
	f.calls++
	if f.err != nil {
		return nil, roster.Stats{}, f.err
	}
	out := make([]model.FacultyRecord, len(f.records))
	copy(out, f.records)
	return out, roster.Stats{Scanned: len(out), Kept: len(out)}, nil
}

type fakeDirectory struct {
	cache *directory.Cache
	err   error
}

func (f *fakeDirectory) Harvest(context.Context) (*directory.Cache, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.cache == nil {
		return directory.NewCache(), nil
	}
	return f.cache, nil
}

type fakeWebsites struct {
	sites       map[string]model.WebsiteData
	guard       *resilience.Guard
	quotaAfter  int
	calls       int
	cancelAfter int
	cancel      context.CancelFunc
}

func (f *fakeWebsites) Eligible(records []*model.FacultyRecord, _ int) []*model.FacultyRecord {
	var out []*model.FacultyRecord
	for _, rec := range records {
		if !rec.HasWebsite() {
			out = append(out, rec)
		}
	}
	return out
}

func (f *fakeWebsites) Resolve(_ context.Context, rec *model.FacultyRecord) (model.WebsiteData, bool, error) {
	f.calls++
	if f.quotaAfter > 0 && f.calls > f.quotaAfter {
		f.guard.Record(&resilience.QuotaError{Service: "brave"})
		return model.WebsiteData{}, false, nil
	}
	if f.cancelAfter > 0 && f.calls >= f.cancelAfter {
		f.cancel()
	}
	site, ok := f.sites[rec.DisplayName]
	return site, ok, nil
}

type fakeRegistry struct {
	emails map[string]model.EmailData
}

func (f *fakeRegistry) Lookup(_ context.Context, rec *model.FacultyRecord) (model.EmailData, bool, error) {
	email, ok := f.emails[rec.DisplayName]
	return email, ok, nil
}

type fakeEmails struct {
	byURL map[string]model.EmailData
}

func (f *fakeEmails) Extract(_ context.Context, pageURL, _ string) (model.EmailData, bool) {
	email, ok := f.byURL[pageURL]
	return email, ok
}

type fakeFallback struct {
	emails map[string]model.EmailData
}

func (f *fakeFallback) Search(_ context.Context, rec *model.FacultyRecord) (model.EmailData, bool, error) {
	email, ok := f.emails[rec.DisplayName]
	return email, ok, nil
}

type fixture struct {
	pipeline *Pipeline
	store    checkpoint.Store
	roster   *fakeRoster
	websites *fakeWebsites
	guards   *resilience.GuardRegistry
}

func newFixture(t *testing.T, records []model.FacultyRecord) *fixture {
	t.Helper()
	store, err := checkpoint.NewFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	guards := resilience.NewGuardRegistry(0, 0)
	fr := &fakeRoster{records: records}
	fw := &fakeWebsites{sites: map[string]model.WebsiteData{}, guard: guards.Get("brave")}
	cfg := &config.Config{Pipeline: config.PipelineConfig{Workers: 2, FuzzyThreshold: 0.85}}
	inst := config.Institution{Key: "example", Name: "Example University", EmailDomains: []string{"example.edu"}}

	f := &fixture{
		store:    store,
		roster:   fr,
		websites: fw,
		guards:   guards,
	}
	f.pipeline = New(cfg, inst, store,
		fr,
		&fakeDirectory{},
		fw,
		&fakeRegistry{},
		&fakeEmails{},
		&fakeFallback{},
		guards)
	return f
}

func synthRoster() []model.FacultyRecord {
	return []model.FacultyRecord{
		{ID: "A1", DisplayName: "Jane Smith", Institution: "Example University", HIndex: 45},
		{ID: "A2", DisplayName: "John Doe", Institution: "Example University", HIndex: 30},
		{ID: "A3", DisplayName: "Rita Silent", Institution: "Example University", HIndex: 22},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, synthRoster())

	// Jane resolves entirely from the directory cache.
	cache := directory.NewCache()
	cache.Emails["jane smith"] = "jsmith@example.edu"
	cache.Websites["jane smith"] = "https://chem.example.edu/people/jane-smith"
	f.pipeline.directory = &fakeDirectory{cache: cache}

	// John needs search plus contact-page extraction.
	f.websites.sites["John Doe"] = model.WebsiteData{
		Value:      "https://example.edu/~jdoe",
		Source:     model.SourceSearch,
		Confidence: model.ConfidenceHigh,
		Score:      0.9,
		PageType:   model.PageTypePersonal,
	}
	f.pipeline.emails = &fakeEmails{byURL: map[string]model.EmailData{
		"https://example.edu/~jdoe": {
			Value:            "jdoe@example.edu",
			Source:           model.SourceWebsite,
			Confidence:       model.ConfidenceHigh,
			ExtractionMethod: "mailto",
		},
	}}

	result, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	meta := result.Metadata
	assert.Equal(t, 3, meta.TotalFaculty)
	assert.Equal(t, 2, meta.WebsitesFound)
	assert.Equal(t, 2, meta.EmailsFound)
	assert.Equal(t, map[string]int{"directory": 1, "website": 1}, meta.EmailSources)
	require.Len(t, meta.Phases, len(model.Phases))
	for _, pr := range meta.Phases {
		assert.Equal(t, model.PhaseStatusComplete, pr.Status, string(pr.Phase))
	}

	byName := map[string]model.FacultyRecord{}
	for _, rec := range result.Faculty {
		byName[rec.DisplayName] = rec
	}
	assert.Equal(t, model.SourceDirectory, byName["Jane Smith"].Email.Source)
	assert.Equal(t, model.SourceSearch, byName["John Doe"].Website.Source)
	assert.Equal(t, model.SourceWebsite, byName["John Doe"].Email.Source)
	rita := byName["Rita Silent"]
	assert.False(t, rita.HasEmail())
	assert.False(t, rita.HasWebsite())

	// Every phase left a checkpoint and the final result is readable.
	for _, id := range model.Phases {
		snap, err := f.store.LoadPhase(context.Background(), "Example University", id)
		require.NoError(t, err)
		require.NotNil(t, snap, string(id))
	}
	final, err := f.store.LoadFinal(context.Background(), "Example University")
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, meta.RunID, final.Metadata.RunID)
}

func TestRun_QuotaShortCircuit(t *testing.T) {
	records := []model.FacultyRecord{
		{ID: "A1", DisplayName: "P One", HIndex: 50},
		{ID: "A2", DisplayName: "P Two", HIndex: 45},
		{ID: "A3", DisplayName: "P Three", HIndex: 42},
		{ID: "A4", DisplayName: "P Four", HIndex: 41},
	}
	f := newFixture(t, records)
	f.pipeline.cfg.Pipeline.Workers = 1
	for _, r := range records {
		f.websites.sites[r.DisplayName] = model.WebsiteData{
			Value:      "https://example.edu/~" + r.ID,
			Source:     model.SourceSearch,
			Confidence: model.ConfidenceMedium,
		}
	}
	f.websites.quotaAfter = 2

	result, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Metadata.WebsitesFound)
	assert.True(t, result.Metadata.QuotaExhausted["brave"])

	statuses := map[model.PhaseID]model.PhaseStatus{}
	for _, pr := range result.Metadata.Phases {
		statuses[pr.Phase] = pr.Status
	}
	assert.Equal(t, model.PhaseStatusExhausted, statuses[model.PhaseWebsites])
	assert.Equal(t, model.PhaseStatusSkipped, statuses[model.PhaseFallback])

	// The exhausted phase still checkpointed.
	snap, err := f.store.LoadPhase(context.Background(), "Example University", model.PhaseWebsites)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, model.PhaseStatusExhausted, snap.Result.Status)
}

func TestRun_InterruptMidPhaseNotCheckpointed(t *testing.T) {
	f := newFixture(t, synthRoster())
	f.pipeline.cfg.Pipeline.Workers = 1
	for _, r := range synthRoster() {
		f.websites.sites[r.DisplayName] = model.WebsiteData{
			Value:      "https://example.edu/~" + r.ID,
			Source:     model.SourceSearch,
			Confidence: model.ConfidenceMedium,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.websites.cancelAfter = 1
	f.websites.cancel = cancel

	_, err := f.pipeline.Run(ctx, Options{})
	require.ErrorIs(t, err, context.Canceled)

	// The cut-short phase left no checkpoint; the last finished one is
	// still the latest.
	snap, lerr := f.store.LoadPhase(context.Background(), "Example University", model.PhaseWebsites)
	require.NoError(t, lerr)
	assert.Nil(t, snap, "interrupted phase must not be checkpointed")
	latest, lerr := f.store.Latest(context.Background(), "Example University")
	require.NoError(t, lerr)
	require.NotNil(t, latest)
	assert.Equal(t, model.PhaseDirectories, latest.Phase)

	// Resume re-runs the interrupted phase from scratch.
	f.websites.cancelAfter = 0
	result, err := f.pipeline.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, f.roster.calls, "resume reuses the checkpointed roster")
	assert.Equal(t, model.PhaseWebsites, result.Metadata.Phases[0].Phase)
	assert.Equal(t, 3, result.Metadata.WebsitesFound)
}

func TestRun_FailedPhaseNotCheckpointed(t *testing.T) {
	f := newFixture(t, synthRoster())
	f.pipeline.directory = &fakeDirectory{err: errors.New("directory host down")}

	result, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	statuses := map[model.PhaseID]model.PhaseStatus{}
	for _, pr := range result.Metadata.Phases {
		statuses[pr.Phase] = pr.Status
	}
	assert.Equal(t, model.PhaseStatusFailed, statuses[model.PhaseDirectories])

	snap, err := f.store.LoadPhase(context.Background(), "Example University", model.PhaseDirectories)
	require.NoError(t, err)
	assert.Nil(t, snap, "failed phase must not be checkpointed")

	// Later phases still ran and checkpointed normally.
	snap, err = f.store.LoadPhase(context.Background(), "Example University", model.PhaseWebsites)
	require.NoError(t, err)
	require.NotNil(t, snap)
}

func TestRun_ResumeSkipsCompletedPhases(t *testing.T) {
	f := newFixture(t, nil)
	f.roster.err = errors.New("must not be called on resume")

	seeded := []model.FacultyRecord{{
		ID:          "A1",
		DisplayName: "Jane Smith",
		Email:       model.EmailData{Value: "jsmith@example.edu", Source: model.SourceDirectory, Confidence: model.ConfidenceHigh},
	}}
	require.NoError(t, f.store.SavePhase(context.Background(), checkpoint.Snapshot{
		Institution: "Example University",
		Phase:       model.PhaseDirectories,
		Result:      model.PhaseResult{Phase: model.PhaseDirectories, Status: model.PhaseStatusComplete},
		Roster:      seeded,
		SavedAt:     time.Now().UTC(),
	}))

	result, err := f.pipeline.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)

	assert.Zero(t, f.roster.calls)
	require.Len(t, result.Metadata.Phases, 4, "only phases after the checkpoint run")
	assert.Equal(t, model.PhaseWebsites, result.Metadata.Phases[0].Phase)
	assert.Equal(t, "jsmith@example.edu", result.Faculty[0].Email.Value)
}

func TestRun_RosterFailureAborts(t *testing.T) {
	f := newFixture(t, nil)
	f.roster.err = errors.New("bibliometric source down")

	_, err := f.pipeline.Run(context.Background(), Options{})
	require.Error(t, err)

	final, ferr := f.store.LoadFinal(context.Background(), "Example University")
	require.NoError(t, ferr)
	assert.Nil(t, final, "failed run saves no final result")
}

func TestRun_PhaseSubset(t *testing.T) {
	f := newFixture(t, synthRoster())

	result, err := f.pipeline.Run(context.Background(), Options{Only: []model.PhaseID{model.PhaseRoster}})
	require.NoError(t, err)

	statuses := map[model.PhaseID]model.PhaseStatus{}
	for _, pr := range result.Metadata.Phases {
		statuses[pr.Phase] = pr.Status
	}
	assert.Equal(t, model.PhaseStatusComplete, statuses[model.PhaseRoster])
	assert.Equal(t, model.PhaseStatusSkipped, statuses[model.PhaseWebsites])
	assert.Equal(t, 3, result.Metadata.TotalFaculty)
}
