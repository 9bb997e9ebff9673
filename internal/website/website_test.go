package website

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/resilience"
	"github.com/riq-labs/faculty-pipeline/pkg/brave"
)

type scriptedSearch struct {
	queries []string
	batches [][]brave.Result
	errs    []error
}

func (s *scriptedSearch) Search(_ context.Context, query string, _ int) ([]brave.Result, error) {
	i := len(s.queries)
	s.queries = append(s.queries, query)
	var batch []brave.Result
	var err error
	if i < len(s.batches) {
		batch = s.batches[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return batch, err
}

func testInstitution() config.Institution {
	return config.Institution{
		Key:           "example",
		Name:          "Example University",
		WebsiteDomain: "example.edu",
		EmailDomains:  []string{"example.edu"},
	}
}

func testFinder(search brave.Client) (*Finder, *resilience.Guard) {
	guard := resilience.NewGuard("brave", 0, 0)
	cfg := config.PipelineConfig{HighValueHIndex: 40, MediumValueHIndex: 20}
	return New(search, guard, testInstitution(), cfg), guard
}

func TestScore_PersonalHomepage(t *testing.T) {
	f, _ := testFinder(&scriptedSearch{})

	score, signals, pageType := f.score(brave.Result{
		URL:         "https://chem.example.edu/~jsmith/",
		Title:       "Jane Smith - Research",
		Description: "Publications and teaching for lab students",
	}, "Jane Smith")

	assert.Equal(t, model.PageTypePersonal, pageType)
	assert.InDelta(t, 1.85, score, 1e-9)
	assert.Contains(t, signals, "institution_domain")
	assert.Contains(t, signals, "tilde_url")
	assert.Contains(t, signals, "lastname_in_url")
	assert.Contains(t, signals, "fullname_in_title")
	assert.Contains(t, signals, "homepage_keywords")
}

func TestScore_AggregatorPenalized(t *testing.T) {
	f, _ := testFinder(&scriptedSearch{})

	score, signals, pageType := f.score(brave.Result{
		URL:   "https://www.researchgate.net/profile/Jane-Smith",
		Title: "Jane Smith",
	}, "Jane Smith")

	assert.Equal(t, model.PageTypeAggregator, pageType)
	assert.Contains(t, signals, "type:aggregator")
	assert.Less(t, score, highConfScore)
}

func TestScore_GenericListingPenalized(t *testing.T) {
	f, _ := testFinder(&scriptedSearch{})

	_, signals, _ := f.score(brave.Result{
		URL:   "https://chem.example.edu/people",
		Title: "People | Department of Chemistry",
	}, "Jane Smith")

	assert.Contains(t, signals, "generic_listing")
}

func TestHardDenied(t *testing.T) {
	assert.True(t, hardDenied("https://www.linkedin.com/in/jane-smith"))
	assert.True(t, hardDenied("https://chem.example.edu/files/cv.pdf"))
	assert.False(t, hardDenied("https://chem.example.edu/~jsmith/"))
}

func TestQueries_TieredByHIndex(t *testing.T) {
	f, _ := testFinder(&scriptedSearch{})

	medium := f.queries("Jane Smith", 25)
	require.Len(t, medium, 1)
	assert.Equal(t, `"Jane Smith" site:example.edu`, medium[0])

	high := f.queries("Jane Smith", 55)
	assert.Len(t, high, 3)
}

func TestResolve_PicksBestResult(t *testing.T) {
	search := &scriptedSearch{
		batches: [][]brave.Result{{
			{URL: "https://chem.example.edu/people", Title: "People | Chemistry"},
			{URL: "https://chem.example.edu/~jsmith/", Title: "Jane Smith - Research", Description: "Publications and teaching for lab students"},
			{URL: "https://www.linkedin.com/in/jane-smith", Title: "Jane Smith"},
		}},
	}
	f, _ := testFinder(search)
	rec := &model.FacultyRecord{DisplayName: "Jane Smith", HIndex: 25}

	website, ok, err := f.Resolve(context.Background(), rec)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://chem.example.edu/~jsmith/", website.Value)
	assert.Equal(t, model.SourceSearch, website.Source)
	assert.Equal(t, model.ConfidenceHigh, website.Confidence)
	assert.Equal(t, model.PageTypePersonal, website.PageType)
	assert.Len(t, search.queries, 1)
}

func TestResolve_NoResultBelowAcceptance(t *testing.T) {
	search := &scriptedSearch{
		batches: [][]brave.Result{{
			{URL: "https://www.researchgate.net/profile/Jane-Smith", Title: "profile"},
		}},
	}
	f, _ := testFinder(search)
	rec := &model.FacultyRecord{DisplayName: "Jane Smith", HIndex: 25}

	_, ok, err := f.Resolve(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolve_QuotaTripsGuard(t *testing.T) {
	search := &scriptedSearch{
		errs: []error{&resilience.QuotaError{Service: "brave"}},
	}
	f, guard := testFinder(search)
	rec := &model.FacultyRecord{DisplayName: "Jane Smith", HIndex: 55}

	_, ok, err := f.Resolve(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, guard.Exhausted())
	// Quota errors are never retried and stop the remaining queries.
	assert.Len(t, search.queries, 1)
}

func TestResolve_SkipsWhenGuardAlreadyExhausted(t *testing.T) {
	search := &scriptedSearch{}
	f, guard := testFinder(search)
	guard.Record(&resilience.QuotaError{Service: "brave"})
	rec := &model.FacultyRecord{DisplayName: "Jane Smith", HIndex: 55}

	_, ok, err := f.Resolve(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, search.queries)
}

func TestEligible_TiersAndBudget(t *testing.T) {
	f, _ := testFinder(&scriptedSearch{})
	roster := []*model.FacultyRecord{
		{DisplayName: "A Star", HIndex: 50},
		{DisplayName: "Has Site", HIndex: 45, Website: model.WebsiteData{Value: "https://x.example.edu"}},
		{DisplayName: "B Mid", HIndex: 30},
		{DisplayName: "C Mid", HIndex: 25},
		{DisplayName: "D Low", HIndex: 5},
	}

	// Budget of 4 covers the high tier (3 queries) plus one medium entry.
	eligible := f.Eligible(roster, 4)

	require.Len(t, eligible, 2)
	assert.Equal(t, "A Star", eligible[0].DisplayName)
	assert.Equal(t, "B Mid", eligible[1].DisplayName)
}
