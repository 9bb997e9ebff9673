package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/fetch"
	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/resilience"
)

const directoryPage = `<html><body>
<table>
<tr><td>Jane Smith Professor of Chemistry</td><td><a href="mailto:jsmith@example.edu">email</a></td></tr>
<tr><td>Visiting Scholar</td><td><a href="mailto:someone@gmail.com">email</a></td></tr>
</table>
<div class="faculty-member">
  <h3>John Doe</h3>
  <a href="/people/john-doe">Profile</a>
  <a href="mailto:jdoe@example.edu">jdoe@example.edu</a>
</div>
<div class="news-item">
  <h3>Department wins award</h3>
  <a href="/news/award">Read more</a>
</div>
</body></html>`

func testInst() config.Institution {
	return config.Institution{
		Key:           "example",
		Name:          "Example University",
		EmailDomains:  []string{"example.edu"},
		WebsiteDomain: "example.edu",
	}
}

func harvestedCache(t *testing.T, page string) *Cache {
	t.Helper()
	doc, err := fetch.ParseDocument("https://chem.example.edu/people", strings.NewReader(page))
	require.NoError(t, err)

	cache := NewCache()
	NewScraper(nil, testInst()).harvestDocument(doc, cache)
	return cache
}

func TestHarvest_MailtoRows(t *testing.T) {
	cache := harvestedCache(t, directoryPage)

	email, score := cache.LookupEmail("Jane Smith", 0.85)
	assert.Equal(t, "jsmith@example.edu", email)
	assert.Positive(t, score)
}

func TestHarvest_RejectsForeignDomains(t *testing.T) {
	cache := harvestedCache(t, directoryPage)
	for _, email := range cache.Emails {
		assert.NotContains(t, email, "gmail.com")
	}
}

func TestHarvest_PersonCards(t *testing.T) {
	cache := harvestedCache(t, directoryPage)

	email, score := cache.LookupEmail("John Doe", 0.85)
	assert.Equal(t, "jdoe@example.edu", email)
	assert.Equal(t, 1.0, score)

	url, _ := cache.LookupWebsite("John Doe", 0.85)
	assert.Equal(t, "https://chem.example.edu/people/john-doe", url)
}

func TestHarvest_IgnoresNonPersonContainers(t *testing.T) {
	cache := harvestedCache(t, directoryPage)
	url, _ := cache.LookupWebsite("Department wins award", 0.85)
	assert.Empty(t, url)
}

func TestLookup_InitialedVariant(t *testing.T) {
	cache := NewCache()
	cache.Emails["j smith"] = "jsmith@example.edu"

	email, score := cache.LookupEmail("Jane Smith", 0.85)
	assert.Equal(t, "jsmith@example.edu", email)
	assert.Equal(t, 1.0, score)
}

func TestLookup_RejectsDifferentPerson(t *testing.T) {
	cache := NewCache()
	cache.Emails["alan cheng"] = "acheng@example.edu"

	email, _ := cache.LookupEmail("Alan Chen", 0.85)
	assert.Empty(t, email)
}

func TestEnrich(t *testing.T) {
	cache := NewCache()
	cache.Emails["jane smith"] = "jsmith@example.edu"
	cache.Websites["jane smith"] = "https://chem.example.edu/people/jane-smith"
	cache.Emails["jon doe"] = "jdoe@example.edu" // fuzzy vs "John Doe"

	roster := []model.FacultyRecord{
		{ID: "A1", DisplayName: "Jane Smith"},
		{ID: "A2", DisplayName: "John Doe"},
		{ID: "A3", DisplayName: "Nobody Here"},
	}

	emails, websites := Enrich(roster, cache, 0.85)
	assert.Equal(t, 2, emails)
	assert.Equal(t, 1, websites)

	assert.Equal(t, model.ConfidenceHigh, roster[0].Email.Confidence)
	assert.Equal(t, "directory_exact_match", roster[0].Email.ExtractionMethod)
	assert.Equal(t, model.ConfidenceHigh, roster[0].Website.Confidence)

	assert.Equal(t, model.ConfidenceMedium, roster[1].Email.Confidence)
	assert.Equal(t, "directory_fuzzy_match", roster[1].Email.ExtractionMethod)

	assert.False(t, roster[2].HasEmail())
}

func TestEnrich_CandidateEnrichesOneEntry(t *testing.T) {
	cache := NewCache()
	cache.Emails["j smith"] = "jsmith@example.edu"

	roster := []model.FacultyRecord{
		{ID: "A1", DisplayName: "Jane Smith"},
		{ID: "A2", DisplayName: "John Smith"},
	}

	emails, _ := Enrich(roster, cache, 0.85)
	assert.Equal(t, 1, emails, "one directory row never enriches two people")
	assert.NotEqual(t, roster[0].HasEmail(), roster[1].HasEmail())
}

func TestEnrich_TiePrefersUnenrichedEntry(t *testing.T) {
	cache := NewCache()
	cache.Emails["j smith"] = "jsmith@example.edu"

	roster := []model.FacultyRecord{
		{
			ID:          "A1",
			DisplayName: "Jane Smith",
			Email: model.EmailData{
				Value:      "jane@example.edu",
				Source:     model.SourceRegistry,
				Confidence: model.ConfidenceHigh,
			},
		},
		{ID: "A2", DisplayName: "John Smith"},
	}

	emails, _ := Enrich(roster, cache, 0.85)
	assert.Equal(t, 1, emails)
	assert.Equal(t, "jane@example.edu", roster[0].Email.Value)
	assert.Equal(t, "jsmith@example.edu", roster[1].Email.Value)
}

func TestEnrich_DoesNotDowngrade(t *testing.T) {
	cache := NewCache()
	cache.Emails["jon smith"] = "fuzzy@example.edu"

	roster := []model.FacultyRecord{{
		ID:          "A1",
		DisplayName: "John Smith",
		Email: model.EmailData{
			Value:      "verified@example.edu",
			Source:     model.SourceRegistry,
			Confidence: model.ConfidenceHigh,
		},
	}}

	emails, _ := Enrich(roster, cache, 0.85)
	assert.Zero(t, emails)
	assert.Equal(t, "verified@example.edu", roster[0].Email.Value)
}

func TestScraper_Harvest_SkipsFailedPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/good", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, directoryPage)
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	inst := testInst()
	inst.Directories = []string{srv.URL + "/bad", srv.URL + "/good"}

	client := fetch.New(
		fetch.WithRobots(false),
		fetch.WithHostRate(1000, 1000),
		fetch.WithRetryPolicy(resilience.Policy{Attempts: 1, BaseDelay: time.Millisecond}),
	)
	cache, err := NewScraper(client, inst).Harvest(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, cache.Emails, "good page still harvested after bad page fails")
}
