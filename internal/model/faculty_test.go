package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetEmail_EmptySlotAccepts(t *testing.T) {
	var f FacultyRecord
	ok := f.SetEmail(EmailData{Value: "jdoe@univ.edu", Source: SourceDirectory, Confidence: ConfidenceMedium})
	assert.True(t, ok)
	assert.Equal(t, "jdoe@univ.edu", f.Email.Value)
}

func TestSetEmail_RejectsEmptyValue(t *testing.T) {
	var f FacultyRecord
	assert.False(t, f.SetEmail(EmailData{Confidence: ConfidenceHigh}))
}

func TestSetEmail_HighIsTerminal(t *testing.T) {
	var f FacultyRecord
	f.SetEmail(EmailData{Value: "a@univ.edu", Source: SourceRegistry, Confidence: ConfidenceHigh})
	ok := f.SetEmail(EmailData{Value: "b@univ.edu", Source: SourceWebsite, Confidence: ConfidenceHigh})
	assert.False(t, ok)
	assert.Equal(t, "a@univ.edu", f.Email.Value)
}

func TestSetEmail_UpgradeAllowedDowngradeForbidden(t *testing.T) {
	var f FacultyRecord
	f.SetEmail(EmailData{Value: "a@univ.edu", Source: SourceWebsite, Confidence: ConfidenceMedium})

	// Same level from a different source does not replace.
	assert.False(t, f.SetEmail(EmailData{Value: "b@univ.edu", Source: SourceFallback, Confidence: ConfidenceMedium}))

	// Strict upgrade replaces.
	assert.True(t, f.SetEmail(EmailData{Value: "c@univ.edu", Source: SourceRegistry, Confidence: ConfidenceHigh}))
	assert.Equal(t, "c@univ.edu", f.Email.Value)

	// Downgrade never replaces.
	assert.False(t, f.SetEmail(EmailData{Value: "d@univ.edu", Source: SourceWebsite, Confidence: ConfidenceLow}))
	assert.Equal(t, "c@univ.edu", f.Email.Value)
}

func TestSetWebsite_SameRules(t *testing.T) {
	var f FacultyRecord
	assert.True(t, f.SetWebsite(WebsiteData{Value: "https://univ.edu/~doe", Source: SourceSearch, Confidence: ConfidenceLow}))
	assert.True(t, f.SetWebsite(WebsiteData{Value: "https://univ.edu/people/doe", Source: SourceDirectory, Confidence: ConfidenceHigh}))
	assert.False(t, f.SetWebsite(WebsiteData{Value: "https://other.edu/doe", Source: SourceSearch, Confidence: ConfidenceMedium}))
	assert.Equal(t, "https://univ.edu/people/doe", f.Website.Value)
}

func TestCoverageStats(t *testing.T) {
	roster := []FacultyRecord{
		{
			Email:    EmailData{Value: "a@u.edu", Source: SourceDirectory, Confidence: ConfidenceHigh},
			Website:  WebsiteData{Value: "https://u.edu/a"},
			Research: ResearchProfile{Topics: []Topic{{Name: "genomics"}}},
		},
		{
			Email:   EmailData{Value: "b@u.edu", Source: SourceWebsite, Confidence: ConfidenceMedium},
			Website: WebsiteData{Value: "https://u.edu/b"},
		},
		{},
	}
	websites, emails, highConf, topics, sources := CoverageStats(roster)
	assert.Equal(t, 2, websites)
	assert.Equal(t, 2, emails)
	assert.Equal(t, 1, highConf)
	assert.Equal(t, 1, topics)
	assert.Equal(t, map[string]int{"directory": 1, "website": 1}, sources)
}

func TestResearchProfileSummary(t *testing.T) {
	p := ResearchProfile{Topics: []Topic{{Name: "ml"}, {Name: "nlp"}}}
	assert.Equal(t, "ml; nlp", p.Summary())
	assert.Equal(t, "", ResearchProfile{}.Summary())
}
