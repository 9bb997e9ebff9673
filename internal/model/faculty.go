package model

import (
	"strings"
	"time"
)

// Confidence is the trust level assigned to an extracted contact value.
// It gates overwrites: a later phase may only replace a value with a
// strictly higher-confidence one, and high-confidence values are final.
type Confidence string

const (
	ConfidenceUnknown Confidence = "unknown"
	ConfidenceLow     Confidence = "low"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceHigh    Confidence = "high"
)

// rank orders confidence levels for overwrite decisions.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	default:
		return 0
	}
}

// Source identifies which external source produced a contact value.
type Source string

const (
	SourceDirectory Source = "directory"
	SourceRegistry  Source = "registry"
	SourceWebsite   Source = "website"
	SourceSearch    Source = "search"
	SourceFallback  Source = "fallback_search"
)

// PageType classifies a resolved website.
type PageType string

const (
	PageTypePersonal     PageType = "personal"
	PageTypeLab          PageType = "lab"
	PageTypeDepartment   PageType = "department"
	PageTypePublications PageType = "publications"
	PageTypeAggregator   PageType = "aggregator"
	PageTypeUnknown      PageType = "unknown"
)

// EmailData is a contact email with provenance.
type EmailData struct {
	Value            string     `json:"value,omitempty"`
	Source           Source     `json:"source,omitempty"`
	Confidence       Confidence `json:"confidence,omitempty"`
	ExtractedFrom    string     `json:"extracted_from,omitempty"`
	ExtractionMethod string     `json:"extraction_method,omitempty"`
	NameMatchScore   float64    `json:"name_match_score,omitempty"`
}

// WebsiteData is a resolved personal/lab page with provenance.
type WebsiteData struct {
	Value      string     `json:"value,omitempty"`
	Source     Source     `json:"source,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
	Score      float64    `json:"score,omitempty"`
	Signals    []string   `json:"signals,omitempty"`
	PageType   PageType   `json:"page_type,omitempty"`
}

// ResearchProfile holds bibliometric research metadata for one person.
type ResearchProfile struct {
	Topics   []Topic  `json:"topics,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Topic is a weighted research topic from the bibliometric source.
type Topic struct {
	Name  string  `json:"name"`
	Score float64 `json:"score,omitempty"`
}

// Summary joins the top topics into a single display string.
func (r ResearchProfile) Summary() string {
	n := len(r.Topics)
	if n > 5 {
		n = 5
	}
	names := make([]string, 0, n)
	for _, t := range r.Topics[:n] {
		names = append(names, t.Name)
	}
	return strings.Join(names, "; ")
}

// FacultyRecord is one person at one institution. Created once by the
// roster phase; later phases only populate Email and Website.
type FacultyRecord struct {
	ID            string          `json:"id"`
	DisplayName   string          `json:"display_name"`
	NameVariants  []string        `json:"name_variants,omitempty"`
	Institution   string          `json:"institution"`
	Department    string          `json:"department,omitempty"`
	ORCID         string          `json:"orcid,omitempty"`
	HIndex        int             `json:"h_index"`
	I10Index      int             `json:"i10_index,omitempty"`
	WorksCount    int             `json:"works_count,omitempty"`
	CitedByCount  int             `json:"cited_by_count,omitempty"`
	Research      ResearchProfile `json:"research"`
	Email         EmailData       `json:"email"`
	Website       WebsiteData     `json:"website"`
	ExtractedAt   time.Time       `json:"extracted_at"`
	NeedsReview   bool            `json:"needs_review,omitempty"`
	ReviewNotes   string          `json:"review_notes,omitempty"`
}

// HasEmail reports whether the record holds an accepted email.
func (f *FacultyRecord) HasEmail() bool { return f.Email.Value != "" }

// HasWebsite reports whether the record holds an accepted website.
func (f *FacultyRecord) HasWebsite() bool { return f.Website.Value != "" }

// SetEmail applies the overwrite rule: accept when the slot is empty or the
// candidate carries strictly higher confidence. High-confidence values are
// never replaced. Returns true when the record changed.
func (f *FacultyRecord) SetEmail(e EmailData) bool {
	if e.Value == "" {
		return false
	}
	if f.Email.Value != "" && e.Confidence.rank() <= f.Email.Confidence.rank() {
		return false
	}
	f.Email = e
	return true
}

// SetWebsite applies the same overwrite rule to the website slot.
func (f *FacultyRecord) SetWebsite(w WebsiteData) bool {
	if w.Value == "" {
		return false
	}
	if f.Website.Value != "" && w.Confidence.rank() <= f.Website.Confidence.rank() {
		return false
	}
	f.Website = w
	return true
}

// CandidateContact is the transient output of harvesting/search phases
// before reconciliation. It is consumed by the name matcher and discarded;
// never persisted past the phase that produced it.
type CandidateContact struct {
	RawName     string
	Email       string
	URL         string
	SourcePage  string
	SignalScore float64
}
