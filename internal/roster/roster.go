// Package roster builds the authoritative faculty roster for an institution
// from the OpenAlex authors API (phase 1).
package roster

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/resilience"
	"github.com/riq-labs/faculty-pipeline/pkg/openalex"
)

const (
	maxTopics   = 15
	maxFields   = 5
	maxKeywords = 15
)

// Extractor pulls and filters authors for one institution.
type Extractor struct {
	client   openalex.Client
	cfg      config.PipelineConfig
	pageSize int
	maxPages int
	policy   resilience.Policy
}

// New creates an Extractor.
func New(client openalex.Client, pcfg config.PipelineConfig, ocfg config.OpenAlexConfig) *Extractor {
	pageSize := ocfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	maxPages := ocfg.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}
	return &Extractor{
		client:   client,
		cfg:      pcfg,
		pageSize: pageSize,
		maxPages: maxPages,
		policy:   resilience.DefaultPolicy(),
	}
}

// Stats summarizes an extraction for the phase report.
type Stats struct {
	TotalInOpenAlex int
	Scanned         int
	Kept            int
	WithORCID       int
}

// Extract pages through the institution's authors, keeps those who look
// like current faculty, and returns them sorted by h-index descending.
func (e *Extractor) Extract(ctx context.Context, inst config.Institution) ([]model.FacultyRecord, Stats, error) {
	var stats Stats

	total, err := resilience.DoVal(ctx, e.policy, func(ctx context.Context) (int, error) {
		return e.client.CountAuthors(ctx, inst.OpenAlexID)
	})
	if err != nil {
		return nil, stats, err
	}
	stats.TotalInOpenAlex = total
	zap.L().Info("roster extraction started",
		zap.String("institution", inst.Name),
		zap.Int("authors_in_openalex", total),
	)

	seen := make(map[string]bool)
	var records []model.FacultyRecord

	for page := 1; page <= e.maxPages; page++ {
		if e.cfg.MaxFaculty > 0 && len(records) >= e.cfg.MaxFaculty {
			break
		}

		authors, err := resilience.DoVal(ctx, e.policy, func(ctx context.Context) ([]openalex.Author, error) {
			return e.client.ListAuthors(ctx, inst.OpenAlexID, page, e.pageSize)
		})
		if err != nil {
			// Only a dead first page is fatal. A bad page later in the
			// listing ends pagination with whatever was collected; the
			// gap is logged rather than discarding the partial roster.
			if page == 1 || ctx.Err() != nil {
				return nil, stats, err
			}
			zap.L().Warn("roster page failed, keeping partial roster",
				zap.Int("page", page),
				zap.Int("kept", len(records)),
				zap.Error(err),
			)
			break
		}
		if len(authors) == 0 {
			break
		}

		for _, a := range authors {
			if e.cfg.MaxFaculty > 0 && len(records) >= e.cfg.MaxFaculty {
				break
			}
			stats.Scanned++
			if seen[a.ID] || !e.eligible(a, inst) {
				continue
			}
			seen[a.ID] = true
			rec := buildRecord(a, inst)
			if rec.ORCID != "" {
				stats.WithORCID++
			}
			records = append(records, rec)
		}
		zap.L().Debug("roster page processed",
			zap.Int("page", page),
			zap.Int("kept", len(records)),
		)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].HIndex > records[j].HIndex
	})
	stats.Kept = len(records)

	zap.L().Info("roster extraction finished",
		zap.Int("kept", stats.Kept),
		zap.Int("scanned", stats.Scanned),
		zap.Int("with_orcid", stats.WithORCID),
	)
	return records, stats, nil
}

// eligible filters out authors who are unlikely to be current faculty at
// the institution: no primary affiliation there, too many affiliations
// (shared-facility staff), or too thin a publication record.
func (e *Extractor) eligible(a openalex.Author, inst config.Institution) bool {
	if len(a.LastKnownInstitutions) == 0 {
		return false
	}
	primary := a.LastKnownInstitutions[0].DisplayName
	if inst.ShortName() == "" || !strings.Contains(primary, inst.ShortName()) {
		return false
	}
	if e.cfg.MaxAffiliations > 0 && len(a.LastKnownInstitutions) > e.cfg.MaxAffiliations {
		return false
	}
	if a.SummaryStats.HIndex < e.cfg.MinHIndex && a.WorksCount < e.cfg.MinWorks {
		return false
	}
	return true
}

func buildRecord(a openalex.Author, inst config.Institution) model.FacultyRecord {
	rec := model.FacultyRecord{
		ID:           a.ID,
		DisplayName:  a.DisplayName,
		NameVariants: a.DisplayNameAlternatives,
		Institution:  inst.Name,
		ORCID:        a.ORCID,
		HIndex:       a.SummaryStats.HIndex,
		I10Index:     a.SummaryStats.I10Index,
		WorksCount:   a.WorksCount,
		CitedByCount: a.CitedByCount,
		Research:     buildResearchProfile(a),
		ExtractedAt:  time.Now().UTC(),
	}
	return rec
}

// buildResearchProfile prefers the modern topics list; legacy concepts fill
// in broad fields and serve as a keyword fallback.
func buildResearchProfile(a openalex.Author) model.ResearchProfile {
	var profile model.ResearchProfile

	for _, t := range a.Topics {
		if t.DisplayName == "" {
			continue
		}
		profile.Topics = append(profile.Topics, model.Topic{
			Name:  t.DisplayName,
			Score: t.Score,
		})
		if len(profile.Topics) == maxTopics {
			break
		}
	}

	for _, c := range a.XConcepts {
		if c.DisplayName == "" || c.Level != 0 {
			continue
		}
		profile.Fields = append(profile.Fields, c.DisplayName)
		if len(profile.Fields) == maxFields {
			break
		}
	}

	if len(profile.Topics) > 0 {
		for _, t := range profile.Topics {
			profile.Keywords = append(profile.Keywords, t.Name)
		}
	} else {
		for _, c := range a.XConcepts {
			if c.DisplayName == "" || c.Level < 1 {
				continue
			}
			profile.Keywords = append(profile.Keywords, c.DisplayName)
			if len(profile.Keywords) == maxKeywords {
				break
			}
		}
	}
	return profile
}
