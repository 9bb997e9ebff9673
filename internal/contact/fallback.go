package contact

import (
	"context"

	"go.uber.org/zap"

	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/namematch"
	"github.com/riq-labs/faculty-pipeline/internal/resilience"
	"github.com/riq-labs/faculty-pipeline/pkg/brave"
)

const fallbackMinNameScore = 0.3

// Fallback is the last-resort email finder: targeted search queries whose
// result titles and descriptions are mined for addresses. No pages are
// fetched; only the search snippets are trusted.
type Fallback struct {
	client brave.Client
	guard  *resilience.Guard
	inst   config.Institution
	policy resilience.Policy
}

// NewFallback builds a Fallback sharing the run's search quota guard.
func NewFallback(client brave.Client, guard *resilience.Guard, inst config.Institution) *Fallback {
	p := resilience.DefaultPolicy()
	p.OnRetry = resilience.RetryLogger("brave", "fallback search")
	return &Fallback{client: client, guard: guard, inst: inst, policy: p}
}

// Search issues the email-targeted queries for one record and returns the
// first institution-domain address that associates with the name.
func (f *Fallback) Search(ctx context.Context, rec *model.FacultyRecord) (model.EmailData, bool, error) {
	if f.guard.Exhausted() {
		return model.EmailData{}, false, nil
	}
	queries := []string{
		`"` + rec.DisplayName + `" email site:` + f.inst.WebsiteDomain,
		`"` + rec.DisplayName + `" contact site:` + f.inst.WebsiteDomain,
	}
	for _, query := range queries {
		if err := f.guard.Wait(ctx); err != nil {
			if resilience.IsQuotaExhausted(err) {
				return model.EmailData{}, false, nil
			}
			return model.EmailData{}, false, err
		}
		results, err := resilience.DoVal(ctx, f.policy, func(ctx context.Context) ([]brave.Result, error) {
			return f.client.Search(ctx, query, 10)
		})
		f.guard.Record(err)
		if err != nil {
			if resilience.IsQuotaExhausted(err) {
				return model.EmailData{}, false, nil
			}
			zap.L().Warn("fallback query failed", zap.String("query", query), zap.Error(err))
			continue
		}
		for _, r := range results {
			for _, addr := range extractText(r.Title + " " + r.Description) {
				if !f.inst.AllowsEmailDomain(addr) || isGeneric(addr) {
					continue
				}
				score := namematch.MatchEmail(addr, rec.DisplayName)
				if score < fallbackMinNameScore {
					continue
				}
				return model.EmailData{
					Value:            addr,
					Source:           model.SourceFallback,
					Confidence:       model.ConfidenceMedium,
					ExtractedFrom:    r.URL,
					ExtractionMethod: "fallback_search",
					NameMatchScore:   score,
				}, true, nil
			}
		}
	}
	return model.EmailData{}, false, nil
}
