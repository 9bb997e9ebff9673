package contact

import (
	"context"

	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/resilience"
	"github.com/riq-labs/faculty-pipeline/pkg/orcid"
)

// Registry looks up self-asserted public emails in the researcher-identity
// registry. Registry emails are published by the author, so they carry
// high confidence without name matching.
type Registry struct {
	client orcid.Client
	guard  *resilience.Guard
	policy resilience.Policy
}

// NewRegistry builds a Registry sharing the run's ORCID quota guard.
func NewRegistry(client orcid.Client, guard *resilience.Guard) *Registry {
	p := resilience.DefaultPolicy()
	p.OnRetry = resilience.RetryLogger("orcid", "emails")
	return &Registry{client: client, guard: guard, policy: p}
}

// Lookup fetches the public emails for one record's registry identifier.
// Records without an identifier, and identifiers with no public email,
// return ok=false with no error.
func (r *Registry) Lookup(ctx context.Context, rec *model.FacultyRecord) (model.EmailData, bool, error) {
	id := orcid.ExtractID(rec.ORCID)
	if id == "" {
		return model.EmailData{}, false, nil
	}
	if err := r.guard.Wait(ctx); err != nil {
		if resilience.IsQuotaExhausted(err) {
			return model.EmailData{}, false, nil
		}
		return model.EmailData{}, false, err
	}
	emails, err := resilience.DoVal(ctx, r.policy, func(ctx context.Context) ([]string, error) {
		return r.client.PublicEmails(ctx, id)
	})
	r.guard.Record(err)
	if err != nil {
		if resilience.IsQuotaExhausted(err) {
			return model.EmailData{}, false, nil
		}
		return model.EmailData{}, false, err
	}
	if len(emails) == 0 {
		return model.EmailData{}, false, nil
	}
	return model.EmailData{
		Value:            emails[0],
		Source:           model.SourceRegistry,
		Confidence:       model.ConfidenceHigh,
		ExtractedFrom:    "https://orcid.org/" + id,
		ExtractionMethod: "orcid_api",
		NameMatchScore:   1.0,
	}, true, nil
}
