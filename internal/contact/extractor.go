package contact

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/fetch"
	"github.com/riq-labs/faculty-pipeline/internal/model"
)

// Link href fragments that usually lead to a page carrying the email.
var contactLinkPatterns = []string{
	"/contact", "/about", "/email", "/bio", "/profile",
	"/cv", "/home", "biography", "personal",
	"/people/", "/faculty/", "/staff/", "/directory/",
	"/info", "/reach", "/connect",
	"?page=contact", "?view=contact", "?tab=contact",
}

var contactLinkWords = []string{"contact", "email", "reach", "about me", "bio"}

const defaultMaxContactPages = 7

// Extractor pulls a validated email out of a resolved website, following
// a bounded number of contact-page links when the landing page does not
// yield a confident match.
type Extractor struct {
	client          *fetch.Client
	inst            config.Institution
	maxContactPages int
}

// NewExtractor builds an Extractor. maxContactPages bounds the follow-up
// fetches per website; zero means the default of 7.
func NewExtractor(client *fetch.Client, inst config.Institution, maxContactPages int) *Extractor {
	if maxContactPages <= 0 {
		maxContactPages = defaultMaxContactPages
	}
	return &Extractor{client: client, inst: inst, maxContactPages: maxContactPages}
}

// Extract fetches pageURL and returns the best validated email for name.
// Fetch failures and unqualified candidates return ok=false; neither
// aborts the phase.
func (e *Extractor) Extract(ctx context.Context, pageURL, name string) (model.EmailData, bool) {
	u, err := url.Parse(pageURL)
	if err != nil || pageURL == "" {
		return model.EmailData{}, false
	}
	if e.inst.SkipsEmailExtraction(u.Host) {
		zap.L().Debug("skipping site without public emails", zap.String("url", pageURL))
		return model.EmailData{}, false
	}

	doc, err := e.client.Document(ctx, pageURL)
	if err != nil {
		zap.L().Debug("page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return model.EmailData{}, false
	}

	candidates := harvestPage(doc, "mailto", "regex")
	for _, addr := range extractObfuscated(doc.Text()) {
		candidates = append(candidates, candidate{email: addr, method: "obfuscated"})
	}
	best := selectBest(candidates, name, e.inst)

	// Follow contact-page links when the landing page gave nothing
	// confident, or the host is known to hide emails behind one.
	if best == nil || best.score < 0.5 || e.inst.WantsContactPage(u.Host) {
		for _, contactURL := range e.contactPages(doc) {
			cdoc, err := e.client.Document(ctx, contactURL)
			if err != nil {
				continue
			}
			candidates = append(candidates, harvestPage(cdoc, "contact_page", "contact_page")...)
			if next := selectBest(candidates, name, e.inst); next != nil && (best == nil || next.score > best.score) {
				best = next
				if best.score >= 0.6 {
					break
				}
			}
		}
	}
	if best == nil {
		return model.EmailData{}, false
	}

	confidence := model.ConfidenceLow
	switch {
	case best.score >= 0.6:
		confidence = model.ConfidenceHigh
	case best.score >= 0.4:
		confidence = model.ConfidenceMedium
	}
	return model.EmailData{
		Value:            best.email,
		Source:           model.SourceWebsite,
		Confidence:       confidence,
		ExtractedFrom:    pageURL,
		ExtractionMethod: best.method,
		NameMatchScore:   best.score,
	}, true
}

// harvestPage collects mailto and visible-text addresses from one page,
// tagging them with the given methods.
func harvestPage(doc *fetch.Document, mailtoMethod, textMethod string) []candidate {
	var out []candidate
	for _, m := range doc.Mailtos() {
		out = append(out, candidate{email: m.URL, method: mailtoMethod})
	}
	for _, addr := range extractText(doc.Text()) {
		out = append(out, candidate{email: addr, method: textMethod})
	}
	return out
}

// contactPages ranks same-host outbound links that look like contact
// pages, plus a few conventional paths worth probing blind.
func (e *Extractor) contactPages(doc *fetch.Document) []string {
	seen := make(map[string]bool)
	var pages []string
	add := func(raw string) {
		if raw == "" || raw == doc.URL.String() || seen[raw] {
			return
		}
		seen[raw] = true
		pages = append(pages, raw)
	}

	for _, link := range doc.Links() {
		target, err := url.Parse(link.URL)
		if err != nil || !strings.Contains(target.Host, doc.URL.Host) {
			continue
		}
		href := strings.ToLower(link.URL)
		text := strings.ToLower(link.Text)
		if containsAny(href, contactLinkPatterns) || containsAny(text, contactLinkWords) {
			add(link.URL)
		}
	}

	base := doc.URL.Scheme + "://" + doc.URL.Host
	path := strings.TrimRight(doc.URL.Path, "/")
	add(base + path + "/contact")
	add(base + "/contact")
	add(base + path + "?tab=contact")

	if len(pages) > e.maxContactPages {
		pages = pages[:e.maxContactPages]
	}
	return pages
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
