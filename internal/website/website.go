// Package website resolves personal and lab pages for faculty via web
// search. Candidate URLs are scored on institution-domain, URL-shape and
// name signals; the best result above a minimum score wins.
package website

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/namematch"
	"github.com/riq-labs/faculty-pipeline/internal/resilience"
	"github.com/riq-labs/faculty-pipeline/pkg/brave"
)

// Hosts that never hold a personal page. Filtered before scoring so a
// query budget is not spent ranking them.
var hardDenylist = []string{
	"facebook.com", "twitter.com", "x.com", "instagram.com",
	"linkedin.com", "tiktok.com", "youtube.com",
	"doi.org", "pubmed.ncbi.nlm.nih.gov", "arxiv.org", "biorxiv.org",
	"wikipedia.org", "amazon.com",
}

// Aggregator hosts. Kept but penalized: they sometimes link out to the
// real homepage, so a strong name signal can still rescue them.
var softDenylist = []string{
	"research.com", "researchgate.net", "academia.edu",
	"semanticscholar.org", "scholar.google.com", "aminer.org",
}

var urlPatternDenylist = []string{
	"/login", "/signin", "/auth",
	"/course/", "/courses/",
	"/news/article", "/press-release",
	".pdf", ".doc", ".ppt",
	"/search?", "/tag/", "/category/",
	"/event/",
}

var homepageKeywords = []string{
	"publications", "research", "teaching", "cv", "curriculum vitae",
	"students", "lab", "group", "contact", "about", "bio", "projects",
}

var personalPagePatterns = []string{
	"/~", "/people/", "/faculty/", "/profile/", "/lab/", "/labs/",
	"/group/", "people.", "scholar.", "/person/", "/staff/",
}

const (
	minAcceptScore  = 0.15
	highConfScore   = 0.5
	mediumConfScore = 0.3
	resultsPerQuery = 10
	defaultMaxQuery = 5000
)

// Finder resolves websites for roster entries through a search client.
// All search traffic passes through the quota guard, so a 402 from the
// service stops the remaining lookups instead of burning retries.
type Finder struct {
	client brave.Client
	guard  *resilience.Guard
	inst   config.Institution
	cfg    config.PipelineConfig
	policy resilience.Policy
}

// New builds a Finder. The guard must be the shared per-run guard for
// the search service so exhaustion is visible across phases.
func New(client brave.Client, guard *resilience.Guard, inst config.Institution, cfg config.PipelineConfig) *Finder {
	p := resilience.DefaultPolicy()
	p.OnRetry = resilience.RetryLogger("brave", "search")
	return &Finder{client: client, guard: guard, inst: inst, cfg: cfg, policy: p}
}

// Eligible selects and orders the records worth searching for: those
// missing a website, split into tiers by h-index, trimmed to fit the
// query budget, highest h-index first.
func (f *Finder) Eligible(roster []*model.FacultyRecord, maxQueries int) []*model.FacultyRecord {
	if maxQueries <= 0 {
		maxQueries = defaultMaxQuery
	}
	var high, medium []*model.FacultyRecord
	for _, rec := range roster {
		if rec.HasWebsite() {
			continue
		}
		switch {
		case rec.HIndex >= f.cfg.HighValueHIndex:
			high = append(high, rec)
		case rec.HIndex >= f.cfg.MediumValueHIndex:
			medium = append(medium, rec)
		}
	}

	// High-tier records get three queries each, medium one. Trim the
	// medium tier when the estimate would blow the budget.
	estimated := len(high)*3 + len(medium)
	if estimated > maxQueries {
		excess := estimated - maxQueries
		if excess > len(medium) {
			excess = len(medium)
		}
		medium = medium[:len(medium)-excess]
	}

	eligible := append(append([]*model.FacultyRecord{}, high...), medium...)
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].HIndex > eligible[j].HIndex
	})
	zap.L().Info("website search plan",
		zap.Int("high_tier", len(high)),
		zap.Int("medium_tier", len(medium)),
		zap.Int("estimated_queries", estimated))
	return eligible
}

// Resolve issues the search queries for one record and returns the best
// scoring candidate. A false return with nil error means no page cleared
// the acceptance score, or the quota guard is already tripped.
func (f *Finder) Resolve(ctx context.Context, rec *model.FacultyRecord) (model.WebsiteData, bool, error) {
	if f.guard.Exhausted() {
		return model.WebsiteData{}, false, nil
	}

	type ranked struct {
		result brave.Result
		rank   int
	}
	var results []ranked
	for _, query := range f.queries(rec.DisplayName, rec.HIndex) {
		if err := f.guard.Wait(ctx); err != nil {
			if resilience.IsQuotaExhausted(err) {
				break
			}
			return model.WebsiteData{}, false, err
		}
		batch, err := resilience.DoVal(ctx, f.policy, func(ctx context.Context) ([]brave.Result, error) {
			return f.client.Search(ctx, query, resultsPerQuery)
		})
		f.guard.Record(err)
		if err != nil {
			if resilience.IsQuotaExhausted(err) {
				zap.L().Warn("search quota exhausted", zap.String("name", rec.DisplayName))
				break
			}
			zap.L().Warn("search query failed", zap.String("query", query), zap.Error(err))
			continue
		}
		for i, r := range batch {
			results = append(results, ranked{result: r, rank: i + 1})
		}
	}
	if len(results) == 0 {
		return model.WebsiteData{}, false, nil
	}

	seen := make(map[string]bool)
	best := model.WebsiteData{}
	for _, r := range results {
		url := strings.TrimRight(strings.ToLower(r.result.URL), "/")
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		if hardDenied(url) {
			continue
		}
		score, signals, pageType := f.score(r.result, rec.DisplayName)
		score += 0.05 * float64(10-min(r.rank, 10)) / 10

		if score > best.Score || best.Value == "" {
			best = model.WebsiteData{
				Value:    r.result.URL,
				Source:   model.SourceSearch,
				Score:    score,
				Signals:  signals,
				PageType: pageType,
			}
		}
	}
	if best.Value == "" || best.Score < minAcceptScore {
		return model.WebsiteData{}, false, nil
	}
	switch {
	case best.Score >= highConfScore:
		best.Confidence = model.ConfidenceHigh
	case best.Score >= mediumConfScore:
		best.Confidence = model.ConfidenceMedium
	default:
		best.Confidence = model.ConfidenceLow
	}
	return best, true, nil
}

// queries builds the search queries for one person. Everyone gets the
// site-restricted query; high-tier faculty get two broader ones since a
// missed homepage costs more there.
func (f *Finder) queries(name string, hIndex int) []string {
	var qs []string
	if f.inst.WebsiteDomain != "" {
		qs = append(qs, `"`+name+`" site:`+f.inst.WebsiteDomain)
	}
	if hIndex >= f.cfg.HighValueHIndex {
		qs = append(qs,
			`"`+name+`" `+f.inst.Name+` professor homepage`,
			`"`+name+`" `+f.inst.Name+` lab research group`)
	}
	return qs
}

func hardDenied(url string) bool {
	for _, d := range hardDenylist {
		if strings.Contains(url, d) {
			return true
		}
	}
	for _, p := range urlPatternDenylist {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}

// classify buckets a URL by shape and returns the score modifier that
// the bucket carries.
func (f *Finder) classify(url string) (model.PageType, float64) {
	for _, d := range softDenylist {
		if strings.Contains(url, d) {
			return model.PageTypeAggregator, -0.4
		}
	}
	for _, p := range []string{"/pubs", "/publications/", "/papers/"} {
		if strings.Contains(url, p) {
			return model.PageTypePublications, -0.2
		}
	}
	for _, p := range personalPagePatterns {
		if strings.Contains(url, p) {
			return model.PageTypePersonal, 0.1
		}
	}
	if f.inst.WebsiteDomain != "" && strings.Contains(url, f.inst.WebsiteDomain) {
		return model.PageTypeDepartment, 0.05
	}
	return model.PageTypeUnknown, 0.0
}

func (f *Finder) score(r brave.Result, name string) (float64, []string, model.PageType) {
	url := strings.ToLower(r.URL)
	title := strings.ToLower(r.Title)
	combined := title + " " + strings.ToLower(r.Description)

	score := 0.0
	var signals []string

	pageType, mod := f.classify(url)
	score += mod
	if mod != 0 {
		signals = append(signals, "type:"+string(pageType))
	}

	if f.inst.WebsiteDomain != "" && strings.Contains(url, f.inst.WebsiteDomain) {
		score += 0.4
		signals = append(signals, "institution_domain")
	}
	if strings.Contains(url, ".edu") {
		score += 0.2
		signals = append(signals, "edu_domain")
	}

	switch {
	case strings.Contains(url, "/~"):
		score += 0.35
		signals = append(signals, "tilde_url")
	case containsAny(url, "/people/", "/faculty/", "/profile/"):
		score += 0.2
		signals = append(signals, "profile_url")
	case containsAny(url, "/lab/", "/labs/", "/group/"):
		score += 0.15
		signals = append(signals, "lab_url")
	}

	first, _, last := namematch.Parts(name)
	if len(last) > 2 {
		if strings.Contains(url, last) {
			score += 0.25
			signals = append(signals, "lastname_in_url")
		}
		if strings.Contains(title, last) {
			score += 0.15
			signals = append(signals, "lastname_in_title")
		}
	}
	if len(first) > 2 && strings.Contains(title, first) {
		score += 0.1
		signals = append(signals, "firstname_in_title")
	}
	if strings.Contains(title, strings.ToLower(name)) {
		score += 0.2
		signals = append(signals, "fullname_in_title")
	}

	kw := 0
	for _, k := range homepageKeywords {
		if strings.Contains(combined, k) {
			kw++
		}
	}
	if kw >= 2 {
		score += 0.1
		signals = append(signals, "homepage_keywords")
	}

	trimmed := strings.TrimRight(url, "/")
	for _, suffix := range []string{"/people", "/faculty", "/directory", "/staff"} {
		if strings.HasSuffix(trimmed, suffix) {
			score -= 0.3
			signals = append(signals, "generic_listing")
			break
		}
	}

	return score, signals, pageType
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
