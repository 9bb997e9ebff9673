// Package directory scrapes departmental faculty directories (phase 2A) and
// reconciles the harvested contacts against the roster by name.
package directory

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/fetch"
	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/namematch"
)

var (
	personClassRe = regexp.MustCompile(`(?i)faculty|person|profile|member|staff|people`)

	profilePathHints = []string{"/people/", "/faculty/", "/profile/", "/person/"}
)

// Cache holds contacts harvested from directory pages, keyed by the
// normalized name they appeared under. It lives for one harvest: its
// matches land on the roster records, which are what gets checkpointed.
type Cache struct {
	Emails   map[string]string `json:"emails"`
	Websites map[string]string `json:"websites"`
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		Emails:   make(map[string]string),
		Websites: make(map[string]string),
	}
}

// Scraper harvests configured directory pages for one institution.
type Scraper struct {
	client *fetch.Client
	inst   config.Institution
}

// NewScraper creates a Scraper.
func NewScraper(client *fetch.Client, inst config.Institution) *Scraper {
	return &Scraper{client: client, inst: inst}
}

// Harvest scrapes every configured directory. Individual page failures are
// logged and skipped; the phase proceeds with whatever it collected.
func (s *Scraper) Harvest(ctx context.Context) (*Cache, error) {
	cache := NewCache()
	for _, url := range s.inst.Directories {
		if err := ctx.Err(); err != nil {
			return cache, err
		}
		doc, err := s.client.Document(ctx, url)
		if err != nil {
			zap.L().Warn("directory scrape failed",
				zap.String("url", url),
				zap.Error(err),
			)
			continue
		}
		before := len(cache.Emails) + len(cache.Websites)
		s.harvestDocument(doc, cache)
		zap.L().Info("directory scraped",
			zap.String("url", url),
			zap.Int("new_entries", len(cache.Emails)+len(cache.Websites)-before),
		)
	}
	return cache, nil
}

// harvestDocument pulls named contacts out of one directory page using two
// passes: mailto anchors attributed to their surrounding row, and
// person-card containers with a heading plus profile link.
func (s *Scraper) harvestDocument(doc *fetch.Document, cache *Cache) {
	// Pass 1: mailto links, named by the leading words of their row.
	doc.Each(`a[href^="mailto:"]`, func(a *goquery.Selection) {
		href, _ := a.Attr("href")
		email := cleanMailto(href)
		if email == "" || !s.inst.AllowsEmailDomain(email) {
			return
		}
		parent := a.ParentsFiltered("tr, li, article, section, div").First()
		if parent.Length() == 0 {
			return
		}
		words := strings.Fields(parent.Text())
		if len(words) > 6 {
			words = words[:6]
		}
		key := namematch.Normalize(strings.Join(words, " "))
		if len(key) > 3 {
			cache.Emails[key] = email
		}
	})

	// Pass 2: person cards with a heading and optional profile link.
	doc.Each("div, article, li, tr", func(container *goquery.Selection) {
		class, _ := container.Attr("class")
		if !personClassRe.MatchString(class) {
			return
		}
		name := strings.TrimSpace(container.Find("h2, h3, h4, a, strong").First().Text())
		key := namematch.Normalize(name)
		if len(key) <= 3 {
			return
		}

		if href, ok := container.Find(`a[href^="mailto:"]`).First().Attr("href"); ok {
			if email := cleanMailto(href); email != "" && s.inst.AllowsEmailDomain(email) {
				cache.Emails[key] = email
			}
		}

		container.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			for _, hint := range profilePathHints {
				if strings.Contains(href, hint) {
					if abs := doc.Resolve(href); abs != "" {
						cache.Websites[key] = abs
						return false
					}
				}
			}
			return true
		})
	})
}

func cleanMailto(href string) string {
	addr := strings.TrimPrefix(href, "mailto:")
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	return strings.ToLower(strings.TrimSpace(addr))
}

// LookupEmail finds the cached email for a faculty name. An exact name
// match scores 1.0; otherwise the best fuzzy match at or above the
// threshold wins.
func (c *Cache) LookupEmail(name string, threshold float64) (email string, score float64) {
	return lookup(c.Emails, name, threshold)
}

// LookupWebsite finds the cached profile URL for a faculty name.
func (c *Cache) LookupWebsite(name string, threshold float64) (url string, score float64) {
	return lookup(c.Websites, name, threshold)
}

func lookup(m map[string]string, name string, threshold float64) (string, float64) {
	var best string
	var bestScore float64
	for cached, value := range m {
		score, ok := candidateScore(name, cached, threshold)
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = value
			if score == 1.0 {
				break
			}
		}
	}
	return best, bestScore
}

// candidateScore scores one cached key against one faculty name.
func candidateScore(name, cached string, threshold float64) (float64, bool) {
	if ok, score := namematch.Match(name, cached, threshold); ok {
		return score, true
	}
	// Row-derived keys often trail into job titles ("jane smith
	// of chemistry"); a whole-token prefix still identifies the
	// person.
	norm := namematch.Normalize(name)
	if norm != "" && strings.HasPrefix(cached, norm+" ") {
		return 0.9, true
	}
	return 0, false
}

type match struct {
	value string
	score float64
}

// assign resolves each cached candidate to at most one roster entry: the
// highest-scoring match wins, and on a tied score the entry still missing
// the value does. When two candidates land on the same entry the
// better-scoring one is kept.
func assign(m map[string]string, roster []model.FacultyRecord, threshold float64, filled func(*model.FacultyRecord) bool) map[int]match {
	out := make(map[int]match)
	for cached, value := range m {
		bestIdx := -1
		var bestScore float64
		for i := range roster {
			score, ok := candidateScore(roster[i].DisplayName, cached, threshold)
			if !ok {
				continue
			}
			switch {
			case score > bestScore:
				bestIdx, bestScore = i, score
			case score == bestScore && bestIdx >= 0 && filled(&roster[bestIdx]) && !filled(&roster[i]):
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			continue
		}
		if cur, taken := out[bestIdx]; !taken || bestScore > cur.score {
			out[bestIdx] = match{value: value, score: bestScore}
		}
	}
	return out
}

// Enrich applies the cache to the roster. Candidates are assigned
// entry-by-candidate so one directory row never enriches two people.
// Exact matches land at high confidence, fuzzy matches at medium; the
// monotonic merge rule on the record decides whether an existing value
// survives.
func Enrich(roster []model.FacultyRecord, cache *Cache, threshold float64) (emails, websites int) {
	emailFor := assign(cache.Emails, roster, threshold, func(f *model.FacultyRecord) bool { return f.HasEmail() })
	siteFor := assign(cache.Websites, roster, threshold, func(f *model.FacultyRecord) bool { return f.HasWebsite() })

	for i := range roster {
		f := &roster[i]

		if m, ok := emailFor[i]; ok {
			conf := model.ConfidenceMedium
			method := "directory_fuzzy_match"
			if m.score == 1.0 {
				conf = model.ConfidenceHigh
				method = "directory_exact_match"
			}
			if f.SetEmail(model.EmailData{
				Value:            m.value,
				Source:           model.SourceDirectory,
				Confidence:       conf,
				ExtractedFrom:    "department_directory",
				ExtractionMethod: method,
				NameMatchScore:   m.score,
			}) {
				emails++
			}
		}

		if m, ok := siteFor[i]; ok {
			conf := model.ConfidenceMedium
			if m.score == 1.0 {
				conf = model.ConfidenceHigh
			}
			if f.SetWebsite(model.WebsiteData{
				Value:      m.value,
				Source:     model.SourceDirectory,
				Confidence: conf,
				PageType:   model.PageTypePersonal,
			}) {
				websites++
			}
		}
	}
	return emails, websites
}
