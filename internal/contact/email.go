// Package contact finds a validated email for faculty records: from the
// researcher-identity registry, from resolved websites and their contact
// pages, and as a last resort from targeted search snippets.
package contact

import (
	"regexp"
	"strings"

	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/namematch"
)

var emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// Obfuscation spellings seen in the wild: "a [at] b [dot] edu",
// "a (at) b (dot) edu", "a at b dot edu".
var obfuscationRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([A-Za-z0-9._%+-]+)\s*\[\s*at\s*\]\s*([A-Za-z0-9.-]+)\s*\[\s*dot\s*\]\s*([A-Za-z]{2,})`),
	regexp.MustCompile(`(?i)([A-Za-z0-9._%+-]+)\s*\(\s*at\s*\)\s*([A-Za-z0-9.-]+)\s*\(\s*dot\s*\)\s*([A-Za-z]{2,})`),
	regexp.MustCompile(`(?i)([A-Za-z0-9._%+-]+)\s+at\s+([A-Za-z0-9.-]+)\s+dot\s+([A-Za-z]{2,})`),
}

// Local parts that belong to departments and mailing lists, not people.
// A generic candidate is dropped outright; name association cannot rescue
// an address like info@ or admissions@.
var genericLocals = map[string]bool{
	"info": true, "contact": true, "admin": true, "office": true,
	"department": true, "dept": true, "general": true, "inquiries": true,
	"support": true, "help": true, "webmaster": true, "web": true,
	"communications": true, "media": true, "press": true, "news": true,
	"events": true, "editor": true, "subscribe": true, "noreply": true,
	"hr": true, "careers": true, "admissions": true, "registrar": true,
	"alumni": true, "development": true, "giving": true, "contedu": true,
	"program": true, "programs": true, "course": true, "courses": true,
	"statistics": true, "math": true, "chemistry": true, "physics": true,
	"biology": true, "economics": true, "psychology": true, "sociology": true,
	"lab": true, "research": true, "faculty": true, "staff": true,
	"graduate": true, "undergraduate": true,
}

func isGeneric(email string) bool {
	local, _, ok := strings.Cut(strings.ToLower(email), "@")
	if !ok {
		return false
	}
	return genericLocals[local]
}

func extractText(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range emailRe.FindAllString(text, -1) {
		m = strings.ToLower(m)
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func extractObfuscated(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, re := range obfuscationRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			addr := strings.ToLower(m[1] + "@" + m[2] + "." + m[3])
			if !seen[addr] {
				seen[addr] = true
				out = append(out, addr)
			}
		}
	}
	return out
}

// candidate is one extracted address with the method that produced it.
type candidate struct {
	email  string
	method string
}

// Mailto links are the most trustworthy signal, visible-text matches the
// least. The boost is added to the name-association score.
var methodBoost = map[string]float64{
	"mailto":       0.3,
	"regex":        0.2,
	"contact_page": 0.15,
	"obfuscated":   0.1,
}

// selectBest validates candidates against the institution's email domains
// and the person's name, and returns the highest scoring survivor. A nil
// return means nothing qualified.
func selectBest(cands []candidate, name string, inst config.Institution) *scoredCandidate {
	var best *scoredCandidate
	for _, c := range cands {
		if !inst.AllowsEmailDomain(c.email) || isGeneric(c.email) {
			continue
		}
		nameScore := namematch.MatchEmail(c.email, name)
		total := nameScore + methodBoost[c.method]

		// Mailto links get a lower bar: the page author chose to
		// publish them as the contact address.
		minScore := 0.35
		if c.method == "mailto" {
			minScore = 0.25
		}
		if nameScore < minScore && total < 0.4 {
			continue
		}
		if best == nil || total > best.score {
			best = &scoredCandidate{email: c.email, method: c.method, score: total}
		}
	}
	return best
}

type scoredCandidate struct {
	email  string
	method string
	score  float64
}
