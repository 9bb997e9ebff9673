// Package namematch normalizes and fuzzily compares person names across
// sources that spell them differently (full names, initials, hyphenated
// surnames, honorifics, diacritics).
package namematch

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the minimum similarity score for a fuzzy match.
const DefaultThreshold = 0.85

// titles are stripped from names before matching.
var titles = []string{
	"dr", "prof", "professor", "mr", "mrs", "ms",
	"phd", "md", "jr", "sr", "iii", "ii", "iv",
}

var (
	titleRe      *regexp.Regexp
	nonWordRe    = regexp.MustCompile(`[^\w\s-]`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)

	// foldMarks strips combining diacritical marks so "José" matches "Jose".
	foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

func init() {
	titleRe = regexp.MustCompile(`\b(` + strings.Join(titles, "|") + `)\.?\b`)
}

// Normalize lowercases a name, folds diacritics, strips honorifics and
// suffixes, removes punctuation except hyphens, and collapses whitespace.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(foldMarks, name); err == nil {
		name = folded
	}
	name = titleRe.ReplaceAllString(name, "")
	name = nonWordRe.ReplaceAllString(name, " ")
	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// Parts splits a normalized name into first, middle, and last tokens.
func Parts(name string) (first, middle, last string) {
	tokens := strings.Fields(Normalize(name))
	switch len(tokens) {
	case 0:
		return "", "", ""
	case 1:
		return tokens[0], "", tokens[0]
	case 2:
		return tokens[0], "", tokens[1]
	default:
		return tokens[0], strings.Join(tokens[1:len(tokens)-1], " "), tokens[len(tokens)-1]
	}
}

// Variants generates the normalized forms used for matching: the full name,
// first+last, inverted order, first-initial forms, bare last name, and
// hyphenated-surname parts.
func Variants(name string) []string {
	full := Normalize(name)
	if full == "" {
		return nil
	}
	first, middle, last := Parts(name)

	forms := []string{
		full,
		first + " " + last,
		last + " " + first,
		last,
		first,
	}
	if first != "" {
		forms = append(forms,
			first[:1]+" "+last,
			first[:1]+last,
		)
	}
	if middle != "" {
		mi := middle[:1]
		forms = append(forms,
			first+" "+middle+" "+last,
			first+" "+mi+" "+last,
		)
		if first != "" {
			forms = append(forms, first[:1]+" "+mi+" "+last)
		}
	}
	if strings.Contains(last, "-") {
		for _, seg := range strings.Split(last, "-") {
			forms = append(forms, seg)
			if first != "" && first != last {
				forms = append(forms, first+" "+seg)
			}
		}
	}

	seen := make(map[string]bool, len(forms))
	out := forms[:0]
	for _, v := range forms {
		v = strings.TrimSpace(v)
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Similarity returns a normalized string-similarity ratio in [0, 1] based on
// the longest common subsequence of the two normalized names.
func Similarity(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}
	lcs := lcsLength(a, b)
	return 2.0 * float64(lcs) / float64(len(a)+len(b))
}

func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// lastEqual compares surname tokens, treating a hyphenated surname as
// matching any of its segments ("garcia-lopez" matches "garcia").
func lastEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	for _, seg := range strings.Split(a, "-") {
		if seg == b {
			return true
		}
	}
	for _, seg := range strings.Split(b, "-") {
		if seg == a {
			return true
		}
	}
	return false
}

// Match compares two names. Identical normalized forms, or an initialed
// form of the same name ("J. Smith" vs "John Smith"), match at score 1.0.
// Otherwise the similarity of the full forms must reach the threshold AND
// the last-name tokens must be equal, which rejects high-similarity
// different-person collisions ("Alan Chen" vs "Alan Cheng").
func Match(a, b string, threshold float64) (bool, float64) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false, 0
	}
	if na == nb {
		return true, 1.0
	}

	aFirst, _, aLast := Parts(a)
	bFirst, _, bLast := Parts(b)
	if !lastEqual(aLast, bLast) {
		return false, Similarity(a, b)
	}

	// Surnames agree; decide on first names.
	switch {
	case aFirst == bFirst:
		return true, 1.0
	case len(aFirst) == 1 || len(bFirst) == 1:
		// One side is an initial: initials must agree.
		if aFirst[:1] == bFirst[:1] {
			return true, 1.0
		}
		return false, Similarity(a, b)
	case strings.HasPrefix(aFirst, bFirst) || strings.HasPrefix(bFirst, aFirst):
		// Diminutive/truncated first name ("rob" vs "robert").
		return true, 0.95
	}

	score := Similarity(a, b)
	if score >= threshold {
		return true, score
	}
	return false, score
}

// MatchEmail scores how plausibly an email's local part derives from a
// person's name. Surname presence is the strongest signal; common
// first-initial+last patterns and a fuzzy comparison add smaller boosts.
func MatchEmail(email, name string) float64 {
	at := strings.IndexByte(email, '@')
	if at <= 0 || name == "" {
		return 0
	}
	local := strings.ToLower(email[:at])
	first, _, last := Parts(name)

	score := 0.0
	if len(last) > 2 && strings.Contains(local, last) {
		score += 0.5
	}
	if len(first) > 2 && strings.Contains(local, first) {
		score += 0.3
	}

	var patterns []string
	if first != "" {
		fi := first[:1]
		patterns = append(patterns,
			fi+last, fi+"_"+last, fi+"."+last, last+fi,
			first+"."+last, first+"_"+last, first+last,
			last+"."+first, last+"_"+first,
		)
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(local, p) {
			score += 0.2
			break
		}
	}

	if Similarity(local, first+last) > 0.7 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
