package fetch

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Link is an anchor extracted from a page, with its href resolved against
// the page URL.
type Link struct {
	URL  string
	Text string
}

// Document is a fetched HTML page parsed for extraction.
type Document struct {
	URL *url.URL
	doc *goquery.Document
}

// ParseDocument parses HTML read from r, resolving links against base.
func ParseDocument(base string, r io.Reader) (*Document, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse base url %s", base)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse html %s", base)
	}
	return &Document{URL: u, doc: doc}, nil
}

// Title returns the page title, trimmed.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Text returns the visible text of the page body with scripts and styles
// stripped and whitespace collapsed.
func (d *Document) Text() string {
	body := d.doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}

// Resolve turns an href into an absolute URL against the page URL. It
// returns an empty string for fragments, javascript: pseudo-links, and
// unparseable hrefs.
func (d *Document) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := d.URL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// Links returns every http(s) anchor on the page, resolved and deduplicated
// in document order.
func (d *Document) Links() []Link {
	var links []Link
	seen := make(map[string]bool)
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := d.Resolve(href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, Link{
			URL:  abs,
			Text: strings.Join(strings.Fields(s.Text()), " "),
		})
	})
	return links
}

// Mailtos returns the addresses of every mailto: anchor, lowercased and
// stripped of query parameters, paired with the anchor text.
func (d *Document) Mailtos() []Link {
	var out []Link
	seen := make(map[string]bool)
	d.doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, Link{
			URL:  addr,
			Text: strings.Join(strings.Fields(s.Text()), " "),
		})
	})
	return out
}

// Each iterates over elements matching a CSS selector.
func (d *Document) Each(selector string, fn func(*goquery.Selection)) {
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) { fn(s) })
}

// Find returns the goquery selection for a CSS selector, for callers that
// need structured traversal beyond the helpers above.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}
