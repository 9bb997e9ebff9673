package fetch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peoplePage = `<html>
<head><title> Faculty Directory </title></head>
<body>
<script>var x = "ignore me";</script>
<div class="person">
  <a href="/faculty/jsmith">Jane Smith</a>
  <a href="mailto:JSmith@example.edu?subject=hi">Email Jane</a>
</div>
<div class="person">
  <a href="https://other.example.org/~doe/">John Doe</a>
  <a href="mailto:jdoe@example.edu">jdoe@example.edu</a>
</div>
<a href="#top">Back to top</a>
<a href="javascript:void(0)">Menu</a>
<a href="/faculty/jsmith">Jane Smith (again)</a>
</body></html>`

func parseTestDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseDocument("https://www.example.edu/people/", strings.NewReader(peoplePage))
	require.NoError(t, err)
	return doc
}

func TestDocument_Title(t *testing.T) {
	assert.Equal(t, "Faculty Directory", parseTestDoc(t).Title())
}

func TestDocument_TextStripsScripts(t *testing.T) {
	text := parseTestDoc(t).Text()
	assert.Contains(t, text, "Jane Smith")
	assert.NotContains(t, text, "ignore me")
}

func TestDocument_LinksResolvedAndDeduped(t *testing.T) {
	links := parseTestDoc(t).Links()

	var urls []string
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	assert.Contains(t, urls, "https://www.example.edu/faculty/jsmith")
	assert.Contains(t, urls, "https://other.example.org/~doe/")

	// Fragments, javascript:, mailto:, and duplicates are excluded.
	for _, u := range urls {
		assert.NotContains(t, u, "javascript")
		assert.NotContains(t, u, "mailto")
		assert.NotContains(t, u, "#")
	}
	count := 0
	for _, u := range urls {
		if u == "https://www.example.edu/faculty/jsmith" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDocument_Mailtos(t *testing.T) {
	mailtos := parseTestDoc(t).Mailtos()
	require.Len(t, mailtos, 2)
	assert.Equal(t, "jsmith@example.edu", mailtos[0].URL, "lowercased, query stripped")
	assert.Equal(t, "Email Jane", mailtos[0].Text)
	assert.Equal(t, "jdoe@example.edu", mailtos[1].URL)
}

func TestDocument_Resolve(t *testing.T) {
	doc := parseTestDoc(t)
	assert.Equal(t, "https://www.example.edu/faculty/x", doc.Resolve("/faculty/x"))
	assert.Equal(t, "https://www.example.edu/people/nested", doc.Resolve("nested"))
	assert.Empty(t, doc.Resolve("#section"))
	assert.Empty(t, doc.Resolve("javascript:alert(1)"))
	assert.Empty(t, doc.Resolve("mailto:x@example.edu"))
}
