// Package orcid is a thin client for the public ORCID registry API.
package orcid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/riq-labs/faculty-pipeline/internal/resilience"
)

const defaultBaseURL = "https://pub.orcid.org/v3.0"

// idRe matches a bare ORCID iD inside a URL or string.
var idRe = regexp.MustCompile(`\d{4}-\d{4}-\d{4}-\d{3}[\dX]`)

// ExtractID pulls the ORCID iD out of a URL like https://orcid.org/0000-0002-1825-0097.
// It returns an empty string if none is present.
func ExtractID(s string) string {
	return idRe.FindString(s)
}

// Client performs ORCID public API operations.
type Client interface {
	// PublicEmails returns the publicly visible email addresses on a
	// record, lowercased. A missing or private record returns an empty
	// slice, not an error.
	PublicEmails(ctx context.Context, orcidID string) ([]string, error)
}

type emailResponse struct {
	Email []struct {
		Email string `json:"email"`
	} `json:"email"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an ORCID public API client. No credentials are needed.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) PublicEmails(ctx context.Context, orcidID string) ([]string, error) {
	id := ExtractID(orcidID)
	if id == "" {
		return nil, eris.Errorf("orcid: no iD in %q", orcidID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+id+"/email", nil)
	if err != nil {
		return nil, eris.Wrap(err, "orcid: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "faculty-pipeline/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "orcid: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "orcid: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTPStatus("orcid", resp.StatusCode, string(respBody))
	}

	var result emailResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "orcid: unmarshal response")
	}

	var emails []string
	for _, entry := range result.Email {
		addr := strings.ToLower(strings.TrimSpace(entry.Email))
		if strings.Contains(addr, "@") {
			emails = append(emails, addr)
		}
	}
	return emails, nil
}
