// Package openalex is a thin client for the OpenAlex authors API.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/riq-labs/faculty-pipeline/internal/resilience"
)

const defaultBaseURL = "https://api.openalex.org"

// Client performs OpenAlex API operations.
type Client interface {
	// CountAuthors returns the number of authors whose last known
	// institution matches the given OpenAlex institution ID.
	CountAuthors(ctx context.Context, institutionID string) (int, error)

	// ListAuthors returns one page of authors for the institution.
	ListAuthors(ctx context.Context, institutionID string, page, perPage int) ([]Author, error)
}

// Institution is an author affiliation.
type Institution struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SummaryStats holds an author's citation statistics.
type SummaryStats struct {
	HIndex   int `json:"h_index"`
	I10Index int `json:"i10_index"`
}

// Topic is a ranked research topic.
type Topic struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// Concept is a legacy OpenAlex concept; level 0 concepts are broad fields.
type Concept struct {
	DisplayName string  `json:"display_name"`
	Level       int     `json:"level"`
	Score       float64 `json:"score"`
}

// Author is an author record.
type Author struct {
	ID                      string        `json:"id"`
	DisplayName             string        `json:"display_name"`
	DisplayNameAlternatives []string      `json:"display_name_alternatives"`
	ORCID                   string        `json:"orcid"`
	WorksCount              int           `json:"works_count"`
	CitedByCount            int           `json:"cited_by_count"`
	SummaryStats            SummaryStats  `json:"summary_stats"`
	LastKnownInstitutions   []Institution `json:"last_known_institutions"`
	Topics                  []Topic       `json:"topics"`
	XConcepts               []Concept     `json:"x_concepts"`
}

type authorsResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []Author `json:"results"`
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
	contactEmail string
	baseURL      string
	http         *http.Client
}

// NewClient creates an OpenAlex client. The contact email is sent in the
// User-Agent per the API's polite-pool convention.
func NewClient(contactEmail string, opts ...Option) Client {
	c := &httpClient{
		contactEmail: contactEmail,
		baseURL:      defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CountAuthors(ctx context.Context, institutionID string) (int, error) {
	resp, err := c.authors(ctx, institutionID, 1, 1)
	if err != nil {
		return 0, err
	}
	return resp.Meta.Count, nil
}

func (c *httpClient) ListAuthors(ctx context.Context, institutionID string, page, perPage int) ([]Author, error) {
	resp, err := c.authors(ctx, institutionID, page, perPage)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *httpClient) authors(ctx context.Context, institutionID string, page, perPage int) (*authorsResponse, error) {
	q := url.Values{}
	q.Set("filter", "last_known_institutions.id:"+institutionID)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/authors?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: create request")
	}
	req.Header.Set("User-Agent", fmt.Sprintf("faculty-pipeline/1.0 (mailto:%s)", c.contactEmail))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "openalex: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTPStatus("openalex", resp.StatusCode, string(respBody))
	}

	var result authorsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "openalex: unmarshal response")
	}
	return &result, nil
}
