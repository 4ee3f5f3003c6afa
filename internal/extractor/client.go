// Package extractor provides the HTTP client for the external
// fetch/extraction collaborator. The engine only consumes page outcomes and
// draft payloads; rendering and language-model extraction happen on the other
// side of this boundary.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonesrussell/curation-engine/internal/models"
)

const (
	// DefaultBaseURL is the default base URL for the extractor service.
	DefaultBaseURL = "http://localhost:8070"
	// DefaultTimeout is the default timeout for extractor requests. Fetches
	// can be slow; the timeout lives here at the boundary, not in the state
	// machine.
	DefaultTimeout = 30 * time.Second
)

// PageResult is the extractor's response for one fetched page.
type PageResult struct {
	URL    string                `json:"url"`
	Links  []string              `json:"links"`
	Drafts []models.DraftContent `json:"drafts"`
}

// Candidate is one discovery search hit.
type Candidate struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
	Title  string `json:"title"`
}

// Fetcher fetches one page and returns its extraction result.
type Fetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*PageResult, error)
}

// Searcher issues a discovery query and returns candidate websites.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Client is an HTTP client for the extractor service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the extractor client.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the timeout for extractor requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new extractor client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// FetchPage asks the extractor to fetch and extract one page.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*PageResult, error) {
	body, err := json.Marshal(map[string]string{"url": pageURL})
	if err != nil {
		return nil, fmt.Errorf("marshal fetch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fetch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result PageResult
	if doErr := c.doRequest(req, &result); doErr != nil {
		return nil, doErr
	}

	return &result, nil
}

// Search issues a discovery query against the extractor's search endpoint.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	var response struct {
		Candidates []Candidate `json:"candidates"`
	}
	if doErr := c.doRequest(req, &response); doErr != nil {
		return nil, doErr
	}

	return response.Candidates, nil
}

// doRequest executes a request and decodes the JSON response.
func (c *Client) doRequest(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("extractor request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode extractor response: %w", err)
	}

	return nil
}

// Compile-time interface checks.
var (
	_ Fetcher  = (*Client)(nil)
	_ Searcher = (*Client)(nil)
)
