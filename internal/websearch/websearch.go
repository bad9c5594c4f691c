// Package websearch queries a SearXNG instance for troubleshooting evidence.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Result is one web-search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source,omitempty"`
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %s (%s)", r.Title, r.Snippet, r.URL)
}

// Config configures the search client.
type Config struct {
	BaseURL           string        `yaml:"base_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	// Sites restricts each query to these domains ("site:" operator); empty means the whole web
	Sites []string `yaml:"sites"`
}

// DefaultConfig targets a local SearXNG and the two troubleshooting sites
// that carry most user reports.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:8888",
		RequestsPerSecond: 1,
		Timeout:           15 * time.Second,
		Sites:             []string{stackOverflowHost, redditHost},
	}
}

// Validate checks that the configuration values are sensible
func (c Config) Validate() error {
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid search base URL %q: %w", c.BaseURL, err)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("RequestsPerSecond must be positive (got %f)", c.RequestsPerSecond)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive (got %v)", c.Timeout)
	}
	return nil
}

// Client is a rate-limited SearXNG JSON API client.
type Client struct {
	baseURL string
	sites   []string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a search client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		sites:   cfg.Sites,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

type searxResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs query (once per configured site) and returns up to maxResults
// hits per site, de-duplicated. Errors degrade to fewer or zero results.
func (c *Client) Search(ctx context.Context, query string, maxResults int) []Result {
	targets := c.sites
	if len(targets) == 0 {
		targets = []string{""}
	}

	var all []Result
	for _, site := range targets {
		q := query
		if site != "" {
			q = fmt.Sprintf("%s site:%s", query, site)
		}
		results, err := c.searchOnce(ctx, q, maxResults)
		if err != nil {
			slog.Warn("websearch: query failed, continuing without results", "query", q, "error", err)
			continue
		}
		all = append(all, results...)
	}
	return Dedupe(all)
}

func (c *Client) searchOnce(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("search error %d: %s", resp.StatusCode, string(b))
	}

	var body searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var out []Result
	for _, r := range body.Results {
		u, title := strings.TrimSpace(r.URL), strings.TrimSpace(r.Title)
		if u == "" || title == "" {
			continue
		}
		out = append(out, Result{
			Title:   title,
			Snippet: strings.TrimSpace(r.Content),
			URL:     u,
			Source:  sourceOf(u),
		})
		if maxResults > 0 && len(out) == maxResults {
			break
		}
	}
	return out, nil
}
