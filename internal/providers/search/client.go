// Package search retrieves documentation excerpts from an allowlisted set
// of domains for research-mode answers.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vylinhq/vylin/internal/config"
	obsmetrics "github.com/vylinhq/vylin/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxExcerptLength       = 500
	highlightMaxCharacters = 1200
	defaultMaxResults      = 10
)

// AllowedDomains is the closed set of sources research answers may cite.
var AllowedDomains = []string{
	"docs.solana.com",
	"github.com/solana-labs",
	"github.com/anza-xyz",
	"anchor-lang.com",
	"docs.rs",
}

// Result is one retrieved source.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
}

// Client queries the Exa search API. A missing API key or any provider
// failure yields zero results, never an error.
type Client struct {
	log     *zap.Logger
	http    *http.Client
	metrics *obsmetrics.Metrics

	baseURL string
	apiKey  string
}

type ClientParam struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewClient(p ClientParam) *Client {
	return &Client{
		log:     p.Log.Named("search"),
		http:    &http.Client{Timeout: 15 * time.Second},
		metrics: p.Metrics,
		baseURL: strings.TrimRight(p.Cfg.SearchURL, "/"),
		apiKey:  p.Cfg.SearchAPIKey,
	}
}

type searchRequest struct {
	Query          string         `json:"query"`
	NumResults     int            `json:"numResults"`
	IncludeDomains []string       `json:"includeDomains"`
	Contents       searchContents `json:"contents"`
}

type searchContents struct {
	Highlights searchHighlights `json:"highlights"`
}

type searchHighlights struct {
	MaxCharacters int `json:"maxCharacters"`
}

type searchResponse struct {
	Results []struct {
		Title      string   `json:"title"`
		URL        string   `json:"url"`
		Highlights []string `json:"highlights"`
		Text       string   `json:"text"`
	} `json:"results"`
}

// Search returns up to maxResults sanitized sources for the query.
func (c *Client) Search(ctx context.Context, query string, maxResults int) []Result {
	if c.apiKey == "" {
		return nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	if maxResults < 1 {
		maxResults = defaultMaxResults
	}
	if maxResults > defaultMaxResults {
		maxResults = defaultMaxResults
	}

	body, err := json.Marshal(searchRequest{
		Query:          query,
		NumResults:     maxResults,
		IncludeDomains: AllowedDomains,
		Contents: searchContents{
			Highlights: searchHighlights{MaxCharacters: highlightMaxCharacters},
		},
	})
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.record(ctx, "error")
		c.log.Warn("search request failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.record(ctx, "error")
		c.log.Warn("search request rejected", zap.Int("status", resp.StatusCode))
		return nil
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.record(ctx, "error")
		return nil
	}

	c.record(ctx, "ok")
	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		excerpt := r.Text
		if len(r.Highlights) > 0 {
			excerpt = strings.Join(r.Highlights, " ")
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Excerpt: SanitizeExcerpt(excerpt),
		})
	}
	return results
}

func (c *Client) record(ctx context.Context, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(ctx, "search", outcome)
	}
}

var (
	reCodeBlocks = regexp.MustCompile("```[\\s\\S]*?```")
	reInlineCode = regexp.MustCompile("`[^`]*`")
	reHTMLTags   = regexp.MustCompile(`<[^>]*>`)
	reMdImages   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	reMdLinks    = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reMdTokens   = regexp.MustCompile("[*_~#>`]+")
	reWhitespace = regexp.MustCompile(`\s+`)
)

// SanitizeExcerpt strips markup from retrieved text so prompts carry plain
// prose only, then truncates to the excerpt budget.
func SanitizeExcerpt(input string) string {
	out := reCodeBlocks.ReplaceAllString(input, " ")
	out = reInlineCode.ReplaceAllString(out, " ")
	out = reHTMLTags.ReplaceAllString(out, " ")
	out = reMdImages.ReplaceAllString(out, " ")
	out = reMdLinks.ReplaceAllString(out, "$1")
	out = reMdTokens.ReplaceAllString(out, " ")
	out = strings.TrimSpace(reWhitespace.ReplaceAllString(out, " "))

	if len(out) <= maxExcerptLength {
		return out
	}
	// Cut on a rune boundary so a multi-byte character is never split.
	cut := maxExcerptLength
	for cut > 0 && !utf8.RuneStart(out[cut]) {
		cut--
	}
	return strings.TrimSpace(out[:cut])
}
