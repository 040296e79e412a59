// Package wiki provides a MediaWiki API client for category traversal and
// page content retrieval. All outbound requests pass through one shared
// token-bucket rate limiter, so the total request rate stays bounded no
// matter how many workers call into the client.
package wiki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/arvinsingh/fictech-harvester/internal/config"
	"github.com/arvinsingh/fictech-harvester/internal/model"
	"github.com/arvinsingh/fictech-harvester/internal/resilience"
)

// ErrNotFound is returned when a page or category does not exist. It is a
// permanent error: callers must not retry it.
var ErrNotFound = eris.New("wiki: not found")

// API is the surface the crawler consumes. Tests inject deterministic fakes.
type API interface {
	FetchCategoryMembers(ctx context.Context, category string) ([]model.CategoryMember, error)
	FetchPageContent(ctx context.Context, title string) (*model.PageContent, error)
}

// Client talks to a MediaWiki-compatible API endpoint.
type Client struct {
	baseURL    string
	userAgent  string
	maxMembers int
	http       *http.Client
	limiter    *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxMembers caps how many members a single category expansion returns.
func WithMaxMembers(n int) Option {
	return func(c *Client) { c.maxMembers = n }
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.WikiConfig, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		maxMembers: 500,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const pageBatchLimit = 500

type memberList struct {
	Continue map[string]string `json:"continue"`
	Query    struct {
		CategoryMembers []struct {
			Title string `json:"title"`
			NS    int    `json:"ns"`
		} `json:"categorymembers"`
	} `json:"query"`
}

// categoryNamespace is the MediaWiki namespace number for category pages.
const categoryNamespace = 14

// FetchCategoryMembers returns the pages and subcategories of the named
// category, following cmcontinue pagination up to the member cap.
func (c *Client) FetchCategoryMembers(ctx context.Context, category string) ([]model.CategoryMember, error) {
	var members []model.CategoryMember
	cont := map[string]string{}

	for {
		params := url.Values{
			"action":        {"query"},
			"format":        {"json"},
			"formatversion": {"2"},
			"list":          {"categorymembers"},
			"cmtitle":       {"Category:" + category},
			"cmtype":        {"page|subcat"},
			"cmlimit":       {strconv.Itoa(min(c.maxMembers, pageBatchLimit))},
		}
		for k, v := range cont {
			params.Set(k, v)
		}

		var resp memberList
		if err := c.get(ctx, params, &resp); err != nil {
			return nil, eris.Wrapf(err, "wiki: category members %q", category)
		}

		for _, m := range resp.Query.CategoryMembers {
			members = append(members, model.CategoryMember{
				Title:         m.Title,
				IsSubcategory: m.NS == categoryNamespace,
			})
		}

		if len(resp.Continue) == 0 || len(members) >= c.maxMembers {
			break
		}
		cont = resp.Continue
	}

	if len(members) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "category %q has no members", category)
	}
	if len(members) > c.maxMembers {
		members = members[:c.maxMembers]
	}
	return members, nil
}

type pageQuery struct {
	Query struct {
		Pages []struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
			FullURL string `json:"fullurl"`
			Missing bool   `json:"missing"`
		} `json:"pages"`
	} `json:"query"`
}

// FetchPageContent returns the plain-text extract, canonical URL, and first
// paragraph of the titled page.
func (c *Client) FetchPageContent(ctx context.Context, title string) (*model.PageContent, error) {
	params := url.Values{
		"action":          {"query"},
		"format":          {"json"},
		"formatversion":   {"2"},
		"prop":            {"extracts|info"},
		"explaintext":     {"1"},
		"exsectionformat": {"plain"},
		"inprop":          {"url"},
		"titles":          {title},
	}

	var resp pageQuery
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, eris.Wrapf(err, "wiki: page content %q", title)
	}

	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing {
		return nil, eris.Wrapf(ErrNotFound, "page %q", title)
	}

	p := resp.Query.Pages[0]
	return &model.PageContent{
		Title:   p.Title,
		Text:    p.Extract,
		URL:     p.FullURL,
		Summary: firstParagraph(p.Extract),
	}, nil
}

// get performs one rate-limited GET against the API and decodes the JSON
// body into out. Transient HTTP statuses surface as resilience.TransientError
// so callers can retry with backoff.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(eris.Errorf("http %d from %s", resp.StatusCode, c.baseURL), resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("unexpected status %d from %s", resp.StatusCode, c.baseURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func firstParagraph(text string) string {
	for i := 0; i+1 < len(text); i++ {
		if text[i] == '\n' && text[i+1] == '\n' {
			return text[:i]
		}
	}
	return text
}
