package tool

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

const (
	defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	defaultUserAgent     = "Mozilla/5.0 (compatible; crewgraph/1.0)"
)

// DuckDuckGo searches the web through DuckDuckGo's HTML endpoint. It needs
// no API key.
type DuckDuckGo struct {
	BaseURL    string
	MaxResults int
	UserAgent  string
	client     *http.Client
	policy     *bluemonday.Policy
}

// DuckDuckGoOption configures DuckDuckGo.
type DuckDuckGoOption func(*DuckDuckGo)

// WithDuckDuckGoBaseURL overrides the endpoint.
func WithDuckDuckGoBaseURL(baseURL string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.BaseURL = baseURL
	}
}

// WithDuckDuckGoMaxResults limits the number of results (default 5).
func WithDuckDuckGoMaxResults(n int) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		if n > 0 {
			d.MaxResults = n
		}
	}
}

// WithDuckDuckGoHTTPClient sets the HTTP client.
func WithDuckDuckGoHTTPClient(c *http.Client) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.client = c
	}
}

// NewDuckDuckGo creates a DuckDuckGo search tool.
func NewDuckDuckGo(opts ...DuckDuckGoOption) *DuckDuckGo {
	d := &DuckDuckGo{
		BaseURL:    defaultDuckDuckGoURL,
		MaxResults: 5,
		UserAgent:  defaultUserAgent,
		client:     http.DefaultClient,
		policy:     bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the name of the tool.
func (d *DuckDuckGo) Name() string {
	return "DuckDuckGo_Search"
}

// Description returns the description of the tool.
func (d *DuckDuckGo) Description() string {
	return "A web search engine. Useful for finding current information. Input should be a search query."
}

// Call executes the search and formats the results as numbered entries.
func (d *DuckDuckGo) Call(ctx context.Context, input string) (string, error) {
	form := url.Values{}
	form.Set("q", input)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", d.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Service: "duckduckgo", StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse results page: %w", err)
	}

	var sb strings.Builder
	n := 0
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return true
		}
		href, _ := link.Attr("href")
		snippetHTML, _ := s.Find(".result__snippet").First().Html()

		n++
		fmt.Fprintf(&sb, "%d. Title: %s\nURL: %s\nDescription: %s\n\n", n, title, resultURL(href), d.plain(snippetHTML))
		return n < d.MaxResults
	})

	if sb.Len() == 0 {
		return "No results found", nil
	}
	return sb.String(), nil
}

func (d *DuckDuckGo) plain(fragment string) string {
	text := html.UnescapeString(d.policy.Sanitize(fragment))
	return strings.Join(strings.Fields(text), " ")
}

// resultURL unwraps DuckDuckGo's redirect links.
func resultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
