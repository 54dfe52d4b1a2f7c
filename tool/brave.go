package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// BraveSearch queries the Brave web search API. It backs the research
// stage when a Brave key is configured.
type BraveSearch struct {
	APIKey  string
	BaseURL string
	Count   int
	Country string
	Lang    string
	client  *http.Client
}

// BraveOption configures a BraveSearch.
type BraveOption func(*BraveSearch)

// WithBraveBaseURL points the tool at another endpoint, mostly for tests.
func WithBraveBaseURL(baseURL string) BraveOption {
	return func(b *BraveSearch) {
		b.BaseURL = baseURL
	}
}

// WithBraveCount bounds the result count; values are clamped to 1..20.
func WithBraveCount(count int) BraveOption {
	return func(b *BraveSearch) {
		b.Count = min(max(count, 1), 20)
	}
}

// WithBraveCountry biases results toward a country code such as "CN".
func WithBraveCountry(country string) BraveOption {
	return func(b *BraveSearch) {
		b.Country = country
	}
}

// WithBraveLang sets the search_lang parameter.
func WithBraveLang(lang string) BraveOption {
	return func(b *BraveSearch) {
		b.Lang = lang
	}
}

// WithBraveHTTPClient replaces http.DefaultClient.
func WithBraveHTTPClient(c *http.Client) BraveOption {
	return func(b *BraveSearch) {
		b.client = c
	}
}

// NewBraveSearch returns a Brave search tool. An empty apiKey falls back to
// BRAVE_API_KEY.
func NewBraveSearch(apiKey string, opts ...BraveOption) (*BraveSearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("BRAVE_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("brave search: no api key (set BRAVE_API_KEY)")
	}

	b := &BraveSearch{
		APIKey:  apiKey,
		BaseURL: "https://api.search.brave.com/res/v1/web/search",
		Count:   10,
		Country: "US",
		Lang:    "en",
		client:  http.DefaultClient,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

func (b *BraveSearch) Name() string {
	return "Brave_Search"
}

func (b *BraveSearch) Description() string {
	return "Searches the web with Brave and returns titles, links and snippets. " +
		"Input is a plain search query."
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Call runs one query and formats the web results as a numbered list.
func (b *BraveSearch) Call(ctx context.Context, input string) (string, error) {
	params := url.Values{"q": {input}, "count": {strconv.Itoa(b.Count)}}
	if b.Country != "" {
		params.Set("country", b.Country)
	}
	if b.Lang != "" {
		params.Set("search_lang", b.Lang)
	}

	reqURL := fmt.Sprintf("%s?%s", b.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("brave search: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("brave search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Service: "brave api", StatusCode: resp.StatusCode}
	}

	var result braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("brave search: decode response: %w", err)
	}

	// descriptions carry <strong> highlighting
	policy := bluemonday.StrictPolicy()
	var sb strings.Builder
	for i, item := range result.Web.Results {
		fmt.Fprintf(&sb, "%d. Title: %s\nURL: %s\nDescription: %s\n\n",
			i+1, item.Title, item.URL, html.UnescapeString(policy.Sanitize(item.Description)))
	}

	if sb.Len() == 0 {
		return "No results found", nil
	}

	return sb.String(), nil
}
