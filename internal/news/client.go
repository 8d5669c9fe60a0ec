// Package news fetches recent financial headlines from credible outlets.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/nova/internal/htmltext"
)

const (
	DefaultBaseURL = "https://newsapi.org"
	DefaultTopic   = "markets"
	maxHeadlines   = 8
	defaultTimeout = 10 * time.Second
)

// Domains headlines are restricted to.
var credibleDomains = []string{
	"bloomberg.com",
	"reuters.com",
	"wsj.com",
	"cnbc.com",
	"marketwatch.com",
}

// Headline is a news title and the outlet that published it.
type Headline struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

// DemoHeadlines are returned when no API key is configured.
var DemoHeadlines = []Headline{
	{Title: "Stocks mixed as investors eye inflation data", Source: "Reuters"},
	{Title: "Tech gains offset energy losses", Source: "Bloomberg"},
	{Title: "Fed policy hints support cautious optimism", Source: "CNBC"},
}

// FailureHeadline stands in for the list when the provider cannot be reached.
var FailureHeadline = Headline{Title: "Unable to fetch latest headlines.", Source: "System"}

// Client queries the NewsAPI "everything" endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. Without apiKey, Headlines returns DemoHeadlines.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type everythingResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title  string `json:"title"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// Headlines returns up to eight recent headlines for topic. It never fails:
// without a key it returns DemoHeadlines, and on any error it returns a
// single FailureHeadline.
func (c *Client) Headlines(ctx context.Context, topic string) []Headline {
	if c.apiKey == "" {
		return append([]Headline(nil), DemoHeadlines...)
	}
	hs, err := c.fetch(ctx, topic)
	if err != nil {
		slog.Warn("fetching headlines failed", "topic", topic, "error", err)
		return []Headline{FailureHeadline}
	}
	return hs
}

func (c *Client) fetch(ctx context.Context, topic string) ([]Headline, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	q := url.Values{}
	q.Set("q", topic)
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", fmt.Sprint(maxHeadlines))
	q.Set("domains", strings.Join(credibleDomains, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting headlines: %w", err)
	}
	defer resp.Body.Close()

	var body everythingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding headlines: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body.Message)
	}

	out := make([]Headline, 0, maxHeadlines)
	for _, a := range body.Articles {
		if len(out) == maxHeadlines {
			break
		}
		out = append(out, Headline{Title: htmltext.Text(a.Title), Source: a.Source.Name})
	}
	return out, nil
}

// Titles returns just the titles of hs.
func Titles(hs []Headline) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Title
	}
	return out
}
