// Package macro reads the latest observations of economic series from a
// FRED-compatible API.
package macro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL = "https://api.stlouisfed.org"
	defaultTimeout = 10 * time.Second
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("macro API key not configured")

// Series names an economic series and how to label it.
type Series struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// DefaultSeries are shown on the dashboard.
var DefaultSeries = []Series{
	{ID: "FPCPITOTLZGUSA", Label: "Inflation"},
	{ID: "UNRATE", Label: "Unemployment"},
	{ID: "FEDFUNDS", Label: "Fed Funds"},
}

// StaticSnapshot is shown when no API key is configured.
const StaticSnapshot = "Inflation 3.1% • Unemployment 3.8% • Fed Funds 5.33%"

// Observation is one dated value of a series.
type Observation struct {
	Series Series    `json:"series"`
	Date   time.Time `json:"date"`
	Value  float64   `json:"value"`
}

// Client queries series observations.
type Client struct {
	apiKey     string
	baseURL    string
	series     []Series
	httpClient *http.Client
}

// NewClient creates a client for the given series (DefaultSeries when empty).
func NewClient(apiKey, baseURL string, series []Series) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if len(series) == 0 {
		series = DefaultSeries
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		series:     series,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
	ErrorMessage string `json:"error_message"`
}

// Latest returns the most recent numeric observation of s. Missing values
// ("." in FRED responses) are skipped.
func (c *Client) Latest(ctx context.Context, s Series) (Observation, error) {
	if c.apiKey == "" {
		return Observation{}, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("series_id", s.ID)
	q.Set("api_key", c.apiKey)
	q.Set("file_type", "json")
	q.Set("sort_order", "desc")
	q.Set("limit", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fred/series/observations?"+q.Encode(), nil)
	if err != nil {
		return Observation{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Observation{}, fmt.Errorf("requesting %s: %w", s.ID, err)
	}
	defer resp.Body.Close()

	var body observationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Observation{}, fmt.Errorf("decoding %s: %w", s.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Observation{}, fmt.Errorf("%s: unexpected status %d: %s", s.ID, resp.StatusCode, body.ErrorMessage)
	}

	for _, o := range body.Observations {
		v, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		d, err := time.Parse(time.DateOnly, o.Date)
		if err != nil {
			return Observation{}, fmt.Errorf("%s: parsing date %q: %w", s.ID, o.Date, err)
		}
		return Observation{Series: s, Date: d, Value: v}, nil
	}
	return Observation{}, fmt.Errorf("%s: no observations", s.ID)
}

// Snapshot fetches every configured series concurrently, in series order.
func (c *Client) Snapshot(ctx context.Context) ([]Observation, error) {
	out := make([]Observation, len(c.series))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range c.series {
		g.Go(func() error {
			o, err := c.Latest(gctx, s)
			if err != nil {
				return err
			}
			out[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Line renders observations as "Inflation 3.1% • Unemployment 3.8% • ...".
// Without an API key it returns StaticSnapshot.
func (c *Client) Line(ctx context.Context) (string, error) {
	if !c.Configured() {
		return StaticSnapshot, nil
	}
	obs, err := c.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return FormatLine(obs), nil
}

// FormatLine joins observations as "<label> <value>%", values rounded to
// two decimals.
func FormatLine(obs []Observation) string {
	parts := make([]string, len(obs))
	for i, o := range obs {
		parts[i] = fmt.Sprintf("%s %s%%", o.Series.Label, strconv.FormatFloat(math.Round(o.Value*100)/100, 'f', -1, 64))
	}
	return strings.Join(parts, " • ")
}
