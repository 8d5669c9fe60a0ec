// Package market fetches daily price history and derives simple signals
// from it.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"
	defaultTimeout = 10 * time.Second
	VIXSymbol      = "^VIX"
)

// ErrNoData is returned when a symbol has no recent closes.
var ErrNoData = errors.New("no recent data")

// Bar is one daily close.
type Bar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Client reads the chart endpoint of a Yahoo-compatible quote API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History returns daily closes for symbol over period ("5d", "1mo", ...),
// oldest first. Days without a close are skipped.
func (c *Client) History(ctx context.Context, symbol, period string) ([]Bar, error) {
	q := url.Values{}
	q.Set("range", period)
	q.Set("interval", "1d")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "nova/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting chart for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart for %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("decoding chart for %s: %w", symbol, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("chart for %s: %s", symbol, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	r := chart.Chart.Result[0]
	closes := r.Indicators.Quote[0].Close
	var bars []Bar
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		bars = append(bars, Bar{Date: time.Unix(ts, 0).UTC(), Close: *closes[i]})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	return bars, nil
}

// LastClose returns the most recent close over the past five days.
func (c *Client) LastClose(ctx context.Context, symbol string) (float64, error) {
	bars, err := c.History(ctx, symbol, "5d")
	if err != nil {
		return 0, err
	}
	return bars[len(bars)-1].Close, nil
}

// Closes extracts the close prices from bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Calmness scores the latest VIX close with VIXCalmness. It returns the
// neutral score 50 when the index cannot be fetched.
func (c *Client) Calmness(ctx context.Context) float64 {
	vix, err := c.LastClose(ctx, VIXSymbol)
	if err != nil {
		return neutralScore
	}
	return VIXCalmness(vix)
}
