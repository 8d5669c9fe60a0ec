// Package weather reads current conditions from a WeatherAPI-compatible
// service.
package weather

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
	DefaultBaseURL = "https://api.weatherapi.com"
	DefaultCity    = "Boston"
	defaultTimeout = 10 * time.Second
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("weather API key not configured")

// Current is the present weather at a location.
type Current struct {
	City      string  `json:"city"`
	TempC     float64 `json:"temp_c"`
	TempF     float64 `json:"temp_f"`
	Condition string  `json:"condition"`
}

// String renders the dashboard form, e.g. "48.2°F • Partly cloudy".
func (c Current) String() string {
	return fmt.Sprintf("%.1f°F • %s", c.TempF, c.Condition)
}

// Client queries the current.json endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	city       string
	httpClient *http.Client
}

// NewClient creates a client reporting on city (DefaultCity when empty).
func NewClient(apiKey, baseURL, city string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if city == "" {
		city = DefaultCity
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		city:       city,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// City returns the configured location.
func (c *Client) City() string {
	return c.city
}

type currentResponse struct {
	Current struct {
		TempC     float64 `json:"temp_c"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Current fetches the weather for the configured city. The Fahrenheit value
// is derived from Celsius.
func (c *Client) Current(ctx context.Context) (Current, error) {
	if c.apiKey == "" {
		return Current{}, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", c.city)
	q.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/current.json?"+q.Encode(), nil)
	if err != nil {
		return Current{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Current{}, fmt.Errorf("requesting weather: %w", err)
	}
	defer resp.Body.Close()

	var body currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Current{}, fmt.Errorf("decoding weather: %w", err)
	}
	if body.Error != nil {
		return Current{}, fmt.Errorf("weather for %s: %s", c.city, body.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return Current{}, fmt.Errorf("weather for %s: unexpected status %d", c.city, resp.StatusCode)
	}

	return Current{
		City:      c.city,
		TempC:     body.Current.TempC,
		TempF:     body.Current.TempC*9/5 + 32,
		Condition: body.Current.Condition.Text,
	}, nil
}
