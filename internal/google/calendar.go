package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Event is a calendar entry. All-day events have zero-time Start/End in UTC.
type Event struct {
	ID       string    `json:"id,omitempty"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location,omitempty"`
}

// Validate checks that ev can be created.
func (ev Event) Validate() error {
	if strings.TrimSpace(ev.Title) == "" {
		return errors.New("event title is required")
	}
	if !ev.End.After(ev.Start) {
		return errors.New("event must end after it starts")
	}
	return nil
}

// Calendar reads and writes the primary calendar.
type Calendar struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

func (c *Calendar) endpoint(path string) string {
	return c.baseURL + "/calendar/v3/calendars/primary" + path
}

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

func (t eventTime) parse() (time.Time, error) {
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	return time.Parse(time.DateOnly, t.Date)
}

type apiEvent struct {
	ID       string    `json:"id,omitempty"`
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	Start    eventTime `json:"start"`
	End      eventTime `json:"end"`
}

func (e apiEvent) toEvent() (Event, error) {
	start, err := e.Start.parse()
	if err != nil {
		return Event{}, fmt.Errorf("event %s start: %w", e.ID, err)
	}
	end, err := e.End.parse()
	if err != nil {
		return Event{}, fmt.Errorf("event %s end: %w", e.ID, err)
	}
	return Event{ID: e.ID, Title: e.Summary, Start: start, End: end, Location: e.Location}, nil
}

// Upcoming returns the next n events starting from now, in start order.
func (c *Calendar) Upcoming(ctx context.Context, n int) ([]Event, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	q := url.Values{}
	q.Set("timeMin", now().UTC().Format(time.RFC3339))
	q.Set("maxResults", fmt.Sprint(n))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	var resp struct {
		Items []apiEvent `json:"items"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodGet, c.endpoint("/events?"+q.Encode()), nil, &resp); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	out := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, err := item.toEvent()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// CreateEvent adds ev to the primary calendar and returns it with its id.
func (c *Calendar) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}

	in := apiEvent{
		Summary:  ev.Title,
		Location: ev.Location,
		Start:    eventTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:      eventTime{DateTime: ev.End.Format(time.RFC3339)},
	}
	var out apiEvent
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.endpoint("/events"), in, &out); err != nil {
		return Event{}, fmt.Errorf("creating event: %w", err)
	}
	return out.toEvent()
}
