package main

import (
	"strings"
	"testing"
	"time"

	"github.com/kalambet/nova/internal/api"
)

func TestEventRequest(t *testing.T) {
	req, err := eventRequest("Exam Review", "2025-11-22T14:00:00Z", 2*time.Hour, "Library")
	if err != nil {
		t.Fatalf("eventRequest: %v", err)
	}
	want := api.EventRequest{
		Title:    "Exam Review",
		Start:    time.Date(2025, 11, 22, 14, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 11, 22, 16, 0, 0, 0, time.UTC),
		Location: "Library",
	}
	if req.Title != want.Title || req.Location != want.Location || !req.Start.Equal(want.Start) || !req.End.Equal(want.End) {
		t.Errorf("eventRequest = %+v, want %+v", req, want)
	}

	local, err := eventRequest("Standup", "2025-11-19 09:00", 15*time.Minute, "")
	if err != nil {
		t.Fatalf("eventRequest(local): %v", err)
	}
	if local.Start.Location() != time.Local || local.Start.Hour() != 9 {
		t.Errorf("local start = %v, want 09:00 local", local.Start)
	}
}

func TestEventRequest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		start    string
		duration time.Duration
		want     string
	}{
		{"no title", "", "2025-11-19 09:00", time.Hour, "required"},
		{"no start", "x", "", time.Hour, "required"},
		{"bad start", "x", "next tuesday", time.Hour, "invalid time"},
		{"zero duration", "x", "2025-11-19 09:00", 0, "positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eventRequest(tt.title, tt.start, tt.duration, "")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestCalendarAdd_NoLinkedAccount(t *testing.T) {
	client := liveClient(t)

	req, err := eventRequest("x", "2025-11-19T09:00:00Z", time.Hour, "")
	if err != nil {
		t.Fatalf("eventRequest: %v", err)
	}
	resp, err := client.post(ctx, "/v1/calendar/events", req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var out map[string]any
	err = decodeJSON(resp, &out)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want 503 error", err)
	}
}
