package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/nova/internal/api"
	"github.com/kalambet/nova/internal/google"
)

// eventTimeLayouts are accepted by --start, tried in order. Layouts without
// a zone are read in local time.
var eventTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

func parseEventTime(s string) (time.Time, error) {
	for _, layout := range eventTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use RFC 3339 or \"YYYY-MM-DD HH:MM\")", s)
}

func eventRequest(title, start string, duration time.Duration, location string) (api.EventRequest, error) {
	if title == "" || start == "" {
		return api.EventRequest{}, errors.New("--title and --start are required")
	}
	if duration <= 0 {
		return api.EventRequest{}, errors.New("--duration must be positive")
	}
	from, err := parseEventTime(start)
	if err != nil {
		return api.EventRequest{}, err
	}
	return api.EventRequest{Title: title, Start: from, End: from.Add(duration), Location: location}, nil
}

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Manage events on the linked Google Calendar",
}

var calendarAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a calendar event",
	Long: `Create an event on the primary calendar of the linked Google account.

Examples:
  nova calendar add --title "Exam Review" --start "2025-11-22 14:00" --duration 2h
  nova calendar add --title "Standup" --start 2025-11-19T09:00:00-05:00 --location Zoom`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		start, _ := cmd.Flags().GetString("start")
		duration, _ := cmd.Flags().GetDuration("duration")
		location, _ := cmd.Flags().GetString("location")

		req, err := eventRequest(title, start, duration, location)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/calendar/events", req)
		if err != nil {
			return err
		}
		var ev google.Event
		if err := decodeJSON(resp, &ev); err != nil {
			return err
		}

		printSuccess("Created %q", ev.Title)
		printStatus("When", "%s → %s", ev.Start.Local().Format("2006-01-02 15:04"), ev.End.Local().Format("15:04"))
		if ev.ID != "" {
			printStatus("ID", "%s", ev.ID)
		}
		return nil
	},
}

func init() {
	calendarAddCmd.Flags().String("title", "", "event title")
	calendarAddCmd.Flags().String("start", "", "start time")
	calendarAddCmd.Flags().Duration("duration", time.Hour, "event length")
	calendarAddCmd.Flags().String("location", "", "optional location")
	calendarCmd.AddCommand(calendarAddCmd)
}
