package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/nova/internal/google"
	"github.com/kalambet/nova/internal/llm"
)

const loginRequired = "You must log in with Google first. Run `nova google login`."

const demoTimeLayout = "2006-01-02 15:04"

// DemoInbox is shown when no Google client is configured.
var DemoInbox = []google.Message{
	{From: "Professor Li", Subject: "Updated Exam Schedule", Snippet: "Hi everyone, the midterm has been moved to next Tuesday at 3:30pm..."},
	{From: "Registrar", Subject: "Registration Confirmed", Snippet: "Your registration for Spring 2026 has been successfully processed..."},
	{From: "Amazon", Subject: "Your Order Has Shipped", Snippet: "Your package with the noise-cancelling headphones is on the way..."},
	{From: "Career Services", Subject: "Networking Event Reminder", Snippet: "Don’t forget the Analytics & AI Career Night tomorrow at 6pm..."},
	{From: "Billing", Subject: "Statement Available", Snippet: "Your latest account statement is now available in the student portal..."},
}

// DemoAgenda is shown when no Google client is configured.
var DemoAgenda = []google.Event{
	demoEvent("2025-11-18 15:30", "2025-11-18 16:45", "CS Class – Agentic AI Lecture", "Room 204, CIS Lab"),
	demoEvent("2025-11-19 09:00", "2025-11-19 10:00", "Team Meeting – Project NOVA", "Zoom"),
	demoEvent("2025-11-20 18:00", "2025-11-20 20:00", "Analytics & AI Networking Night", "Student Center"),
	demoEvent("2025-11-22 14:00", "2025-11-22 16:00", "Exam Review Session", "Library 3rd Floor"),
}

func demoEvent(start, end, title, location string) google.Event {
	s, _ := time.Parse(demoTimeLayout, start)
	e, _ := time.Parse(demoTimeLayout, end)
	return google.Event{Title: title, Start: s, End: e, Location: location}
}

func (a *Assistant) inbox(ctx context.Context, _ string, _ []llm.Message) string {
	switch a.google {
	case GoogleLoggedOut:
		return loginRequired
	case GoogleLive:
		if a.mailbox == nil {
			return "Inbox unavailable"
		}
		msgs, err := a.mailbox.Recent(ctx, inboxSize)
		if err != nil {
			return "Inbox unavailable"
		}
		return RenderInbox(msgs, "📬 **Recent emails**")
	default:
		return RenderInbox(DemoInbox, "📬 **Recent emails (demo)**")
	}
}

func (a *Assistant) calendar(ctx context.Context, _ string, _ []llm.Message) string {
	switch a.google {
	case GoogleLoggedOut:
		return loginRequired
	case GoogleLive:
		if a.agenda == nil {
			return "Calendar unavailable"
		}
		events, err := a.agenda.Upcoming(ctx, agendaSize)
		if err != nil {
			return "Calendar unavailable"
		}
		return RenderAgenda(events, "📅 **Upcoming events**")
	default:
		return RenderAgenda(DemoAgenda, "📅 **Upcoming events (demo)**")
	}
}

// RenderInbox formats msgs as a markdown list under title.
func RenderInbox(msgs []google.Message, title string) string {
	if len(msgs) == 0 {
		return "📭 Inbox is empty."
	}
	lines := []string{title + "\n"}
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("- **From:** %s  \n  **Subject:** %s  \n  _%s_\n", m.From, m.Subject, m.Snippet))
	}
	return strings.Join(lines, "\n")
}

// RenderAgenda formats events as a markdown list under title.
func RenderAgenda(events []google.Event, title string) string {
	if len(events) == 0 {
		return "📅 No upcoming events."
	}
	lines := []string{title + "\n"}
	for _, ev := range events {
		line := fmt.Sprintf("- **%s → %s**  \n  **%s**  \n", ev.Start.Format(demoTimeLayout), ev.End.Format(demoTimeLayout), ev.Title)
		if ev.Location != "" {
			line += fmt.Sprintf("  _%s_\n", ev.Location)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
