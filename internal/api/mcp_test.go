package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/nova/internal/agent"
	"github.com/kalambet/nova/internal/outbox"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestDeps(t)
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_Process(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := mcpProcess(deps)

	result, err := handler(context.Background(), makeCallToolRequest("process", map[string]interface{}{
		"text": "hi",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var first ProcessResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &first); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if first.SessionID == "" {
		t.Fatal("no session id in result")
	}
	if first.Perception.Intent != agent.IntentConversation || first.Reasoning.Confidence != 0.7 {
		t.Errorf("result = %+v", first)
	}

	// Continuing the session carries the conversation forward.
	result, _ = handler(context.Background(), makeCallToolRequest("process", map[string]interface{}{
		"text":       "and again",
		"session_id": first.SessionID,
	}))
	if !strings.Contains(toolText(t, result), "Based on our conversation so far,") {
		t.Errorf("second turn = %s", toolText(t, result))
	}
}

func TestMCPTool_ProcessErrors(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := mcpProcess(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("process", map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error for missing text")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("process", map[string]interface{}{
		"text":       "hi",
		"session_id": "missing",
	}))
	if !result.IsError {
		t.Error("expected error for unknown session")
	}
}

func TestMCPTool_Perceive(t *testing.T) {
	deps, store := newTestDeps(t)

	result, err := mcpPerceive(deps)(context.Background(), makeCallToolRequest("perceive", map[string]interface{}{
		"text": "Call me at 3:30pm on 4/5/2025, email me at a@b.com",
	}))
	if err != nil || result.IsError {
		t.Fatalf("perceive failed: %v %v", err, result)
	}
	var resp PerceiveResponse
	json.Unmarshal([]byte(toolText(t, result)), &resp)
	for _, cat := range []string{agent.EntityNumbers, agent.EntityDates, agent.EntityTimes, agent.EntityEmails} {
		if len(resp.Perception.Entities[cat]) == 0 {
			t.Errorf("missing %s entities: %v", cat, resp.Perception.Entities)
		}
	}

	sessions, _ := store.ListSessions(10, 0)
	if len(sessions) != 0 {
		t.Errorf("perceive created %d sessions", len(sessions))
	}
}

func TestMCPTool_Chat(t *testing.T) {
	deps, store := newTestDeps(t)

	result, err := mcpChat(deps)(context.Background(), makeCallToolRequest("chat", map[string]interface{}{
		"message": "show my schedule",
	}))
	if err != nil || result.IsError {
		t.Fatalf("chat failed: %v %v", err, result)
	}
	text := toolText(t, result)
	if !strings.Contains(text, "Exam Review Session") {
		t.Errorf("reply = %q", text)
	}

	sessions, _ := store.ListSessions(10, 0)
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	turns, _ := store.ListChatTurns(sessions[0].ID, 0)
	if len(turns) != 2 {
		t.Errorf("got %d chat turns, want 2", len(turns))
	}
}

func TestMCPTool_SendMail(t *testing.T) {
	deps, store := newTestDeps(t)
	handler := mcpSendMail(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("send_mail", map[string]interface{}{
		"to":   "ann@example.com",
		"body": "hello",
	}))
	if result.IsError {
		t.Fatalf("send_mail failed: %s", toolText(t, result))
	}
	id := strings.TrimPrefix(toolText(t, result), "Queued mail job ")
	job, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob(%q): %v", id, err)
	}
	if job.Type != outbox.JobSend {
		t.Errorf("Type = %q, want %q", job.Type, outbox.JobSend)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("send_mail", map[string]interface{}{
		"to":   "broken",
		"body": "hello",
	}))
	if !result.IsError {
		t.Error("expected error for invalid recipient")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("send_mail", map[string]interface{}{
		"to": "ann@example.com",
	}))
	if !result.IsError {
		t.Error("expected error for missing body")
	}
}

func TestMCPTool_CreateEvent(t *testing.T) {
	deps, _ := newTestDeps(t)
	cal := &fakeCalendar{}
	deps.Calendar = cal
	handler := mcpCreateEvent(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("create_event", map[string]interface{}{
		"title":    "Team Meeting",
		"start":    "2025-11-19T09:00:00-05:00",
		"end":      "2025-11-19T10:00:00-05:00",
		"location": "Zoom",
	}))
	if result.IsError {
		t.Fatalf("create_event failed: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), `"id":"evt-1"`) {
		t.Errorf("result = %s", toolText(t, result))
	}
	if len(cal.created) != 1 || cal.created[0].Location != "Zoom" {
		t.Errorf("created = %+v", cal.created)
	}

	for name, args := range map[string]map[string]interface{}{
		"missing end": {"title": "x", "start": "2025-11-19T09:00:00Z"},
		"bad start":   {"title": "x", "start": "tomorrow", "end": "2025-11-19T10:00:00Z"},
		"reversed":    {"title": "x", "start": "2025-11-19T10:00:00Z", "end": "2025-11-19T09:00:00Z"},
	} {
		result, _ := handler(context.Background(), makeCallToolRequest("create_event", args))
		if !result.IsError {
			t.Errorf("%s: expected error", name)
		}
	}
	if len(cal.created) != 1 {
		t.Errorf("invalid events reached the calendar: %+v", cal.created)
	}

	deps.Calendar = nil
	result, _ = mcpCreateEvent(deps)(context.Background(), makeCallToolRequest("create_event", map[string]interface{}{
		"title": "x",
		"start": "2025-11-19T09:00:00Z",
		"end":   "2025-11-19T10:00:00Z",
	}))
	if !result.IsError || !strings.Contains(toolText(t, result), "calendar unavailable") {
		t.Errorf("without calendar: %+v", result)
	}
}

func TestMCPTool_Brief(t *testing.T) {
	deps, _ := newTestDeps(t)

	result, _ := mcpBrief(deps)(context.Background(), makeCallToolRequest("brief", map[string]interface{}{
		"tickers": "NVDA",
	}))
	text := toolText(t, result)
	if !strings.Contains(text, "Daily Market Brief") || !strings.Contains(text, "NVDA:") {
		t.Errorf("brief = %q", text)
	}
}

func TestMCPResource_Sessions(t *testing.T) {
	deps, _ := newTestDeps(t)
	info, s, err := deps.Sessions.Create("research")
	if err != nil {
		t.Fatal(err)
	}
	deps.Agent.Process(s, "find the quarterly numbers")

	contents, err := mcpResourceSessions(deps)(context.Background(), makeReadResourceRequest("nova://sessions"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Turns int    `json:"turns"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("decoding resource: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != info.ID || summaries[0].Turns != 1 {
		t.Errorf("summaries = %+v", summaries)
	}
}
