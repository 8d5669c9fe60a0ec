package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/nova/internal/agent"
	"github.com/kalambet/nova/internal/api"
	"github.com/kalambet/nova/internal/assistant"
	"github.com/kalambet/nova/internal/config"
	"github.com/kalambet/nova/internal/session"
	"github.com/kalambet/nova/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
	Accept string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
			Accept: r.Header.Get("Accept"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

// liveClient runs the real HTTP API over an in-memory store.
func liveClient(t *testing.T) *apiClient {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mgr := session.NewManager(store)
	h := api.NewHandler(api.Deps{
		Store:     store,
		Sessions:  mgr,
		Agent:     agent.New(agent.WithRecorder(mgr)),
		Assistant: assistant.New(),
		Token:     "live-token",
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &apiClient{baseURL: srv.URL, token: "live-token", httpClient: srv.Client()}
}

func TestEnsureSession_KeepsGivenID(t *testing.T) {
	ts := newTestServer(t, nil)

	id, err := ensureSession(ctx, ts.client(), "abc", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc" {
		t.Errorf("id = %q, want abc", id)
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestEnsureSession_CreatesWithTruncatedTitle(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/sessions": `{"id":"s-1","title":"x","created_at":"2025-01-01T00:00:00Z","turns":0}`,
	})

	text := strings.Repeat("a", 60)
	id, err := ensureSession(ctx, ts.client(), "", text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "s-1" {
		t.Errorf("id = %q, want s-1", id)
	}

	var body api.CreateSessionRequest
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	want := strings.Repeat("a", sessionTitleLen) + "..."
	if body.Title != want {
		t.Errorf("title = %q, want %q", body.Title, want)
	}
}

func TestAskFlow_LiveAPI(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	client := liveClient(t)
	text := "Can you create a report and email me at x@y.com by 5:00pm?"

	id, err := ensureSession(ctx, client, "", text)
	if err != nil {
		t.Fatalf("ensureSession: %v", err)
	}
	resp, err := client.post(ctx, "/v1/sessions/"+id+"/process", api.TextRequest{Text: text})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var result api.ProcessResponse
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var buf bytes.Buffer
	renderResult(&buf, result.SessionID, result.Result)
	out := buf.String()

	for _, want := range []string{
		"Session: " + id,
		"Intent: create",
		"Goal: Generate new content",
		"Confidence: 0.90",
		"1. understand_requirements",
		"emails=[x@y.com]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestChatFlow_LiveAPI(t *testing.T) {
	client := liveClient(t)

	resp, err := client.post(ctx, "/v1/sessions", api.CreateSessionRequest{Title: "chat"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var s api.SessionView
	if err := decodeJSON(resp, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, err = client.post(ctx, "/v1/sessions/"+s.ID+"/chat", api.ChatRequest{Message: "check my inbox"})
	if err != nil {
		t.Fatalf("post chat: %v", err)
	}
	var reply api.ChatResponse
	if err := decodeJSON(resp, &reply); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if reply.Handler != assistant.HandlerInbox {
		t.Errorf("handler = %q, want %q", reply.Handler, assistant.HandlerInbox)
	}

	resp, err = client.get(ctx, "/v1/sessions/"+s.ID+"/history")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	var turns []api.ChatTurnView
	if err := decodeJSON(resp, &turns); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(turns))
	}

	old := noColor
	noColor = true
	defer func() { noColor = old }()
	var buf bytes.Buffer
	renderHistory(&buf, turns)
	if !strings.Contains(buf.String(), "user") || !strings.Contains(buf.String(), "assistant (inbox)") {
		t.Errorf("unexpected history rendering:\n%s", buf.String())
	}
}

func TestBriefText_LiveAPI(t *testing.T) {
	client := liveClient(t)

	text, err := client.getText(ctx, "/v1/brief?tickers=AAPL")
	if err != nil {
		t.Fatalf("getText: %v", err)
	}
	if !strings.HasPrefix(text, "Daily Market Brief\n") {
		t.Errorf("brief = %q, want plain text brief", text)
	}
	if !strings.Contains(text, "AAPL: ") {
		t.Errorf("brief missing ticker line:\n%s", text)
	}
}

func TestGetText_SendsAcceptAndReportsErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := ts.client().getText(ctx, "/v1/brief")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want 404 error", err)
	}
	if ts.requests[0].Accept != "text/plain" {
		t.Errorf("Accept = %q, want text/plain", ts.requests[0].Accept)
	}
}

func TestFormatEntities(t *testing.T) {
	got := formatEntities(agent.Entities{
		"times": {"3pm"},
		"dates": {"tomorrow", "friday"},
	})
	want := "dates=[tomorrow, friday] times=[3pm]"
	if got != want {
		t.Errorf("formatEntities = %q, want %q", got, want)
	}
	if formatEntities(nil) != "none" {
		t.Errorf("formatEntities(nil) = %q, want none", formatEntities(nil))
	}
}

func TestRenderSessions(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	var buf bytes.Buffer
	renderSessions(&buf, []api.SessionView{
		{ID: "s-1", Title: "", CreatedAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC), Turns: 2},
	})
	out := buf.String()
	if !strings.Contains(out, "s-1  2025-01-02 03:04    2 turns  (untitled)") {
		t.Errorf("unexpected rendering: %q", out)
	}
}

func TestRenderSnapshot(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	var buf bytes.Buffer
	renderSnapshot(&buf, assistant.Snapshot{City: "Boston", Weather: "Unavailable", Macro: "m", Time: "t"})
	if !strings.Contains(buf.String(), "Weather in Boston: Unavailable") {
		t.Errorf("unexpected rendering: %q", buf.String())
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPrintHelpers(t *testing.T) {
	oldColor, oldOut := noColor, messages
	defer func() { noColor, messages = oldColor, oldOut }()

	var buf bytes.Buffer
	messages = &buf
	noColor = true

	printSuccess("Queued mail job %s", "j-1")
	printStatus("Status", "%s", "pending")
	printError("boom")

	want := "✓ Queued mail job j-1\n  Status: pending\n✗ boom\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/v1/sessions")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestMailSend_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"mail", "send", "--to", "alice@example.com"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing body")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestWaitForCode(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	base := "http://" + ln.Addr().String() + "/callback"

	done := make(chan struct{})
	var code string
	var waitErr error
	go func() {
		defer close(done)
		code, waitErr = waitForCode(ctx, ln, "st-1")
	}()

	resp, err := http.Get(base + "?state=wrong&code=x")
	if err != nil {
		t.Fatalf("callback with wrong state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("wrong state status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(base + "?state=st-1&code=auth-code")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	<-done
	if waitErr != nil {
		t.Fatalf("waitForCode: %v", waitErr)
	}
	if code != "auth-code" {
		t.Errorf("code = %q, want auth-code", code)
	}
}

func TestWaitForCode_Denied(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	base := "http://" + ln.Addr().String() + "/callback"

	done := make(chan error, 1)
	go func() {
		_, err := waitForCode(ctx, ln, "st")
		done <- err
	}()

	resp, err := http.Get(base + "?state=st&error=access_denied")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	resp.Body.Close()

	if err := <-done; err == nil || !strings.Contains(err.Error(), "access_denied") {
		t.Errorf("err = %v, want access_denied", err)
	}
}

func TestWaitForCode_Timeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	if _, err := waitForCode(tctx, ln, "st"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestGoogleMode(t *testing.T) {
	tests := []struct {
		name string
		g    config.GoogleConfig
		want assistant.GoogleMode
	}{
		{"no client", config.GoogleConfig{}, assistant.GoogleDemo},
		{"no secret", config.GoogleConfig{ClientID: "id", RefreshToken: "r"}, assistant.GoogleLoggedOut},
		{"no token", config.GoogleConfig{ClientID: "id", ClientSecret: "s"}, assistant.GoogleLoggedOut},
		{"linked", config.GoogleConfig{ClientID: "id", ClientSecret: "s", RefreshToken: "r"}, assistant.GoogleLive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg config.Config
			cfg.Google = tt.g
			if got := googleMode(cfg); got != tt.want {
				t.Errorf("googleMode = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTablesPathAndLoad(t *testing.T) {
	dir := t.TempDir()
	var cfg config.Config
	cfg.Storage.DataDir = dir

	path := tablesPath(cfg)
	if path != filepath.Join(dir, "tables.yaml") {
		t.Errorf("tablesPath = %q", path)
	}

	tables, err := loadTables(path)
	if err != nil {
		t.Fatalf("loadTables on missing file: %v", err)
	}
	if len(tables.Intents) != len(agent.DefaultTables().Intents) {
		t.Error("missing file should yield the built-in tables")
	}

	if err := os.WriteFile(path, []byte("defaults:\n  goal: \"\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadTables(path); err == nil {
		t.Error("expected validation error for empty default goal")
	}

	cfg.Agent.TablesPath = "/etc/nova/tables.yaml"
	if tablesPath(cfg) != "/etc/nova/tables.yaml" {
		t.Errorf("tablesPath ignored configured path: %q", tablesPath(cfg))
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
