package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const recentSessions = 20

// NewMCPServer creates an MCP server with all nova tools and resources registered.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"nova",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("NOVA: perceive-reason-act assistant with finance, mail and calendar helpers."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("process",
			mcp.WithDescription("Run one perceive-reason-act turn and return the perception, plan and response."),
			mcp.WithString("text", mcp.Description("User input"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; a new one is created when omitted")),
		),
		mcpProcess(deps),
	)

	s.AddTool(
		mcp.NewTool("perceive",
			mcp.WithDescription("Analyze text for intent, entities and sentiment without storing anything."),
			mcp.WithString("text", mcp.Description("Text to analyze"), mcp.Required()),
		),
		mcpPerceive(deps),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Ask NOVA: stock prices, inbox, calendar, weather, macro figures, news or general questions."),
			mcp.WithString("message", mcp.Description("Chat message"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; a new one is created when omitted")),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("send_mail",
			mcp.WithDescription("Queue an email for delivery through the linked Gmail account."),
			mcp.WithString("to", mcp.Description("Recipient address"), mcp.Required()),
			mcp.WithString("subject", mcp.Description("Subject line")),
			mcp.WithString("body", mcp.Description("Plain text body"), mcp.Required()),
			mcp.WithBoolean("draft", mcp.Description("Save as a draft instead of sending")),
		),
		mcpSendMail(deps),
	)

	s.AddTool(
		mcp.NewTool("create_event",
			mcp.WithDescription("Add an event to the linked Google Calendar."),
			mcp.WithString("title", mcp.Description("Event title"), mcp.Required()),
			mcp.WithString("start", mcp.Description("Start time, RFC 3339 (e.g. 2025-11-19T09:00:00-05:00)"), mcp.Required()),
			mcp.WithString("end", mcp.Description("End time, RFC 3339"), mcp.Required()),
			mcp.WithString("location", mcp.Description("Optional location")),
		),
		mcpCreateEvent(deps),
	)

	s.AddTool(
		mcp.NewTool("brief",
			mcp.WithDescription("Daily market brief: mood, ticker outlooks and top headlines."),
			mcp.WithString("tickers", mcp.Description("Comma separated tickers (default AAPL, MSFT, NVDA, TSLA)")),
		),
		mcpBrief(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"nova://sessions",
			"Recent Sessions",
			mcp.WithResourceDescription("Most recent sessions with their turn counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpProcess(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		res, err := deps.process(req.GetString("session_id", ""), text)
		if err != nil {
			return mcpError(fmt.Sprintf("process failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpPerceive(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		return mcpJSON(deps.perceive(text))
	}
}

func mcpChat(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		resp, err := deps.chat(ctx, req.GetString("session_id", ""), message)
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("%s\n\n(session %s)", resp.Reply, resp.SessionID)), nil
	}
}

func mcpSendMail(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		to, err := req.RequireString("to")
		if err != nil {
			return mcpError("to is required"), nil
		}
		body, err := req.RequireString("body")
		if err != nil {
			return mcpError("body is required"), nil
		}
		mr := MailRequest{
			To:      to,
			Subject: req.GetString("subject", ""),
			Body:    body,
			Draft:   req.GetBool("draft", false),
		}
		id, err := deps.queueMail(mr)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue mail: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued mail job %s", id)), nil
	}
}

func mcpCreateEvent(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		var er EventRequest
		er.Title = title
		er.Location = req.GetString("location", "")
		for _, f := range []struct {
			name string
			dst  *time.Time
		}{{"start", &er.Start}, {"end", &er.End}} {
			v, err := req.RequireString(f.name)
			if err != nil {
				return mcpError(f.name + " is required"), nil
			}
			if *f.dst, err = time.Parse(time.RFC3339, v); err != nil {
				return mcpError(fmt.Sprintf("%s must be RFC 3339: %v", f.name, err)), nil
			}
		}
		ev, err := deps.createEvent(ctx, er)
		if err != nil {
			return mcpError(fmt.Sprintf("create event failed: %v", err)), nil
		}
		return mcpJSON(ev)
	}
}

func mcpBrief(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpText(deps.brief(ctx, req.GetString("tickers", "")).Text()), nil
	}
}

func mcpResourceSessions(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sessions, err := deps.Sessions.List(recentSessions, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}

		type sessionSummary struct {
			ID        string `json:"id"`
			Title     string `json:"title,omitempty"`
			CreatedAt string `json:"created_at"`
			Turns     int    `json:"turns"`
		}
		summaries := make([]sessionSummary, len(sessions))
		for i, s := range sessions {
			summaries[i] = sessionSummary{
				ID:        s.ID,
				Title:     s.Title,
				CreatedAt: s.CreatedAt.Format(time.RFC3339),
				Turns:     s.Turns,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
