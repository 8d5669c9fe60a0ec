package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/nova/internal/agent"
	"github.com/kalambet/nova/internal/assistant"
	"github.com/kalambet/nova/internal/google"
	"github.com/kalambet/nova/internal/llm"
	"github.com/kalambet/nova/internal/outbox"
	"github.com/kalambet/nova/internal/session"
	"github.com/kalambet/nova/internal/storage"
)

// chatHistoryTurns is how many earlier chat turns are replayed to the LLM.
const chatHistoryTurns = 10

// ErrCalendarUnavailable is returned for event creation without a linked
// Google account.
var ErrCalendarUnavailable = errors.New("calendar unavailable: link a Google account with `nova google login`")

var errInvalidEvent = errors.New("invalid event")

// EventCreator adds events to a calendar.
type EventCreator interface {
	CreateEvent(ctx context.Context, ev google.Event) (google.Event, error)
}

// Deps holds the collaborators shared by the HTTP and MCP surfaces.
type Deps struct {
	Store     *storage.Store
	Sessions  *session.Manager
	Agent     *agent.Agent
	Assistant *assistant.Assistant
	Calendar  EventCreator // nil unless a Google account is linked
	Token     string
	Now       func() time.Time // optional; defaults to time.Now
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// SessionView is the JSON form of a stored session.
type SessionView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Turns     int       `json:"turns"`
}

func sessionView(s storage.Session) SessionView {
	return SessionView{ID: s.ID, Title: s.Title, CreatedAt: s.CreatedAt, Turns: s.Turns}
}

// ChatTurnView is the JSON form of one chat message.
type ChatTurnView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Handler   string    `json:"handler,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProcessResponse is a processed turn with the session it ran in.
type ProcessResponse struct {
	SessionID string `json:"session_id"`
	agent.Result
}

// PerceiveResponse is a stateless analysis of one input.
type PerceiveResponse struct {
	Perception agent.Perception `json:"perception"`
	Reasoning  agent.Reasoning  `json:"reasoning"`
}

// ChatResponse is the assistant reply to a chat message together with the
// agent's reading of it.
type ChatResponse struct {
	SessionID string       `json:"session_id"`
	Reply     string       `json:"reply"`
	Handler   string       `json:"handler"`
	Result    agent.Result `json:"result"`
}

// JobView is the JSON form of a queued mail job.
type JobView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func jobView(j storage.Job) JobView {
	return JobView{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		Attempts:  j.Attempts,
		LastError: j.LastError,
		UpdatedAt: j.UpdatedAt,
	}
}

// process runs one agent turn in sessionID, or in a new session when the
// id is empty.
func (d Deps) process(sessionID, text string) (ProcessResponse, error) {
	s, err := d.Sessions.GetOrCreate(sessionID)
	if err != nil {
		return ProcessResponse{}, err
	}
	return ProcessResponse{SessionID: s.ID, Result: d.Agent.Process(s, text)}, nil
}

func (d Deps) perceive(text string) PerceiveResponse {
	p := d.Agent.Analyze(text)
	return PerceiveResponse{Perception: p, Reasoning: d.Agent.Reason(p)}
}

// chat records the message as an agent turn, answers it through the
// assistant router and appends both sides to the chat history.
func (d Deps) chat(ctx context.Context, sessionID, message string) (ChatResponse, error) {
	s, err := d.Sessions.GetOrCreate(sessionID)
	if err != nil {
		return ChatResponse{}, err
	}

	turns, err := d.Store.ListChatTurns(s.ID, chatHistoryTurns)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("loading chat history: %w", err)
	}
	history := make([]llm.Message, len(turns))
	for i, t := range turns {
		history[i] = llm.Message{Role: t.Role, Content: t.Content}
	}

	result := d.Agent.Process(s, message)
	reply := d.Assistant.Reply(ctx, message, history)

	now := d.now()
	user := storage.ChatTurn{ID: uuid.New().String(), SessionID: s.ID, Role: llm.RoleUser, Content: message, CreatedAt: now}
	if err := d.Store.SaveChatTurn(user); err != nil {
		return ChatResponse{}, fmt.Errorf("saving chat turn: %w", err)
	}
	bot := storage.ChatTurn{ID: uuid.New().String(), SessionID: s.ID, Role: llm.RoleAssistant, Content: reply.Text, Handler: reply.Handler, CreatedAt: now}
	if err := d.Store.SaveChatTurn(bot); err != nil {
		return ChatResponse{}, fmt.Errorf("saving chat turn: %w", err)
	}

	return ChatResponse{SessionID: s.ID, Reply: reply.Text, Handler: reply.Handler, Result: result}, nil
}

func (d Deps) history(sessionID string, limit int) ([]ChatTurnView, error) {
	if _, err := d.Sessions.Info(sessionID); err != nil {
		return nil, err
	}
	turns, err := d.Store.ListChatTurns(sessionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ChatTurnView, len(turns))
	for i, t := range turns {
		out[i] = ChatTurnView{ID: t.ID, Role: t.Role, Content: t.Content, Handler: t.Handler, CreatedAt: t.CreatedAt}
	}
	return out, nil
}

// brief parses a comma separated ticker list and builds the daily brief.
func (d Deps) brief(ctx context.Context, tickers string) assistant.Brief {
	return d.Assistant.Brief(ctx, assistant.ExtractTickers(tickers), d.now())
}

func (d Deps) queueMail(req MailRequest) (string, error) {
	return outbox.Enqueue(d.Store, req.Outgoing(), req.Draft)
}

func (d Deps) createEvent(ctx context.Context, req EventRequest) (google.Event, error) {
	ev := req.Event()
	if err := ev.Validate(); err != nil {
		return google.Event{}, fmt.Errorf("%w: %v", errInvalidEvent, err)
	}
	if d.Calendar == nil {
		return google.Event{}, ErrCalendarUnavailable
	}
	return d.Calendar.CreateEvent(ctx, ev)
}
