// Package agent implements the perceive-reason-act pipeline: rule-based
// intent, entity and sentiment extraction, table-driven planning, and a
// composed acknowledgment, with a per-session interaction store.
package agent

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Recorder is notified after a perception is appended to a session store.
// seq is the 1-based position of the perception in the in-memory store;
// recorders that persist may assign their own ordering.
type Recorder interface {
	RecordPerception(sessionID string, seq int, p Perception) error
}

// Option configures an Agent.
type Option func(*Agent)

// WithTables replaces the built-in tables.
func WithTables(t *Tables) Option {
	return func(a *Agent) { a.tables.Store(t) }
}

// WithRegistry sets the capability registry used to execute plan steps.
func WithRegistry(r *Registry) Option {
	return func(a *Agent) { a.registry = r }
}

// WithRecorder sets a recorder for appended perceptions.
func WithRecorder(r Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// WithClock overrides the timestamp source (for tests).
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// Agent runs turns of the pipeline. It holds no conversation state of its
// own; that lives in the Session passed to each call.
type Agent struct {
	tables   atomic.Pointer[Tables]
	registry *Registry
	recorder Recorder
	now      func() time.Time
}

// New creates an Agent with the built-in tables and an empty registry.
func New(opts ...Option) *Agent {
	a := &Agent{
		registry: NewRegistry(),
		now:      time.Now,
	}
	a.tables.Store(DefaultTables())
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tables returns the tables currently in use.
func (a *Agent) Tables() *Tables {
	return a.tables.Load()
}

// SetTables swaps the tables. Turns already in flight finish with the
// tables they started with.
func (a *Agent) SetTables(t *Tables) {
	a.tables.Store(t)
}

// Analyze produces a perception for text without touching any session.
func (a *Agent) Analyze(text string) Perception {
	return a.analyze(a.Tables(), text)
}

func (a *Agent) analyze(t *Tables, text string) Perception {
	return Perception{
		RawText:   text,
		Intent:    ClassifyIntent(text, t.Intents),
		Entities:  ExtractEntities(text),
		Sentiment: AnalyzeSentiment(text, t.Lexicon),
		Timestamp: a.now().UTC(),
	}
}

// Perceive analyses text and appends the perception to the session store.
func (a *Agent) Perceive(s *Session, text string) Perception {
	p, _ := a.perceive(a.Tables(), s, text)
	return p
}

func (a *Agent) perceive(t *Tables, s *Session, text string) (Perception, int) {
	p := a.analyze(t, text)
	n := s.Append(p)
	if a.recorder != nil {
		if err := a.recorder.RecordPerception(s.ID, n, p); err != nil {
			slog.Warn("recording perception failed", "session_id", s.ID, "seq", n, "error", err)
		}
	}
	return p, n
}

// Reason derives a plan for the perception.
func (a *Agent) Reason(p Perception) Reasoning {
	return Reason(p, a.Tables())
}

// Act executes the plan through the registry and composes the response.
// interactions is the session store size including the current turn.
func (a *Agent) Act(rs Reasoning, interactions int) (string, []ExecutionResult) {
	return Act(rs, interactions, a.registry)
}

// Process runs one full turn: PERCEIVE (append), REASON, ACT.
func (a *Agent) Process(s *Session, text string) Result {
	s.turn.Lock()
	defer s.turn.Unlock()

	t := a.Tables()
	p, n := a.perceive(t, s, text)
	rs := Reason(p, t)
	response, steps := Act(rs, n, a.registry)

	slog.Debug("turn processed",
		"session_id", s.ID,
		"intent", p.Intent,
		"sentiment", p.Sentiment,
		"confidence", rs.Confidence,
		"interactions", n,
	)

	return Result{
		InputText:    text,
		Perception:   p,
		Reasoning:    rs,
		ResponseText: response,
		Steps:        steps,
	}
}
