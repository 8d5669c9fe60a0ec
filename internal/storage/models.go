package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Turns     int // number of stored perceptions
}

// Perception is one persisted entry of a session's interaction store.
type Perception struct {
	SessionID    string
	Seq          int
	RawText      string
	Intent       string
	EntitiesJSON string // JSON object stored as text
	Sentiment    string
	CreatedAt    time.Time
}

type ChatTurn struct {
	ID        string
	SessionID string
	Role      string // "user" or "assistant"
	Content   string
	Handler   string // route that produced an assistant reply
	CreatedAt time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
