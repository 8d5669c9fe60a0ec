// Package session keeps live agent sessions and mirrors their interaction
// stores into SQLite so conversations survive restarts.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kalambet/nova/internal/agent"
	"github.com/kalambet/nova/internal/storage"
)

// Store is the subset of storage.Store used by the Manager.
type Store interface {
	CreateSession(sess storage.Session) error
	GetSession(id string) (storage.Session, error)
	ListSessions(limit, offset int) ([]storage.Session, error)
	DeleteSession(id string) error
	SavePerception(p storage.Perception) error
	ListPerceptions(sessionID string) ([]storage.Perception, error)
}

// Manager hands out *agent.Session values by id. Sessions not yet in memory
// are rebuilt from their stored perceptions on first access.
type Manager struct {
	store Store

	mu   sync.Mutex
	live map[string]*agent.Session
	// last persisted seq per live session
	seqs map[string]int
}

// NewManager creates a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		live:  make(map[string]*agent.Session),
		seqs:  make(map[string]int),
	}
}

// Create starts a new, empty session.
func (m *Manager) Create(title string) (storage.Session, *agent.Session, error) {
	info := storage.Session{ID: uuid.New().String(), Title: title}
	if err := m.store.CreateSession(info); err != nil {
		return storage.Session{}, nil, fmt.Errorf("creating session: %w", err)
	}
	info, err := m.store.GetSession(info.ID)
	if err != nil {
		return storage.Session{}, nil, fmt.Errorf("reading session: %w", err)
	}

	s := agent.NewSession(info.ID)
	m.mu.Lock()
	m.live[info.ID] = s
	m.seqs[info.ID] = 0
	m.mu.Unlock()
	return info, s, nil
}

// Get returns the live session for id, loading it from storage if needed.
// It returns storage.ErrNotFound for unknown ids.
func (m *Manager) Get(id string) (*agent.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.live[id]; ok {
		return s, nil
	}

	if _, err := m.store.GetSession(id); err != nil {
		return nil, err
	}
	records, err := m.store.ListPerceptions(id)
	if err != nil {
		return nil, fmt.Errorf("loading perceptions for %s: %w", id, err)
	}
	history := make([]agent.Perception, 0, len(records))
	last := 0
	for _, r := range records {
		p, err := fromRecord(r)
		if err != nil {
			return nil, err
		}
		history = append(history, p)
		last = max(last, r.Seq)
	}

	s := agent.RestoreSession(id, history)
	m.live[id] = s
	m.seqs[id] = last
	slog.Debug("session restored", "session_id", id, "perceptions", len(history))
	return s, nil
}

// GetOrCreate returns the session for id, or a fresh session when id is empty.
func (m *Manager) GetOrCreate(id string) (*agent.Session, error) {
	if id == "" {
		_, s, err := m.Create("")
		return s, err
	}
	return m.Get(id)
}

// Info returns the stored metadata for a session.
func (m *Manager) Info(id string) (storage.Session, error) {
	return m.store.GetSession(id)
}

// List returns stored sessions newest first.
func (m *Manager) List(limit, offset int) ([]storage.Session, error) {
	return m.store.ListSessions(limit, offset)
}

// Delete drops a session from storage and then from memory. The lock is
// held across the store call so a concurrent Get cannot reload the row.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteSession(id); err != nil {
		return err
	}
	delete(m.live, id)
	delete(m.seqs, id)
	return nil
}

// History returns the stored perceptions of a session in order.
func (m *Manager) History(id string) ([]agent.Perception, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.History(), nil
}

// RecordPerception persists a perception appended to a live session. The
// stored seq follows the highest one already persisted, so a failed save
// earlier in the session never leads to a duplicate. pos is only used for
// sessions this Manager has not loaded.
func (m *Manager) RecordPerception(sessionID string, pos int, p agent.Perception) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.seqs[sessionID]
	if !ok {
		last = pos - 1
	}
	seq := last + 1

	r, err := toRecord(sessionID, seq, p)
	if err != nil {
		return err
	}
	if err := m.store.SavePerception(r); err != nil {
		return fmt.Errorf("saving perception %s/%d: %w", sessionID, seq, err)
	}
	if ok {
		m.seqs[sessionID] = seq
	}
	return nil
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

func toRecord(sessionID string, seq int, p agent.Perception) (storage.Perception, error) {
	entities := p.Entities
	if entities == nil {
		entities = agent.Entities{}
	}
	data, err := json.Marshal(entities)
	if err != nil {
		return storage.Perception{}, fmt.Errorf("encoding entities: %w", err)
	}
	return storage.Perception{
		SessionID:    sessionID,
		Seq:          seq,
		RawText:      p.RawText,
		Intent:       string(p.Intent),
		EntitiesJSON: string(data),
		Sentiment:    string(p.Sentiment),
		CreatedAt:    p.Timestamp,
	}, nil
}

func fromRecord(r storage.Perception) (agent.Perception, error) {
	entities := agent.Entities{}
	if err := json.Unmarshal([]byte(r.EntitiesJSON), &entities); err != nil {
		return agent.Perception{}, fmt.Errorf("decoding entities for %s/%d: %w", r.SessionID, r.Seq, err)
	}
	return agent.Perception{
		RawText:   r.RawText,
		Intent:    agent.Intent(r.Intent),
		Entities:  entities,
		Sentiment: agent.Sentiment(r.Sentiment),
		Timestamp: r.CreatedAt,
	}, nil
}
