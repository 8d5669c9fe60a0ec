package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kalambet/nova/internal/agent"
	"github.com/kalambet/nova/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fixedClock() func() time.Time {
	at := time.Date(2025, 11, 18, 15, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestManager_ProcessPersistsAndRestores(t *testing.T) {
	store := openTestStore(t)

	m1 := NewManager(store)
	a1 := agent.New(agent.WithRecorder(m1), agent.WithClock(fixedClock()))
	info, s, err := m1.Create("demo")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a1.Process(s, "find flights to Lisbon on 5/6/2026")
	a1.Process(s, "thank you")

	// A second manager over the same store simulates a restart.
	m2 := NewManager(store)
	a2 := agent.New(agent.WithRecorder(m2), agent.WithClock(fixedClock()))
	restored, err := m2.Get(info.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(s.History(), restored.History()); diff != "" {
		t.Errorf("restored history mismatch (-live +restored):\n%s", diff)
	}

	res := a2.Process(restored, "hello")
	if !strings.Contains(res.ResponseText, "Based on our conversation so far,") {
		t.Errorf("ResponseText = %q, want continuity after restore", res.ResponseText)
	}

	got, err := m2.Info(info.ID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if got.Turns != 3 {
		t.Errorf("Turns = %d, want 3", got.Turns)
	}
	if got.Title != "demo" {
		t.Errorf("Title = %q, want demo", got.Title)
	}
}

func TestManager_GetReturnsSameLiveSession(t *testing.T) {
	m := NewManager(openTestStore(t))
	info, s, err := m.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := m.Get(info.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s {
		t.Error("Get returned a different session than Create")
	}
}

func TestManager_GetUnknown(t *testing.T) {
	m := NewManager(openTestStore(t))

	_, err := m.Get("nope")
	if !IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager(openTestStore(t))

	s, err := m.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate(\"\"): %v", err)
	}
	if s.ID == "" {
		t.Fatal("created session has empty id")
	}

	again, err := m.GetOrCreate(s.ID)
	if err != nil {
		t.Fatalf("GetOrCreate(id): %v", err)
	}
	if again != s {
		t.Error("GetOrCreate(id) returned a different session")
	}
}

func TestManager_Delete(t *testing.T) {
	m := NewManager(openTestStore(t))
	a := agent.New(agent.WithRecorder(m))
	info, s, err := m.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a.Process(s, "hi")

	if err := m.Delete(info.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(info.ID); !IsNotFound(err) {
		t.Errorf("Get after delete: err = %v, want not found", err)
	}
	if err := m.Delete(info.ID); !IsNotFound(err) {
		t.Errorf("second Delete: err = %v, want not found", err)
	}
}

func TestManager_ListNewestFirst(t *testing.T) {
	m := NewManager(openTestStore(t))
	var ids []string
	for i := 0; i < 3; i++ {
		info, _, err := m.Create("")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, info.ID)
		time.Sleep(2 * time.Millisecond)
	}

	got, err := m.List(10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != ids[2] || got[2].ID != ids[0] {
		t.Errorf("order = %s, %s, %s; want newest first", got[0].ID, got[1].ID, got[2].ID)
	}
}

// blockingStore holds DeleteSession until release is closed.
type blockingStore struct {
	*storage.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) DeleteSession(id string) error {
	close(b.entered)
	<-b.release
	return b.Store.DeleteSession(id)
}

func TestManager_DeleteBlocksConcurrentGet(t *testing.T) {
	bs := &blockingStore{
		Store:   openTestStore(t),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := NewManager(bs)
	info, _, err := m.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	deleted := make(chan error, 1)
	go func() { deleted <- m.Delete(info.ID) }()
	<-bs.entered

	got := make(chan error, 1)
	go func() {
		_, err := m.Get(info.ID)
		got <- err
	}()

	select {
	case err := <-got:
		t.Fatalf("Get returned while delete was in progress: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(bs.release)
	if err := <-deleted; err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := <-got; !IsNotFound(err) {
		t.Errorf("concurrent Get: err = %v, want not found", err)
	}
	if _, err := m.Get(info.ID); !IsNotFound(err) {
		t.Errorf("Get after delete: err = %v, want not found", err)
	}
}

func TestManager_RestoreContinuesAfterSeqGap(t *testing.T) {
	store := openTestStore(t)
	if err := store.CreateSession(storage.Session{ID: "s1"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for _, seq := range []int{1, 2, 4} {
		r, err := toRecord("s1", seq, agent.Perception{RawText: "x", Intent: agent.IntentConversation, Sentiment: agent.SentimentNeutral, Timestamp: time.Now()})
		if err != nil {
			t.Fatalf("toRecord: %v", err)
		}
		if err := store.SavePerception(r); err != nil {
			t.Fatalf("SavePerception(%d): %v", seq, err)
		}
	}

	m := NewManager(store)
	s, err := m.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	agent.New(agent.WithRecorder(m)).Process(s, "hello")

	records, err := store.ListPerceptions("s1")
	if err != nil {
		t.Fatalf("ListPerceptions: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("stored %d perceptions, want 4", len(records))
	}
	if last := records[3]; last.Seq != 5 || last.RawText != "hello" {
		t.Errorf("last record = %d %q, want 5 \"hello\"", last.Seq, last.RawText)
	}
}

// flakyStore fails the next SavePerception when failNext is set.
type flakyStore struct {
	*storage.Store
	failNext bool
}

func (f *flakyStore) SavePerception(p storage.Perception) error {
	if f.failNext {
		f.failNext = false
		return errors.New("database is locked")
	}
	return f.Store.SavePerception(p)
}

func TestManager_FailedSaveLeavesNoGap(t *testing.T) {
	fs := &flakyStore{Store: openTestStore(t)}
	m := NewManager(fs)
	a := agent.New(agent.WithRecorder(m))
	info, s, err := m.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	a.Process(s, "one")
	fs.failNext = true
	a.Process(s, "two")
	a.Process(s, "three")

	records, err := fs.ListPerceptions(info.ID)
	if err != nil {
		t.Fatalf("ListPerceptions: %v", err)
	}
	var got []int
	for _, r := range records {
		got = append(got, r.Seq)
	}
	if diff := cmp.Diff([]int{1, 2}, got); diff != "" {
		t.Errorf("stored seqs mismatch (-want +got):\n%s", diff)
	}
	if records[1].RawText != "three" {
		t.Errorf("records[1].RawText = %q, want three", records[1].RawText)
	}
}

type failingStore struct {
	Store
}

func (failingStore) SavePerception(storage.Perception) error {
	return errors.New("disk full")
}

func TestManager_RecordPerceptionWrapsError(t *testing.T) {
	m := NewManager(failingStore{})

	err := m.RecordPerception("s1", 4, agent.Perception{RawText: "x"})
	if err == nil || !strings.Contains(err.Error(), "s1/4") {
		t.Errorf("err = %v, want wrapped error naming s1/4", err)
	}
}

func TestRecordConversion_EmptyEntities(t *testing.T) {
	r, err := toRecord("s1", 1, agent.Perception{RawText: "hi", Intent: agent.IntentConversation, Sentiment: agent.SentimentNeutral})
	if err != nil {
		t.Fatalf("toRecord: %v", err)
	}
	if r.EntitiesJSON != "{}" {
		t.Errorf("EntitiesJSON = %q, want {}", r.EntitiesJSON)
	}

	p, err := fromRecord(r)
	if err != nil {
		t.Fatalf("fromRecord: %v", err)
	}
	if p.Entities == nil || len(p.Entities) != 0 {
		t.Errorf("Entities = %#v, want empty non-nil map", p.Entities)
	}
}
