package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kalambet/nova/internal/google"
	"github.com/kalambet/nova/internal/storage"
)

type mockSender struct {
	mu     sync.Mutex
	sent   []google.Outgoing
	drafts []google.Outgoing
	sendFn func(o google.Outgoing) (string, error)
}

func (m *mockSender) Send(_ context.Context, o google.Outgoing) (string, error) {
	if m.sendFn != nil {
		return m.sendFn(o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, o)
	return fmt.Sprintf("sent-%d", len(m.sent)), nil
}

func (m *mockSender) Draft(_ context.Context, o google.Outgoing) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts = append(m.drafts, o)
	return fmt.Sprintf("draft-%d", len(m.drafts)), nil
}

// memQueue is an in-memory JobStore whose failed jobs are immediately due
// again, so retries can be driven without waiting out the backoff.
type memQueue struct {
	mu   sync.Mutex
	jobs []*storage.Job
}

func (q *memQueue) EnqueueJob(job storage.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}
	job.Status = storage.JobPending
	q.jobs = append(q.jobs, &job)
	return nil
}

func (q *memQueue) ClaimNextJob(types []string) (*storage.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.Status != storage.JobPending {
			continue
		}
		for _, t := range types {
			if j.Type == t {
				j.Status = storage.JobRunning
				cp := *j
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (q *memQueue) find(id string) *storage.Job {
	for _, j := range q.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (q *memQueue) CompleteJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.find(id)
	if j == nil {
		return storage.ErrNotFound
	}
	j.Status = storage.JobCompleted
	return nil
}

func (q *memQueue) FailJob(id string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.find(id)
	if j == nil {
		return storage.ErrNotFound
	}
	j.Attempts++
	j.LastError = errMsg
	if j.Attempts >= j.MaxAttempts {
		j.Status = storage.JobFailed
	} else {
		j.Status = storage.JobPending
	}
	return nil
}

func (q *memQueue) status(id string) (string, int, string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.find(id)
	return j.Status, j.Attempts, j.LastError
}

var msg = google.Outgoing{To: "ann@example.com", Subject: "Hi", Body: "hello"}

func TestEnqueue(t *testing.T) {
	q := &memQueue{}

	id, err := Enqueue(q, msg, false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(q.jobs) != 1 || q.jobs[0].ID != id || q.jobs[0].Type != JobSend {
		t.Fatalf("queued jobs = %+v", q.jobs)
	}
	var got google.Outgoing
	if err := json.Unmarshal([]byte(q.jobs[0].PayloadJSON), &got); err != nil || got != msg {
		t.Errorf("payload = %s (%v)", q.jobs[0].PayloadJSON, err)
	}

	if _, err := Enqueue(q, msg, true); err != nil || q.jobs[1].Type != JobDraft {
		t.Errorf("draft enqueue: type = %q, err = %v", q.jobs[1].Type, err)
	}

	if _, err := Enqueue(q, google.Outgoing{To: "nobody"}, false); err == nil {
		t.Error("expected error for invalid recipient")
	}
	if len(q.jobs) != 2 {
		t.Errorf("invalid message was queued")
	}
}

func TestWorker_SendsAndDrafts(t *testing.T) {
	q := &memQueue{}
	sender := &mockSender{}
	sendID, _ := Enqueue(q, msg, false)
	draftID, _ := Enqueue(q, msg, true)

	w := NewWorker(q, sender, 0)
	for i := 0; i < 2; i++ {
		didWork, err := w.RunOnce(context.Background())
		if err != nil || !didWork {
			t.Fatalf("RunOnce %d = %v, %v", i, didWork, err)
		}
	}
	if didWork, _ := w.RunOnce(context.Background()); didWork {
		t.Error("RunOnce on empty queue returned true")
	}

	if len(sender.sent) != 1 || len(sender.drafts) != 1 {
		t.Errorf("sent %d, drafted %d; want 1 each", len(sender.sent), len(sender.drafts))
	}
	for _, id := range []string{sendID, draftID} {
		if status, _, _ := q.status(id); status != storage.JobCompleted {
			t.Errorf("job %s status = %q, want completed", id, status)
		}
	}
}

func TestWorker_RetryThenFail(t *testing.T) {
	q := &memQueue{}
	sender := &mockSender{sendFn: func(google.Outgoing) (string, error) {
		return "", errors.New("HTTP 503")
	}}
	id, _ := Enqueue(q, msg, false)
	w := NewWorker(q, sender, 0)

	for i := 1; i <= 3; i++ {
		if _, err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce %d: %v", i, err)
		}
		status, attempts, lastErr := q.status(id)
		if attempts != i || lastErr != "HTTP 503" {
			t.Errorf("after attempt %d: attempts=%d lastErr=%q", i, attempts, lastErr)
		}
		want := storage.JobPending
		if i == 3 {
			want = storage.JobFailed
		}
		if status != want {
			t.Errorf("after attempt %d: status=%q, want %q", i, status, want)
		}
	}
}

func TestWorker_NotLinked(t *testing.T) {
	q := &memQueue{}
	id, _ := Enqueue(q, msg, false)

	w := NewWorker(q, nil, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, _, lastErr := q.status(id); lastErr != ErrNotLinked.Error() {
		t.Errorf("lastErr = %q, want %q", lastErr, ErrNotLinked)
	}
}

func TestWorker_BadPayload(t *testing.T) {
	q := &memQueue{}
	q.EnqueueJob(storage.Job{ID: "bad", Type: JobSend, PayloadJSON: "{", MaxAttempts: 1})

	w := NewWorker(q, &mockSender{}, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if status, _, _ := q.status("bad"); status != storage.JobFailed {
		t.Errorf("status = %q, want failed", status)
	}
}

func TestWorker_SQLiteQueue(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	id, err := Enqueue(store, msg, false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	sender := &mockSender{}
	didWork, err := NewWorker(store, sender, 0).RunOnce(context.Background())
	if err != nil || !didWork {
		t.Fatalf("RunOnce = %v, %v", didWork, err)
	}
	job, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != storage.JobCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}
	if len(sender.sent) != 1 || sender.sent[0] != msg {
		t.Errorf("sent = %+v", sender.sent)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &memQueue{}
	Enqueue(q, msg, false)
	sender := &mockSender{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewWorker(q, sender, 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sender.mu.Lock()
		n := len(sender.sent)
		sender.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job was not processed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
