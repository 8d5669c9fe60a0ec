// Package outbox delivers queued mail through the Gmail API. Messages are
// persisted as jobs first, so a send survives restarts and is retried with
// backoff when the API is unavailable.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/nova/internal/google"
	"github.com/kalambet/nova/internal/storage"
)

// Job types handled by the Worker.
const (
	JobSend  = "mail_send"
	JobDraft = "mail_draft"
)

// ErrNotLinked is returned by the Worker when no Google account is linked.
var ErrNotLinked = errors.New("google account not linked")

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Sender delivers or drafts a message and returns the provider id.
type Sender interface {
	Send(ctx context.Context, o google.Outgoing) (string, error)
	Draft(ctx context.Context, o google.Outgoing) (string, error)
}

// Enqueue validates o and queues it. With draft set the message is saved as
// a draft instead of sent. It returns the job id.
func Enqueue(store JobStore, o google.Outgoing, draft bool) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshaling message: %w", err)
	}
	kind := JobSend
	if draft {
		kind = JobDraft
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        kind,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing %s: %w", kind, err)
	}
	return job.ID, nil
}

// Worker processes mail jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	sender Sender
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. A nil sender fails every job with
// ErrNotLinked. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, sender Sender, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		sender: sender,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("outbox iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single mail job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobSend, JobDraft})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	id, err := w.deliver(ctx, job)
	if err != nil {
		w.logger.Warn("mail job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Info("mail job delivered", "job_id", job.ID, "type", job.Type, "message_id", id)
	return true, nil
}

func (w *Worker) deliver(ctx context.Context, job *storage.Job) (string, error) {
	var o google.Outgoing
	if err := json.Unmarshal([]byte(job.PayloadJSON), &o); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}
	if w.sender == nil {
		return "", ErrNotLinked
	}

	switch job.Type {
	case JobSend:
		return w.sender.Send(ctx, o)
	case JobDraft:
		return w.sender.Draft(ctx, o)
	default:
		return "", fmt.Errorf("unknown job type %q", job.Type)
	}
}
