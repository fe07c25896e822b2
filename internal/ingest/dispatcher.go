package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/jobs"
)

// QueueDispatcher enqueues jobs for the asynq worker.
type QueueDispatcher struct {
	client *jobs.Client
}

// NewQueueDispatcher constructs a queue-backed dispatcher.
func NewQueueDispatcher(client *jobs.Client) *QueueDispatcher {
	return &QueueDispatcher{client: client}
}

// Dispatch enqueues the upload:ingest task.
func (d *QueueDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	_, err := d.client.EnqueueUploadIngest(ctx, jobs.UploadIngestPayload{JobID: id.String()})
	return err
}

// InlineDispatcher runs ingestion on a goroutine in the API process. Work is
// bound to base, so cancelling base stops ingestion between batches.
type InlineDispatcher struct {
	base      context.Context
	processor *Processor
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewInlineDispatcher constructs an in-process dispatcher.
func NewInlineDispatcher(base context.Context, processor *Processor, logger *slog.Logger) *InlineDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineDispatcher{base: base, processor: processor, logger: logger}
}

// Dispatch starts ingestion and returns immediately.
func (d *InlineDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.processor.Process(d.base, id); err != nil {
			d.logger.Error("inline ingestion", slog.String("job_id", id.String()), slog.Any("error", err))
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has reached a terminal status.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
