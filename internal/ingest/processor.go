package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/sheet"
)

// JobStore persists upload jobs.
type JobStore interface {
	ProgressWriter
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id uuid.UUID) (Job, error)
	FindJobByChecksum(ctx context.Context, feed, checksum string) (Job, error)
	FailStale(ctx context.Context, olderThan time.Duration, reason string) (int64, error)
}

// Invalidator drops derived read models once new facts are stored.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Processor runs a single upload job from stored file to terminal status.
type Processor struct {
	jobs        JobStore
	files       FileStore
	pipeline    *Pipeline
	invalidator Invalidator
	logger      *slog.Logger
}

// NewProcessor wires a processor. invalidator may be nil.
func NewProcessor(jobs JobStore, files FileStore, pipeline *Pipeline, invalidator Invalidator, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{jobs: jobs, files: files, pipeline: pipeline, invalidator: invalidator, logger: logger}
}

// Process ingests job id. Ingestion failures end up on the job record; the
// returned error only covers failures to load the job itself.
func (p *Processor) Process(ctx context.Context, id uuid.UUID) error {
	job, err := p.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		p.logger.Info("upload job already finished", slog.String("job_id", id.String()), slog.String("status", string(job.Status)))
		return nil
	}

	feed, err := FeedByName(job.Feed)
	if err != nil {
		p.fail(ctx, id, err.Error())
		return nil
	}
	data, err := p.files.Load(ctx, id)
	if err != nil {
		p.fail(ctx, id, fmt.Sprintf("load upload: %v", err))
		return nil
	}
	rows, err := sheet.Decode(data, feed.Schema)
	if err != nil {
		p.fail(ctx, id, err.Error())
		p.cleanup(ctx, id)
		return nil
	}

	progress := p.pipeline.Ingest(ctx, id, feed, rows)
	if progress.Status == StatusCompleted && progress.FailedRows < progress.ProcessedRows && p.invalidator != nil {
		if err := p.invalidator.Bump(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("invalidate aging cache", slog.Any("error", err))
		}
	}
	p.cleanup(ctx, id)
	return nil
}

// Reap fails jobs left in processing longer than olderThan.
func (p *Processor) Reap(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := p.jobs.FailStale(ctx, olderThan, "ingestion stalled")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Warn("reaped stalled upload jobs", slog.Int64("count", n))
	}
	return n, nil
}

func (p *Processor) fail(ctx context.Context, id uuid.UUID, msg string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteWindow)
	defer cancel()
	if err := p.jobs.UpdateProgress(writeCtx, id, Progress{Status: StatusFailed, ErrorMessage: msg}); err != nil {
		p.logger.Error("record job failure", slog.String("job_id", id.String()), slog.Any("error", err))
		return
	}
	p.logger.Error("ingestion failed", slog.String("job_id", id.String()), slog.String("error", msg))
}

func (p *Processor) cleanup(ctx context.Context, id uuid.UUID) {
	if err := p.files.Remove(context.WithoutCancel(ctx), id); err != nil {
		p.logger.Warn("remove upload file", slog.String("job_id", id.String()), slog.Any("error", err))
	}
}
