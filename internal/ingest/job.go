package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/jobs"
)

const defaultStaleAfter = 30 * time.Minute

// IngestJob processes upload:ingest and upload:reap tasks.
type IngestJob struct {
	processor *Processor
	logger    *slog.Logger
}

// NewIngestJob constructs a job handler.
func NewIngestJob(processor *Processor, logger *slog.Logger) *IngestJob {
	return &IngestJob{processor: processor, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *IngestJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.UploadIngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	id, err := uuid.Parse(payload.JobID)
	if err != nil {
		return asynq.SkipRetry
	}
	if err := j.processor.Process(ctx, id); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return asynq.SkipRetry
		}
		if j.logger != nil {
			j.logger.Error("upload ingest", slog.String("job_id", payload.JobID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

// HandleReap fulfils the asynq.HandlerFunc contract for upload:reap.
func (j *IngestJob) HandleReap(ctx context.Context, task *asynq.Task) error {
	var payload jobs.UploadReapPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	staleAfter := time.Duration(payload.StaleAfterSeconds) * time.Second
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	_, err := j.processor.Reap(ctx, staleAfter)
	return err
}
