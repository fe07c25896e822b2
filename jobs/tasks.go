package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskUploadIngest is the task type for ingesting an accepted upload.
	TaskUploadIngest = "upload:ingest"
	// TaskUploadReap fails upload jobs stuck in processing.
	TaskUploadReap = "upload:reap"
)

// UploadIngestPayload identifies the upload job to ingest.
type UploadIngestPayload struct {
	JobID string `json:"job_id"`
}

// NewUploadIngestTask constructs an Asynq task. The task id is the job id so a
// job is never queued twice.
func NewUploadIngestTask(payload UploadIngestPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		return nil, errors.New("jobs: upload job id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUploadIngest, data,
		asynq.TaskID("upload-ingest:"+payload.JobID),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
	), nil
}

// UploadReapPayload configures a reap run.
type UploadReapPayload struct {
	StaleAfterSeconds int64 `json:"stale_after_seconds"`
}

// NewUploadReapTask constructs the periodic reap task.
func NewUploadReapTask(staleAfter time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(UploadReapPayload{StaleAfterSeconds: int64(staleAfter / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUploadReap, data, asynq.MaxRetry(0)), nil
}
