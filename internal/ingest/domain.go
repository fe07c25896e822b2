package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/httpx"
)

// Status enumerates upload job lifecycle states.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks one uploaded file through ingestion.
type Job struct {
	ID            uuid.UUID `json:"id"`
	Filename      string    `json:"filename"`
	Feed          string    `json:"feed"`
	Checksum      string    `json:"checksum"`
	Status        Status    `json:"status"`
	TotalRows     int       `json:"totalRows"`
	ProcessedRows int       `json:"processedRows"`
	FailedRows    int       `json:"failedRows"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Progress is the mutable part of a job written after every batch.
type Progress struct {
	Status        Status
	TotalRows     int
	ProcessedRows int
	FailedRows    int
	ErrorMessage  string
}

var (
	// ErrJobNotFound indicates the upload job does not exist.
	ErrJobNotFound = fmt.Errorf("upload job: %w", httpx.ErrNotFound)
	// ErrStorageUnavailable marks failures that make every further batch pointless.
	ErrStorageUnavailable = errors.New("ingest: storage unavailable")
	// ErrEmptyUpload is returned for a missing or zero length file.
	ErrEmptyUpload = fmt.Errorf("%w: file is empty", httpx.ErrValidation)
	// ErrUploadTooLarge is returned when the file exceeds the configured ceiling.
	ErrUploadTooLarge = fmt.Errorf("upload: %w", httpx.ErrTooLarge)
	// ErrUnknownFeed is returned for a feed name with no registered schema.
	ErrUnknownFeed = fmt.Errorf("%w: unknown feed", httpx.ErrValidation)
	// ErrInvalidJobID is returned when a job id is not a UUID.
	ErrInvalidJobID = fmt.Errorf("%w: invalid job id", httpx.ErrValidation)
)

// BatchWriteError reports a batch whose insert was rolled back.
type BatchWriteError struct {
	Batch int
	Rows  int
	Err   error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("ingest: batch %d (%d rows): %v", e.Batch, e.Rows, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }
