package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/httpx"
)

// DefaultMaxUploadBytes is the upload ceiling used when none is configured.
const DefaultMaxUploadBytes = 15 << 20

// Upload is an accepted multipart file.
type Upload struct {
	Filename string `validate:"required,max=255"`
	Feed     string `validate:"required,oneof=invoices purchase_details"`
	Data     []byte
}

// Submission is the outcome of Submit.
type Submission struct {
	Job       Job
	Duplicate bool
}

// Dispatcher hands an accepted job to whatever runs ingestion.
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) error
}

// Service accepts uploads and reports job status.
type Service struct {
	jobs       JobStore
	files      FileStore
	dispatcher Dispatcher
	validate   *validator.Validate
	logger     *slog.Logger
	maxBytes   int64
	now        func() time.Time
}

// ServiceConfig wires Service dependencies.
type ServiceConfig struct {
	Jobs       JobStore
	Files      FileStore
	Dispatcher Dispatcher
	Logger     *slog.Logger
	MaxBytes   int64
}

// NewService constructs the upload service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		jobs:       cfg.Jobs,
		files:      cfg.Files,
		dispatcher: cfg.Dispatcher,
		validate:   validator.New(),
		logger:     cfg.Logger,
		maxBytes:   cfg.MaxBytes,
		now:        time.Now,
	}
}

// MaxBytes reports the upload ceiling.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Submit stores the file, records a pending job and dispatches it. A file
// already accepted for the same feed returns the existing job.
func (s *Service) Submit(ctx context.Context, up Upload) (Submission, error) {
	if name := strings.TrimSpace(up.Filename); name != "" {
		up.Filename = filepath.Base(name)
	}
	up.Feed = strings.TrimSpace(up.Feed)
	if err := s.validate.Struct(up); err != nil {
		return Submission{}, validationError(err)
	}
	if len(up.Data) == 0 {
		return Submission{}, ErrEmptyUpload
	}
	if int64(len(up.Data)) > s.maxBytes {
		return Submission{}, ErrUploadTooLarge
	}

	sum := sha256.Sum256(up.Data)
	checksum := hex.EncodeToString(sum[:])
	existing, err := s.jobs.FindJobByChecksum(ctx, up.Feed, checksum)
	switch {
	case err == nil:
		s.logger.Info("duplicate upload", slog.String("job_id", existing.ID.String()), slog.String("feed", up.Feed))
		return Submission{Job: existing, Duplicate: true}, nil
	case !errors.Is(err, ErrJobNotFound):
		return Submission{}, fmt.Errorf("ingest: lookup checksum: %w", err)
	}

	now := s.now().UTC()
	job := Job{
		ID:        uuid.New(),
		Filename:  up.Filename,
		Feed:      up.Feed,
		Checksum:  checksum,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.files.Save(ctx, job.ID, up.Data); err != nil {
		return Submission{}, fmt.Errorf("ingest: save upload: %w", err)
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		_ = s.files.Remove(ctx, job.ID)
		return Submission{}, fmt.Errorf("ingest: create job: %w", err)
	}
	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		msg := fmt.Sprintf("dispatch: %v", err)
		_ = s.jobs.UpdateProgress(context.WithoutCancel(ctx), job.ID, Progress{Status: StatusFailed, ErrorMessage: msg})
		_ = s.files.Remove(context.WithoutCancel(ctx), job.ID)
		return Submission{}, fmt.Errorf("ingest: %s: %w", msg, httpx.ErrUnavailable)
	}
	s.logger.Info("upload accepted",
		slog.String("job_id", job.ID.String()),
		slog.String("feed", job.Feed),
		slog.String("filename", job.Filename),
		slog.Int("bytes", len(up.Data)))
	return Submission{Job: job}, nil
}

// Get returns the job identified by rawID.
func (s *Service) Get(ctx context.Context, rawID string) (Job, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return Job{}, ErrInvalidJobID
	}
	return s.jobs.GetJob(ctx, id)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Feed":
		if fe.Tag() == "oneof" {
			return fmt.Errorf("%w %q", ErrUnknownFeed, fe.Value())
		}
		return fmt.Errorf("%w: feed is required", httpx.ErrValidation)
	case "Filename":
		return fmt.Errorf("%w: filename is %s", httpx.ErrValidation, fe.Tag())
	}
	return fmt.Errorf("%w: %s", httpx.ErrValidation, fe.Error())
}
