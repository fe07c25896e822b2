package ingesthttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/ingest"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/httpx"
)

// multipartOverhead is head room for form boundaries and fields on top of the file ceiling.
const multipartOverhead = 1 << 20

// UploadService accepts uploads and reports their progress.
type UploadService interface {
	Submit(ctx context.Context, up ingest.Upload) (ingest.Submission, error)
	Get(ctx context.Context, id string) (ingest.Job, error)
	MaxBytes() int64
}

// Handler exposes the upload endpoints.
type Handler struct {
	logger  *slog.Logger
	service UploadService
}

// NewHandler constructs the upload handler.
func NewHandler(logger *slog.Logger, service UploadService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/uploads", func(r chi.Router) {
		r.With(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).Post("/", h.upload)
		r.Get("/{id}", h.status)
	})
}

type acceptedResponse struct {
	JobID     string        `json:"jobId"`
	Status    ingest.Status `json:"status"`
	Duplicate bool          `json:"duplicate,omitempty"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.service.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, ingest.ErrUploadTooLarge)
			return
		}
		httpx.RespondError(w, fmt.Errorf("%w: invalid multipart form", httpx.ErrValidation))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, ingest.ErrEmptyUpload)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: read file: %v", httpx.ErrValidation, err))
		return
	}

	feed := strings.TrimSpace(r.FormValue("feed"))
	if feed == "" {
		feed = ingest.FeedInvoices
	}
	sub, err := h.service.Submit(r.Context(), ingest.Upload{Filename: header.Filename, Feed: feed, Data: data})
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("accept upload", slog.String("filename", header.Filename), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, acceptedResponse{
		JobID:     sub.Job.ID.String(),
		Status:    sub.Job.Status,
		Duplicate: sub.Duplicate,
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("load upload job", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}
