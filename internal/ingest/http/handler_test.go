package ingesthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/ingest"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/httpx"
)

type stubService struct {
	maxBytes  int64
	got       ingest.Upload
	submitErr error
	duplicate bool
	job       ingest.Job
	getErr    error
}

func (s *stubService) Submit(_ context.Context, up ingest.Upload) (ingest.Submission, error) {
	s.got = up
	if s.submitErr != nil {
		return ingest.Submission{}, s.submitErr
	}
	return ingest.Submission{Job: s.job, Duplicate: s.duplicate}, nil
}

func (s *stubService) Get(_ context.Context, id string) (ingest.Job, error) {
	if s.getErr != nil {
		return ingest.Job{}, s.getErr
	}
	if id != s.job.ID.String() {
		return ingest.Job{}, ingest.ErrJobNotFound
	}
	return s.job, nil
}

func (s *stubService) MaxBytes() int64 { return s.maxBytes }

func newRouter(svc *stubService) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func multipartBody(t *testing.T, field, filename string, content []byte, feed string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	if feed != "" {
		require.NoError(t, mw.WriteField("feed", feed))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUploadAccepted(t *testing.T) {
	svc := &stubService{maxBytes: 1 << 20, job: ingest.Job{ID: uuid.New(), Status: ingest.StatusPending}}
	body, ctype := multipartBody(t, "file", "faktur.xlsx", []byte("data"), "")

	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, svc.job.ID.String(), resp.JobID)
	assert.Equal(t, ingest.StatusPending, resp.Status)
	assert.Equal(t, ingest.FeedInvoices, svc.got.Feed)
	assert.Equal(t, "faktur.xlsx", svc.got.Filename)
	assert.Equal(t, "data", string(svc.got.Data))
}

func TestUploadMissingFile(t *testing.T) {
	svc := &stubService{maxBytes: 1 << 20}
	body, ctype := multipartBody(t, "", "", nil, ingest.FeedInvoices)

	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"validation failed: file is empty"}`, rec.Body.String())
}

func TestUploadTooLarge(t *testing.T) {
	svc := &stubService{maxBytes: 16, submitErr: ingest.ErrUploadTooLarge}
	body, ctype := multipartBody(t, "file", "big.csv", bytes.Repeat([]byte("x"), 64), ingest.FeedInvoices)

	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Len(t, svc.got.Data, 17, "reader stops one byte past the ceiling")
}

func TestUploadServiceUnavailable(t *testing.T) {
	svc := &stubService{maxBytes: 1 << 20, submitErr: errors.Join(errors.New("enqueue"), httpx.ErrUnavailable)}
	body, ctype := multipartBody(t, "file", "a.csv", []byte("x"), ingest.FeedPurchaseDetails)

	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ingest.FeedPurchaseDetails, svc.got.Feed)
}

func TestStatus(t *testing.T) {
	svc := &stubService{job: ingest.Job{ID: uuid.New(), Status: ingest.StatusProcessing, TotalRows: 250, ProcessedRows: 100}}
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/"+svc.job.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job ingest.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, 100, job.ProcessedRows)
	assert.Equal(t, ingest.StatusProcessing, job.Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.getErr = errors.New("connection reset")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/"+svc.job.ID.String(), nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
