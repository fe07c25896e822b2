package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/httpx"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

func newTestService(store *memStore, files *memFiles, dispatcher Dispatcher, maxBytes int64) *Service {
	return NewService(ServiceConfig{Jobs: store, Files: files, Dispatcher: dispatcher, Logger: discardLogger(), MaxBytes: maxBytes})
}

func TestSubmitCreatesPendingJobAndDispatches(t *testing.T) {
	store, files, dispatcher := newMemStore(), newMemFiles(), &recordingDispatcher{}
	svc := newTestService(store, files, dispatcher, 0)

	sub, err := svc.Submit(context.Background(), Upload{Filename: "../faktur maret.csv", Feed: FeedInvoices, Data: []byte("a,b\n1,2\n")})
	require.NoError(t, err)

	assert.False(t, sub.Duplicate)
	assert.Equal(t, StatusPending, sub.Job.Status)
	assert.Equal(t, "faktur maret.csv", sub.Job.Filename)
	assert.Len(t, sub.Job.Checksum, 64)
	assert.Equal(t, []uuid.UUID{sub.Job.ID}, dispatcher.ids)
	assert.True(t, files.has(sub.Job.ID))
	assert.Equal(t, int64(DefaultMaxUploadBytes), svc.MaxBytes())
}

func TestSubmitReturnsExistingJobForSameFile(t *testing.T) {
	store, files, dispatcher := newMemStore(), newMemFiles(), &recordingDispatcher{}
	svc := newTestService(store, files, dispatcher, 0)
	data := []byte("a,b\n1,2\n")

	first, err := svc.Submit(context.Background(), Upload{Filename: "a.csv", Feed: FeedInvoices, Data: data})
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), Upload{Filename: "b.csv", Feed: FeedInvoices, Data: data})
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Job.ID, second.Job.ID)
	assert.Len(t, dispatcher.ids, 1)

	other, err := svc.Submit(context.Background(), Upload{Filename: "a.csv", Feed: FeedPurchaseDetails, Data: data})
	require.NoError(t, err)
	assert.False(t, other.Duplicate)
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(newMemStore(), newMemFiles(), &recordingDispatcher{}, 8)

	cases := []struct {
		name string
		up   Upload
		want error
	}{
		{"empty file", Upload{Filename: "a.csv", Feed: FeedInvoices}, ErrEmptyUpload},
		{"too large", Upload{Filename: "a.csv", Feed: FeedInvoices, Data: []byte("123456789")}, ErrUploadTooLarge},
		{"unknown feed", Upload{Filename: "a.csv", Feed: "ledger", Data: []byte("1")}, ErrUnknownFeed},
		{"missing filename", Upload{Feed: FeedInvoices, Data: []byte("1")}, httpx.ErrValidation},
		{"missing feed", Upload{Filename: "a.csv", Data: []byte("1")}, httpx.ErrValidation},
	}
	for _, tc := range cases {
		_, err := svc.Submit(context.Background(), tc.up)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestSubmitDispatchFailureFailsJob(t *testing.T) {
	store, files := newMemStore(), newMemFiles()
	svc := newTestService(store, files, &recordingDispatcher{err: errors.New("redis down")}, 0)

	_, err := svc.Submit(context.Background(), Upload{Filename: "a.csv", Feed: FeedInvoices, Data: []byte("x")})
	require.ErrorIs(t, err, httpx.ErrUnavailable)

	require.Len(t, store.calls, 1)
	assert.Equal(t, StatusFailed, store.calls[0].progress.Status)
	assert.Contains(t, store.calls[0].progress.ErrorMessage, "redis down")
	require.Len(t, store.jobs, 1)
	for id := range store.jobs {
		assert.False(t, files.has(id), "stored upload should be removed")
	}
}

func TestGetJob(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newMemFiles(), &recordingDispatcher{}, 0)
	id := uuid.New()
	require.NoError(t, store.CreateJob(context.Background(), Job{ID: id, Status: StatusProcessing}))

	job, err := svc.Get(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, job.Status)

	_, err = svc.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidJobID)
	_, err = svc.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestInlineDispatcherRunsToCompletion(t *testing.T) {
	f := newProcessorFixture()
	dispatcher := NewInlineDispatcher(context.Background(), f.processor, discardLogger())
	svc := newTestService(f.store, f.files, dispatcher, 0)

	sub, err := svc.Submit(context.Background(), Upload{
		Filename: "detail.csv",
		Feed:     FeedPurchaseDetails,
		Data:     []byte("No Faktur,Kode Barang,Qty,Harga\nF-1,OBT-1,3,1500\n"),
	})
	require.NoError(t, err)
	dispatcher.Wait()

	job, err := f.store.GetJob(context.Background(), sub.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 1, job.ProcessedRows)
	assert.Equal(t, []string{"F-1"}, f.store.storedInvoiceNumbers("purchase_line_items"))
}
