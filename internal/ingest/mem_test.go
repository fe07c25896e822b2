package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/sheet"
)

type progressCall struct {
	progress Progress
	ctxErr   error
}

// memStore is an in-memory JobStore and RecordWriter. Batches are stored
// all-or-nothing like a transaction.
type memStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]Job
	tables    map[string][][]any
	calls     []progressCall
	events    []string
	inserts   int
	insertErr func(call int, rows [][]any) error
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]Job), tables: make(map[string][][]any)}
}

func (m *memStore) CreateJob(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (m *memStore) FindJobByChecksum(_ context.Context, feed, checksum string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Feed == feed && job.Checksum == checksum && job.Status != StatusFailed {
			return job, nil
		}
	}
	return Job{}, ErrJobNotFound
}

func (m *memStore) FailStale(_ context.Context, olderThan time.Duration, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, job := range m.jobs {
		if !job.Status.Terminal() && time.Since(job.UpdatedAt) > olderThan {
			job.Status = StatusFailed
			job.ErrorMessage = reason
			m.jobs[id] = job
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpdateProgress(ctx context.Context, id uuid.UUID, p Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, progressCall{progress: p, ctxErr: ctx.Err()})
	m.events = append(m.events, "progress:"+string(p.Status))
	if m.updateErr != nil {
		return m.updateErr
	}
	job := m.jobs[id]
	if job.Status.Terminal() {
		return nil
	}
	job.ID = id
	job.Status = p.Status
	job.TotalRows = p.TotalRows
	job.ProcessedRows = p.ProcessedRows
	job.FailedRows = p.FailedRows
	job.ErrorMessage = p.ErrorMessage
	job.UpdatedAt = time.Now()
	m.jobs[id] = job
	return nil
}

func (m *memStore) BulkInsert(ctx context.Context, table string, _ []string, rows [][]any) error {
	m.mu.Lock()
	m.inserts++
	call := m.inserts
	hook := m.insertErr
	m.events = append(m.events, "insert")
	m.mu.Unlock()

	if hook != nil {
		if err := hook(call, rows); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], rows...)
	return nil
}

func (m *memStore) lastCall() progressCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func (m *memStore) storedInvoiceNumbers(table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tables[table]))
	for _, rec := range m.tables[table] {
		out = append(out, rec[0].(string))
	}
	return out
}

// sliceRows is a RowSource over prepared rows.
type sliceRows struct {
	rows    []sheet.RawRow
	pos     int
	panicAt int
}

func (s *sliceRows) Len() int { return len(s.rows) }

func (s *sliceRows) Next() (sheet.RawRow, bool) {
	if s.pos >= len(s.rows) {
		return nil, false
	}
	if s.panicAt > 0 && s.pos == s.panicAt {
		panic("corrupt row")
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true
}

func invoiceRows(n int) *sliceRows {
	rows := make([]sheet.RawRow, n)
	for i := range rows {
		rows[i] = sheet.RawRow{
			"invoice_number": fmt.Sprintf("INV-%03d", i+1),
			"vendor_code":    "PBF-01",
		}
	}
	return &sliceRows{rows: rows}
}

type memFiles struct {
	mu    sync.Mutex
	files map[uuid.UUID][]byte
}

func newMemFiles() *memFiles { return &memFiles{files: make(map[uuid.UUID][]byte)} }

func (f *memFiles) Save(_ context.Context, id uuid.UUID, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id] = append([]byte(nil), data...)
	return nil
}

func (f *memFiles) Load(_ context.Context, id uuid.UUID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[id]
	if !ok {
		return nil, fmt.Errorf("upload %s not stored", id)
	}
	return data, nil
}

func (f *memFiles) Remove(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, id)
	return nil
}

func (f *memFiles) has(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[id]
	return ok
}

type countingInvalidator struct {
	mu    sync.Mutex
	bumps int
}

func (c *countingInvalidator) Bump(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps++
	return nil
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bumps
}
