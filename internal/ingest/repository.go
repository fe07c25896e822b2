package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/db"
)

// Repository persists upload jobs and ingested records in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, filename, feed, checksum, status, total_rows, processed_rows, failed_rows,
COALESCE(error_message,''), created_at, updated_at`

// CreateJob inserts a new upload job.
func (r *Repository) CreateJob(ctx context.Context, job Job) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("ingest: repository not initialised")
	}
	const query = `INSERT INTO upload_jobs (id, filename, feed, checksum, status, total_rows, processed_rows, failed_rows, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query, job.ID, job.Filename, job.Feed, job.Checksum, string(job.Status),
		job.TotalRows, job.ProcessedRows, job.FailedRows, job.CreatedAt, job.UpdatedAt)
	return classify(err)
}

// GetJob loads a job by id.
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (Job, error) {
	if r == nil || r.pool == nil {
		return Job{}, fmt.Errorf("ingest: repository not initialised")
	}
	job, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM upload_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, classify(err)
	}
	return job, nil
}

// FindJobByChecksum returns the newest non-failed job for the same file and feed.
func (r *Repository) FindJobByChecksum(ctx context.Context, feed, checksum string) (Job, error) {
	if r == nil || r.pool == nil {
		return Job{}, fmt.Errorf("ingest: repository not initialised")
	}
	query := `SELECT ` + jobColumns + ` FROM upload_jobs
WHERE feed = $1 AND checksum = $2 AND status <> $3
ORDER BY created_at DESC LIMIT 1`
	job, err := scanJob(r.pool.QueryRow(ctx, query, feed, checksum, string(StatusFailed)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, classify(err)
	}
	return job, nil
}

// UpdateProgress overwrites the counters and status of a job. Terminal jobs
// are left untouched.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, p Progress) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("ingest: repository not initialised")
	}
	const query = `UPDATE upload_jobs
SET status = $2,
    total_rows = GREATEST(total_rows, $3),
    processed_rows = GREATEST(processed_rows, $4),
    failed_rows = GREATEST(failed_rows, $5),
    error_message = NULLIF($6, ''),
    updated_at = NOW()
WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED')`
	_, err := r.pool.Exec(ctx, query, id, string(p.Status), p.TotalRows, p.ProcessedRows, p.FailedRows, p.ErrorMessage)
	return classify(err)
}

// FailStale marks processing jobs idle for longer than olderThan as failed.
func (r *Repository) FailStale(ctx context.Context, olderThan time.Duration, reason string) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("ingest: repository not initialised")
	}
	const query = `UPDATE upload_jobs
SET status = 'FAILED', error_message = $2, updated_at = NOW()
WHERE status IN ('PENDING', 'PROCESSING') AND updated_at < NOW() - make_interval(secs => $1)`
	tag, err := r.pool.Exec(ctx, query, olderThan.Seconds(), reason)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

// BulkInsert copies rows into table inside one transaction, so a constraint
// violation on any row discards the whole batch.
func (r *Repository) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("ingest: repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return err
		}
		if n != int64(len(rows)) {
			return fmt.Errorf("ingest: copied %d of %d rows", n, len(rows))
		}
		return nil
	})
	return classify(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job    Job
		status string
	)
	err := row.Scan(&job.ID, &job.Filename, &job.Feed, &job.Checksum, &status, &job.TotalRows,
		&job.ProcessedRows, &job.FailedRows, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	return job, nil
}

// classify tags errors that mean the database itself is unreachable.
// Statement errors and deadlines stay unwrapped and only fail their batch.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), pgconn.Timeout(err):
		return err
	case errors.Is(err, pgx.ErrNoRows):
		return err
	}
	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
