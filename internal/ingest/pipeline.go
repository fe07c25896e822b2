package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	jobmetrics "github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/jobs"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/sheet"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 30 * time.Second
	terminalWriteWindow = 10 * time.Second

	msgCancelled = "ingestion cancelled"
)

// RowSource yields decoded rows once, with a known count.
type RowSource interface {
	Len() int
	Next() (sheet.RawRow, bool)
}

// RecordWriter stores one batch atomically.
type RecordWriter interface {
	BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) error
}

// ProgressWriter persists job counters and status.
type ProgressWriter interface {
	UpdateProgress(ctx context.Context, id uuid.UUID, progress Progress) error
}

// PipelineConfig tunes batching.
type PipelineConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

// Pipeline writes decoded rows in fixed size batches, skipping batches the
// store rejects.
type Pipeline struct {
	writer   RecordWriter
	progress ProgressWriter
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
	cfg      PipelineConfig
}

// NewPipeline constructs a pipeline.
func NewPipeline(writer RecordWriter, progress ProgressWriter, logger *slog.Logger, metrics *jobmetrics.Metrics, cfg PipelineConfig) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{writer: writer, progress: progress, logger: logger, metrics: metrics, cfg: cfg}
}

// Ingest drains rows into feed's table and returns the terminal progress. The
// job always ends Completed or Failed, including on panic or cancellation.
func (p *Pipeline) Ingest(ctx context.Context, jobID uuid.UUID, feed Feed, rows RowSource) (result Progress) {
	logger := p.logger.With(slog.String("job_id", jobID.String()), slog.String("feed", feed.Name))
	tracker := p.metrics.Track("upload_ingest")
	progress := Progress{Status: StatusProcessing, TotalRows: rows.Len()}

	defer func() {
		if r := recover(); r != nil {
			progress.fail(fmt.Sprintf("ingestion aborted: %v", r))
		}
		if progress.Status == StatusProcessing {
			progress.Status = StatusCompleted
		}
		p.writeTerminal(ctx, logger, jobID, progress)
		var err error
		if progress.Status == StatusFailed {
			err = errors.New(progress.ErrorMessage)
		}
		_ = tracker.End(err)
		result = progress
	}()

	if err := p.progress.UpdateProgress(ctx, jobID, progress); err != nil {
		progress.fail(err.Error())
		return
	}
	logger.Info("ingestion started", slog.Int("total_rows", progress.TotalRows))

	columns := feed.Columns()
	batch := make([]sheet.RawRow, 0, p.cfg.BatchSize)
	batchNo := 0
	for {
		row, more := rows.Next()
		if more {
			batch = append(batch, row)
			if len(batch) < p.cfg.BatchSize {
				continue
			}
		}
		if len(batch) > 0 {
			if ctx.Err() != nil {
				progress.fail(msgCancelled)
				return
			}
			batchNo++
			failed, err := p.writeBatch(ctx, feed, columns, jobID, batchNo, batch)
			progress.ProcessedRows += len(batch)
			progress.FailedRows += failed
			if err != nil {
				progress.fail(err.Error())
				return
			}
			if err := p.progress.UpdateProgress(ctx, jobID, progress); err != nil {
				if errors.Is(err, ErrStorageUnavailable) {
					progress.fail(err.Error())
					return
				}
				logger.Warn("progress update", slog.Int("batch", batchNo), slog.Any("error", err))
			}
			batch = batch[:0]
		}
		if !more {
			break
		}
	}
	if ctx.Err() != nil {
		progress.fail(msgCancelled)
		return
	}
	logger.Info("ingestion completed",
		slog.Int("processed_rows", progress.ProcessedRows),
		slog.Int("failed_rows", progress.FailedRows))
	return
}

// writeBatch returns the number of rows not stored. Only storage outages are
// returned as errors; rejected batches are logged and skipped.
func (p *Pipeline) writeBatch(ctx context.Context, feed Feed, columns []string, jobID uuid.UUID, batchNo int, batch []sheet.RawRow) (int, error) {
	records := make([][]any, 0, len(batch))
	for _, row := range batch {
		rec, err := feed.Record(row, jobID)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	invalid := len(batch) - len(records)
	if len(records) == 0 {
		p.metrics.ObserveBatch(feed.Name, false, len(batch))
		return invalid, nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	err := p.writer.BulkInsert(batchCtx, feed.Table, columns, records)
	cancel()
	if err == nil {
		p.metrics.ObserveBatch(feed.Name, true, len(records))
		return invalid, nil
	}
	p.metrics.ObserveBatch(feed.Name, false, len(batch))
	if errors.Is(err, ErrStorageUnavailable) {
		return len(batch), err
	}
	bwe := &BatchWriteError{Batch: batchNo, Rows: len(batch), Err: err}
	p.logger.Warn("batch skipped",
		slog.String("job_id", jobID.String()),
		slog.Int("batch", batchNo),
		slog.Bool("conflict", IsUniqueViolation(err)),
		slog.Any("error", bwe))
	return len(batch), nil
}

func (p *Pipeline) writeTerminal(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, progress Progress) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteWindow)
	defer cancel()
	if err := p.progress.UpdateProgress(writeCtx, jobID, progress); err != nil {
		logger.Error("record terminal status", slog.String("status", string(progress.Status)), slog.Any("error", err))
		return
	}
	if progress.Status == StatusFailed {
		logger.Error("ingestion failed", slog.String("error", progress.ErrorMessage))
	}
}

func (p *Progress) fail(msg string) {
	p.Status = StatusFailed
	p.ErrorMessage = msg
}
