package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skuflow/platform/pkg/catalog"
	"github.com/skuflow/platform/pkg/common/logger"
	"github.com/skuflow/platform/pkg/common/models"
	"github.com/skuflow/platform/pkg/common/retry"
	"github.com/skuflow/platform/pkg/ledger"
	"github.com/skuflow/platform/pkg/observability/metrics"
)

type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*ledger.UploadedFile, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, processedRows, totalRows int) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

type Catalog interface {
	DeleteByFile(ctx context.Context, fileID uuid.UUID) (int64, error)
	Upsert(ctx context.Context, file *ledger.UploadedFile, row catalog.Row) (catalog.Outcome, error)
}

type Blobs interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

type Options struct {
	Delimiter     rune
	Columns       Columns
	ProgressEvery int
	Source        string
}

// Result summarizes one run.
type Result struct {
	FileID    uuid.UUID `json:"file_id"`
	Total     int       `json:"total_rows"`
	Processed int       `json:"processed_rows"`
	Skipped   int       `json:"skipped_rows"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	Reset     int64     `json:"reset_rows"`
}

const (
	statusWriteAttempts = 3
	statusWriteBackoff  = 200 * time.Millisecond
)

type Pipeline struct {
	ledger  Ledger
	catalog Catalog
	blobs   Blobs
	events  Publisher
	opts    Options
}

func NewPipeline(l Ledger, c Catalog, b Blobs, events Publisher, opts Options) *Pipeline {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.Columns.UniqueKey == nil {
		opts.Columns = DefaultColumns()
	}
	if opts.Source == "" {
		opts.Source = "catalog-ingestion"
	}
	return &Pipeline{ledger: l, catalog: c, blobs: b, events: events, opts: opts}
}

// Run executes one ingestion attempt for the file synchronously. Row-local
// problems are counted as skips; any other error marks the file failed and
// leaves the blob at path for a retry.
func (p *Pipeline) Run(ctx context.Context, fileID uuid.UUID, path string) (Result, error) {
	file, err := p.ledger.Get(ctx, fileID)
	if err != nil {
		return Result{FileID: fileID}, fmt.Errorf("loading uploaded file %s: %w", fileID, err)
	}
	if err := p.ledger.MarkProcessing(ctx, fileID); err != nil {
		return Result{FileID: fileID}, fmt.Errorf("marking file %s processing: %w", fileID, err)
	}

	metrics.RunStarted()
	defer metrics.RunFinished()

	log := logger.ForFile(fileID).WithField("file_name", file.FileName)
	log.WithField("path", path).Info("ingestion started")
	p.publish(ctx, models.EventFileProcessing, file, map[string]interface{}{
		"attempt": file.Attempts + 1,
	})

	started := time.Now()
	result, err := p.ingest(ctx, file, path, log)
	if err != nil {
		p.fail(ctx, file, result, err, log)
		return result, err
	}
	if err := p.complete(ctx, file, path, result, time.Since(started), log); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Pipeline) ingest(ctx context.Context, file *ledger.UploadedFile, path string, log *logrus.Entry) (Result, error) {
	res := Result{FileID: file.ID}

	reset, err := p.catalog.DeleteByFile(ctx, file.ID)
	if err != nil {
		return res, fmt.Errorf("resetting rows owned by file: %w", err)
	}
	res.Reset = reset
	if reset > 0 {
		log.WithField("rows", reset).Info("removed rows from previous attempt")
	}

	rc, err := p.blobs.Open(ctx, path)
	if err != nil {
		return res, fmt.Errorf("opening upload: %w", err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.Comma = p.opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		log.Info("upload has no header row")
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("reading header: %w", err)
	}
	parser := newRowParser(header, p.opts.Columns)
	if !parser.keyFound {
		log.WithField("header", parser.names).Warn("no unique key column in header, rows will be skipped")
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return res, fmt.Errorf("reading upload at row %d: %w", res.Total+1, err)
			}
			res.Total++
			res.Skipped++
			log.WithError(err).WithField("line", parseErr.StartLine).Warn("skipping malformed row")
			p.progress(ctx, file, res, log)
			continue
		}
		res.Total++

		row, priceErr, err := parser.parse(record)
		if err != nil {
			res.Skipped++
			log.WithField("row", res.Total).Debug("skipping row without unique key")
			p.progress(ctx, file, res, log)
			continue
		}
		if priceErr != nil {
			log.WithError(priceErr).WithField("unique_key", row.UniqueKey).Warn("price left unset")
		}

		outcome, err := p.catalog.Upsert(ctx, file, row)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Skipped++
			log.WithError(err).WithField("unique_key", row.UniqueKey).Warn("skipping row that failed to upsert")
			p.progress(ctx, file, res, log)
			continue
		}

		res.Processed++
		if outcome == catalog.OutcomeUpdated {
			res.Updated++
		} else {
			res.Inserted++
		}
		p.progress(ctx, file, res, log)
	}

	return res, nil
}

func (p *Pipeline) progress(ctx context.Context, file *ledger.UploadedFile, res Result, log *logrus.Entry) {
	if p.opts.ProgressEvery <= 0 || res.Total%p.opts.ProgressEvery != 0 {
		return
	}
	log.WithFields(logrus.Fields{
		"rows":      res.Total,
		"processed": res.Processed,
		"skipped":   res.Skipped,
	}).Info("ingestion progress")
	p.publish(ctx, models.EventFileProgress, file, map[string]interface{}{
		"total_rows":     res.Total,
		"processed_rows": res.Processed,
		"skipped_rows":   res.Skipped,
	})
}

// complete persists the outcome before the blob is removed so a failed write
// leaves everything needed for a retry.
func (p *Pipeline) complete(ctx context.Context, file *ledger.UploadedFile, path string, res Result, elapsed time.Duration, log *logrus.Entry) error {
	writeCtx := context.WithoutCancel(ctx)
	err := retry.Do(writeCtx, statusWriteAttempts, statusWriteBackoff, func() error {
		return p.ledger.MarkCompleted(writeCtx, file.ID, res.Processed, res.Total)
	})
	if err != nil {
		log.WithError(err).Error("failed to record completion")
		metrics.FileFailed(res.Processed, res.Skipped)
		return fmt.Errorf("recording completion: %w", err)
	}

	if err := p.blobs.Delete(writeCtx, path); err != nil {
		log.WithError(err).WithField("path", path).Warn("failed to delete ingested upload")
	}

	metrics.FileCompleted(res.Processed, res.Skipped)
	log.WithFields(logrus.Fields{
		"total_rows":     res.Total,
		"processed_rows": res.Processed,
		"skipped_rows":   res.Skipped,
		"inserted":       res.Inserted,
		"updated":        res.Updated,
		"duration_ms":    elapsed.Milliseconds(),
	}).Info("ingestion completed")
	p.publish(writeCtx, models.EventFileCompleted, file, map[string]interface{}{
		"total_rows":     res.Total,
		"processed_rows": res.Processed,
		"skipped_rows":   res.Skipped,
		"inserted":       res.Inserted,
		"updated":        res.Updated,
	})
	return nil
}

func (p *Pipeline) fail(ctx context.Context, file *ledger.UploadedFile, res Result, cause error, log *logrus.Entry) {
	log.WithError(cause).WithFields(logrus.Fields{
		"total_rows":     res.Total,
		"processed_rows": res.Processed,
	}).Error("ingestion failed")

	writeCtx := context.WithoutCancel(ctx)
	err := retry.Do(writeCtx, statusWriteAttempts, statusWriteBackoff, func() error {
		return p.ledger.MarkFailed(writeCtx, file.ID, cause.Error())
	})
	if err != nil {
		log.WithError(err).Error("failed to record failure")
	}

	metrics.FileFailed(res.Processed, res.Skipped)
	p.publish(writeCtx, models.EventFileFailed, file, map[string]interface{}{
		"error":          ledger.TruncateMessage(cause.Error()),
		"total_rows":     res.Total,
		"processed_rows": res.Processed,
	})
}
