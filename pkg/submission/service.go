package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/skuflow/platform/pkg/blobstore"
	"github.com/skuflow/platform/pkg/common/logger"
	"github.com/skuflow/platform/pkg/ingestion"
	"github.com/skuflow/platform/pkg/ledger"
	"github.com/skuflow/platform/pkg/observability/metrics"
)

var (
	ErrDuplicate   = errors.New("file content already uploaded")
	ErrBlobMissing = errors.New("stored upload no longer available")
)

// DuplicateError carries the record that already holds the checksum.
type DuplicateError struct {
	Existing *ledger.UploadedFile
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s as %s", ErrDuplicate, e.Existing.ID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

type Ledger interface {
	Create(ctx context.Context, file *ledger.UploadedFile) error
	Get(ctx context.Context, id uuid.UUID) (*ledger.UploadedFile, error)
	FindByChecksum(ctx context.Context, checksum string) (*ledger.UploadedFile, error)
	ListRecent(ctx context.Context, limit int) ([]ledger.UploadedFile, error)
	ListByStatus(ctx context.Context, statuses ...string) ([]ledger.UploadedFile, error)
}

type Blobs interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Scheduler starts ingestion runs out of band; *ingestion.Runner satisfies it.
type Scheduler interface {
	Submit(fileID uuid.UUID, path string) (<-chan error, error)
}

type Options struct {
	Lint      bool
	Delimiter rune
}

type Service struct {
	validator *Validator
	ledger    Ledger
	blobs     Blobs
	scheduler Scheduler
	opts      Options
}

func NewService(validator *Validator, l Ledger, blobs Blobs, scheduler Scheduler, opts Options) *Service {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	return &Service{validator: validator, ledger: l, blobs: blobs, scheduler: scheduler, opts: opts}
}

// Submit accepts an upload and schedules its ingestion. Content that was
// already accepted is rejected with a *DuplicateError before anything is
// stored.
func (s *Service) Submit(ctx context.Context, fileName string, data []byte) (*ledger.UploadedFile, error) {
	if err := s.validator.Validate(fileName, int64(len(data))); err != nil {
		return nil, err
	}

	checksum := blobstore.Checksum(data)
	existing, err := s.ledger.FindByChecksum(ctx, checksum)
	switch {
	case err == nil:
		metrics.FileDuplicate()
		return nil, &DuplicateError{Existing: existing}
	case !errors.Is(err, ledger.ErrNotFound):
		return nil, fmt.Errorf("checking checksum: %w", err)
	}

	if s.opts.Lint {
		if err := lint(data, s.opts.Delimiter); err != nil {
			return nil, err
		}
	}

	path, err := s.blobs.Put(ctx, fileName, data)
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	file := &ledger.UploadedFile{
		ID:          uuid.New(),
		FileName:    fileName,
		Checksum:    checksum,
		StoragePath: path,
		Status:      ledger.StatusPending,
	}
	if err := s.ledger.Create(ctx, file); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), path); delErr != nil {
			logger.Log.WithError(delErr).WithField("path", path).Warn("failed to remove orphaned upload")
		}
		if errors.Is(err, ledger.ErrDuplicateChecksum) {
			metrics.FileDuplicate()
			if existing, findErr := s.ledger.FindByChecksum(ctx, checksum); findErr == nil {
				return nil, &DuplicateError{Existing: existing}
			}
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("persisting uploaded file: %w", err)
	}

	metrics.FileSubmitted()
	logger.ForFile(file.ID).WithFields(map[string]interface{}{
		"file_name": fileName,
		"checksum":  checksum,
		"bytes":     len(data),
	}).Info("upload accepted")

	if _, err := s.scheduler.Submit(file.ID, path); err != nil {
		// The record stays pending; Retry or ResumeUnfinished picks it up.
		logger.ForFile(file.ID).WithError(err).Error("failed to schedule ingestion")
	}
	return file, nil
}

// Retry schedules another run for a file whose upload is still stored.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*ledger.UploadedFile, error) {
	file, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.StoragePath == "" {
		return nil, ErrBlobMissing
	}
	ok, err := s.blobs.Exists(ctx, file.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("checking stored upload: %w", err)
	}
	if !ok {
		return nil, ErrBlobMissing
	}

	if _, err := s.scheduler.Submit(file.ID, file.StoragePath); err != nil {
		return nil, err
	}
	logger.ForFile(file.ID).WithField("previous_status", file.Status).Info("ingestion retry scheduled")
	return file, nil
}

// ResumeUnfinished reschedules files left pending or processing, typically by
// a restart. Returns how many were scheduled.
func (s *Service) ResumeUnfinished(ctx context.Context) (int, error) {
	files, err := s.ledger.ListByStatus(ctx, ledger.StatusPending, ledger.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("listing unfinished files: %w", err)
	}

	scheduled := 0
	for _, file := range files {
		_, err := s.Retry(ctx, file.ID)
		switch {
		case err == nil:
			scheduled++
		case errors.Is(err, ingestion.ErrAlreadyRunning):
		default:
			logger.ForFile(file.ID).WithError(err).Warn("could not resume ingestion")
		}
	}
	return scheduled, nil
}

func (s *Service) Status(ctx context.Context, id uuid.UUID) (*ledger.UploadedFile, error) {
	return s.ledger.Get(ctx, id)
}

func (s *Service) Recent(ctx context.Context, limit int) ([]ledger.UploadedFile, error) {
	return s.ledger.ListRecent(ctx, limit)
}
