package submission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/skuflow/platform/pkg/common/kafka"
	"github.com/skuflow/platform/pkg/common/logger"
	"github.com/skuflow/platform/pkg/common/models"
	"github.com/skuflow/platform/pkg/ingestion"
	"github.com/skuflow/platform/pkg/ledger"
)

// HandleRetryEvent turns a catalog.file.retry command into a Retry. Commands
// that can never succeed are committed and dropped.
func (s *Service) HandleRetryEvent(ctx context.Context, event models.Event) error {
	if event.Type != models.EventFileRetry {
		return kafka.ErrSkipEvent
	}

	raw, _ := event.Data["file_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.Log.WithField("event_id", event.ID).Warn("retry command without a valid file_id")
		return kafka.ErrSkipEvent
	}

	_, err = s.Retry(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ErrBlobMissing), errors.Is(err, ingestion.ErrAlreadyRunning):
		logger.ForFile(id).WithError(err).Warn("retry command dropped")
		return kafka.ErrSkipEvent
	}
	return err
}
