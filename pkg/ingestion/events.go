package ingestion

import (
	"context"
	"time"

	"github.com/skuflow/platform/pkg/common/logger"
	"github.com/skuflow/platform/pkg/ledger"
)

// Publisher receives the pipeline's lifecycle and progress events.
// *kafka.Producer satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

const publishTimeout = 5 * time.Second

func (p *Pipeline) publish(ctx context.Context, eventType string, file *ledger.UploadedFile, data map[string]interface{}) {
	if p.events == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["file_id"] = file.ID.String()
	data["file_name"] = file.FileName

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.events.PublishEvent(ctx, eventType, p.opts.Source, data); err != nil {
		logger.ForFile(file.ID).WithError(err).WithField("event_type", eventType).Warn("failed to publish ingestion event")
	}
}
