package service

import (
	"encoding/json"
	"time"

	"github.com/clickwise/attributor/internal/app/model"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// AttributionPublisher publishes attribution audit events to NATS JetStream.
type AttributionPublisher struct {
	js nats.JetStreamContext
}

// NewAttributionPublisher creates a new audit event publisher.
func NewAttributionPublisher(js nats.JetStreamContext) *AttributionPublisher {
	return &AttributionPublisher{js: js}
}

// Publish emits one audit event describing a completed lead pass.
func (p *AttributionPublisher) Publish(leadID int, result *model.AttributionResult, conversionUploaded bool) error {
	event := model.AttributionEvent{
		ID:                 uuid.New().String(),
		LeadID:             leadID,
		Source:             result.Source,
		ClickIDKind:        result.ClickIDKind,
		ClickID:            result.ClickID,
		ConversionUploaded: conversionUploaded,
		Timestamp:          time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.AttributionStreamSubject, data)
	return err
}
