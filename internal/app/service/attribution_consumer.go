package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clickwise/attributor/internal/app/model"
	apprepository "github.com/clickwise/attributor/internal/app/repository"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// AttributionConsumer consumes audit events from NATS JetStream and persists
// them so attribution outcomes survive process restarts.
type AttributionConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   apprepository.AttributionEventRepository
}

// NewAttributionConsumer creates a new audit event consumer.
func NewAttributionConsumer(js nats.JetStreamContext, logger *zap.Logger, repo apprepository.AttributionEventRepository) *AttributionConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttributionConsumer{js: js, logger: logger, repo: repo}
}

// Start ensures the stream and durable consumer exist, then begins consuming.
func (c *AttributionConsumer) Start() error {
	_, err := c.js.StreamInfo(model.AttributionStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.AttributionStreamName,
			Subjects: []string{model.AttributionStreamSubject},
			MaxBytes: model.AttributionStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.AttributionStreamName, model.AttributionConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.AttributionStreamName, &nats.ConsumerConfig{
			Durable:   model.AttributionConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.AttributionStreamSubject, model.AttributionConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *AttributionConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var event model.AttributionEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				c.logger.Error("failed to unmarshal attribution event", zap.Error(err))
				msg.Nak()
				continue
			}

			if err := c.repo.Create(ctx, &event); err != nil {
				c.logger.Error("failed to store attribution event",
					zap.String("id", event.ID),
					zap.Int("lead_id", event.LeadID),
					zap.Error(err))
				msg.Nak()
				continue
			}

			c.logger.Debug("attribution event stored",
				zap.String("id", event.ID),
				zap.Int("lead_id", event.LeadID),
				zap.String("source", string(event.Source)),
			)

			msg.Ack()
		}
	}
}
