package cache

import (
	"context"
	"encoding/json"
	"fmt"

	rediscommon "brokkoli/common/redis"
	"brokkoli/internal/config"
	"brokkoli/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusPublisher appends status change events to a Redis stream
type StatusPublisher struct {
	stream      string
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewStatusPublisher(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *StatusPublisher {
	return &StatusPublisher{
		stream:      cfg.Monitor.Cache.StatusStream,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Publish assigns an event id when missing and XADDs the event
func (p *StatusPublisher) Publish(ctx context.Context, event models.StatusEvent) (string, error) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	msgID, err := rediscommon.PublishJSONToStream(ctx, p.redisClient, p.stream, event)
	if err != nil {
		return "", fmt.Errorf("failed to publish status event: %w", err)
	}

	p.logger.Info("Published status event",
		zap.String("event_id", event.EventID),
		zap.String("entity_id", event.EntityID),
		zap.String("device_status", string(event.DeviceStatus)),
		zap.String("previous_device_status", string(event.PreviousDeviceStatus)),
		zap.String("stream_id", msgID),
	)
	return event.EventID, nil
}

// Recent up to count events, newest first. Undecodable entries are skipped.
func (p *StatusPublisher) Recent(ctx context.Context, count int64) ([]models.StatusEvent, error) {
	msgs, err := rediscommon.ReadLatest(ctx, p.redisClient, p.stream, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read status events: %w", err)
	}

	events := make([]models.StatusEvent, 0, len(msgs))
	for _, msg := range msgs {
		data, _ := msg.Values["data"].(string)
		var event models.StatusEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			p.logger.Warn("Skipping malformed status event",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
