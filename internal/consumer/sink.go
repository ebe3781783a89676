package consumer

import (
	"context"

	mqttcommon "brokkoli/common/mqtt"
	"brokkoli/internal/models"
)

// StateSink receives source states; the monitor service implements it
type StateSink interface {
	ApplySourceState(ctx context.Context, state models.SourceState) error
	BoundSources(ctx context.Context) ([]string, error)
}

// Subscriber the part of the MQTT client the consumer uses
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// StateFetcher pulls one state from the host API
type StateFetcher interface {
	FetchState(ctx context.Context, sourceID string) (models.SourceState, error)
}
