package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"brokkoli/internal/config"
	"brokkoli/internal/models"

	"go.uber.org/zap"
)

// MQTTStateConsumer push feed of the host state store.
// Topic format: {prefix}/{source_id}; the payload is either a JSON state
// object or the bare state text.
type MQTTStateConsumer struct {
	config     *config.Config
	mqttClient Subscriber
	sink       StateSink
	logger     *zap.Logger
}

// NewMQTTStateConsumer creates the consumer
func NewMQTTStateConsumer(
	cfg *config.Config,
	mqttClient Subscriber,
	sink StateSink,
	logger *zap.Logger,
) *MQTTStateConsumer {
	return &MQTTStateConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		sink:       sink,
		logger:     logger,
	}
}

// Start subscribes and blocks until ctx is done
func (c *MQTTStateConsumer) Start(ctx context.Context) error {
	topic := c.config.Monitor.StateTopic
	if err := c.mqttClient.Subscribe(topic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to state topic: %w", err)
	}

	c.logger.Info("MQTT state consumer started",
		zap.String("topic", topic),
	)

	<-ctx.Done()
	return nil
}

// Stop unsubscribes
func (c *MQTTStateConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Monitor.StateTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("MQTT state consumer stopped")
	return nil
}

func (c *MQTTStateConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	state, err := ParseStateMessage(topic, payload)
	if err != nil {
		c.logger.Warn("Dropping malformed state message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.sink.ApplySourceState(ctx, state); err != nil {
		c.logger.Error("Failed to apply source state",
			zap.String("source_id", state.SourceID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to apply state: %w", err)
	}
	return nil
}

// ParseStateMessage decodes one MQTT state message
func ParseStateMessage(topic string, payload []byte) (models.SourceState, error) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	topicID := parts[len(parts)-1]
	if len(parts) < 2 || topicID == "" {
		return models.SourceState{}, fmt.Errorf("invalid topic format: %s", topic)
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var state models.SourceState
		if err := json.Unmarshal(trimmed, &state); err != nil {
			return models.SourceState{}, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		if state.SourceID == "" {
			state.SourceID = topicID
		}
		return state, nil
	}

	return models.SourceState{
		SourceID: topicID,
		State:    models.StateText(trimmed),
	}, nil
}
