package consumer

import (
	"context"
	"errors"
	"time"

	"brokkoli/internal/config"
	"brokkoli/internal/source"

	"go.uber.org/zap"
)

// RESTPoller pull feed of the host state store: every interval it fetches the
// state of each bound source and hands it to the sink
type RESTPoller struct {
	interval time.Duration
	client   StateFetcher
	sink     StateSink
	logger   *zap.Logger
}

// NewRESTPoller creates the poller
func NewRESTPoller(cfg *config.Config, client StateFetcher, sink StateSink, logger *zap.Logger) *RESTPoller {
	interval := cfg.Monitor.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RESTPoller{
		interval: interval,
		client:   client,
		sink:     sink,
		logger:   logger,
	}
}

// Start polls once and then on every tick until ctx is done
func (p *RESTPoller) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting REST poller",
		zap.Duration("interval", p.interval),
	)

	if _, err := p.PollOnce(ctx); err != nil {
		p.logger.Error("Failed to poll sources on startup", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				p.logger.Error("Failed to poll sources", zap.Error(err))
			}
		}
	}
}

// PollOnce returns how many states were applied
func (p *RESTPoller) PollOnce(ctx context.Context) (int, error) {
	ids, err := p.sink.BoundSources(ctx)
	if err != nil {
		return 0, err
	}

	successCount := 0
	errorCount := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return successCount, nil
		default:
		}

		state, err := p.client.FetchState(ctx, id)
		if err != nil {
			if errors.Is(err, source.ErrSourceNotFound) {
				p.logger.Debug("Source not registered on host", zap.String("source_id", id))
			} else {
				p.logger.Error("Failed to fetch source state",
					zap.String("source_id", id),
					zap.Error(err),
				)
				errorCount++
			}
			continue
		}
		if err := p.sink.ApplySourceState(ctx, state); err != nil {
			p.logger.Error("Failed to apply source state",
				zap.String("source_id", id),
				zap.Error(err),
			)
			errorCount++
			continue
		}
		successCount++
	}

	p.logger.Debug("Polled sources",
		zap.Int("success_count", successCount),
		zap.Int("error_count", errorCount),
	)
	return successCount, nil
}
