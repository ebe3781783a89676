package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"brokkoli/common/config"
	"brokkoli/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// RESTClient pulls single states from the host REST API (GET /api/states/{id})
type RESTClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewRESTClient builds a client with bearer auth and retries
func NewRESTClient(cfg *config.HostAPIConfig, logger *zap.Logger) *RESTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json")

	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &RESTClient{
		httpClient: client,
		logger:     logger,
	}
}

// FetchState returns ErrSourceNotFound on 404
func (c *RESTClient) FetchState(ctx context.Context, sourceID string) (models.SourceState, error) {
	var state models.SourceState
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&state).
		Get("/api/states/" + url.PathEscape(sourceID))
	if err != nil {
		return models.SourceState{}, fmt.Errorf("failed to fetch state %s: %w", sourceID, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return models.SourceState{}, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	case resp.IsError():
		return models.SourceState{}, fmt.Errorf("host api returned HTTP %d for %s", resp.StatusCode(), sourceID)
	}

	if state.SourceID == "" {
		state.SourceID = sourceID
	}

	c.logger.Debug("Fetched source state",
		zap.String("source_id", sourceID),
		zap.String("state", string(state.State)),
	)
	return state, nil
}
