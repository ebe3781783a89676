package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"brokkoli/common/database"
	mqttcommon "brokkoli/common/mqtt"
	rediscommon "brokkoli/common/redis"
	"brokkoli/internal/cache"
	"brokkoli/internal/config"
	"brokkoli/internal/consumer"
	"brokkoli/internal/httpapi"
	"brokkoli/internal/repository"
	"brokkoli/internal/service"
	"brokkoli/internal/source"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// App owns the infrastructure around the monitor service
type App struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	monitor      *service.MonitorService
	mqttConsumer *consumer.MQTTStateConsumer
	restPoller   *consumer.RESTPoller
	server       *http.Server
}

// NewApp connects Postgres, Redis and, depending on the source mode, the MQTT
// broker and the host API client.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgresDB(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient, err := rediscommon.Connect(ctx, &cfg.Redis)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	repo := repository.NewEntityRepository(db, logger)
	kv := cache.NewRedisKVStore(redisClient)
	events := cache.NewStatusPublisher(cfg, redisClient, logger)
	monitor := service.NewMonitorService(
		cfg,
		repo,
		cache.NewStateManager(cfg, kv, logger),
		cache.NewReadModelCache(cfg, kv, logger),
		events,
		logger,
	)

	a := &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		monitor:     monitor,
	}

	if cfg.UsesMQTT() {
		mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
		}
		a.mqttClient = mqttClient
		a.mqttConsumer = consumer.NewMQTTStateConsumer(cfg, mqttClient, monitor, logger)
	}
	if cfg.UsesREST() {
		client := source.NewRESTClient(&cfg.HostAPI, logger)
		a.restPoller = consumer.NewRESTPoller(cfg, client, monitor, logger)
	}

	router := httpapi.NewRouter(logger)
	router.RegisterHealthRoutes()
	router.RegisterMonitorRoutes(httpapi.NewMonitorHandler(monitor, logger))
	router.RegisterEventRoutes(httpapi.NewEventHandler(events, logger))
	a.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

// Start loads the entities and blocks until ctx is done or a component fails
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("Starting brokkoli monitor",
		zap.String("source_mode", a.config.Monitor.SourceMode),
		zap.String("http_addr", a.config.HTTP.Addr),
	)

	if err := a.monitor.Load(ctx); err != nil {
		return err
	}

	errChan := make(chan error, 4)
	go func() { errChan <- a.monitor.Run(ctx) }()

	if a.mqttConsumer != nil {
		go func() {
			if err := a.mqttConsumer.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}
	if a.restPoller != nil {
		go func() {
			if err := a.restPoller.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Stop shuts down the HTTP server and closes all connections
func (a *App) Stop(ctx context.Context) error {
	a.logger.Info("Stopping brokkoli monitor")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error shutting down http server", zap.Error(err))
	}

	if a.mqttConsumer != nil {
		if err := a.mqttConsumer.Stop(ctx); err != nil {
			a.logger.Error("Error stopping mqtt consumer", zap.Error(err))
		}
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}

	select {
	case <-a.monitor.Done():
		a.monitor.Close()
	case <-shutdownCtx.Done():
		a.logger.Warn("Monitor scheduler did not stop in time")
	}

	a.closeStores()
	a.logger.Info("Brokkoli monitor stopped")
	return nil
}

func (a *App) closeStores() {
	if a.redisClient != nil {
		if err := rediscommon.Close(a.redisClient); err != nil {
			a.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Error("Error closing database connection", zap.Error(err))
		}
	}
}
