package config

import (
	"os"
	"strconv"
	"time"

	"brokkoli/common/config"
)

// Source feed modes
const (
	SourceModeMQTT = "mqtt"
	SourceModeREST = "rest"
	SourceModeBoth = "both"
)

// Config monitor service configuration
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	HostAPI  config.HostAPIConfig

	Monitor struct {
		// SourceMode how the host state store is fed: mqtt, rest or both
		SourceMode string
		// StateTopic MQTT topic filter carrying source states
		StateTopic string
		// PollInterval REST poll interval
		PollInterval time.Duration
		// CycleInterval periodic full update cycle
		CycleInterval time.Duration

		Cache struct {
			StateKeyPrefix     string // persisted thresholds and bindings
			ReadModelKeyPrefix string
			ReadModelTTL       time.Duration // 0 = no expiry
			StatusStream       string
		}
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the environment
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "brokkoli"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "brokkoli-monitor"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.HostAPI.BaseURL = "http://localhost:8123"
	cfg.HostAPI.Timeout = 10 * time.Second
	cfg.HostAPI.LoadFromEnv("HOST_API")

	cfg.Monitor.SourceMode = getEnv("SOURCE_MODE", SourceModeMQTT)
	switch cfg.Monitor.SourceMode {
	case SourceModeMQTT, SourceModeREST, SourceModeBoth:
	default:
		cfg.Monitor.SourceMode = SourceModeMQTT
	}
	cfg.Monitor.StateTopic = getEnv("MQTT_STATE_TOPIC", "homeassistant/state/#")
	cfg.Monitor.PollInterval = getEnvSeconds("HOST_POLL_INTERVAL", 30)
	cfg.Monitor.CycleInterval = getEnvSeconds("CYCLE_INTERVAL", 60)

	cfg.Monitor.Cache.StateKeyPrefix = getEnv("STATE_KEY_PREFIX", "brokkoli:state:")
	cfg.Monitor.Cache.ReadModelKeyPrefix = getEnv("READMODEL_KEY_PREFIX", "brokkoli:entity:")
	cfg.Monitor.Cache.StatusStream = getEnv("STATUS_STREAM", "brokkoli:status")
	if v, err := strconv.Atoi(getEnv("READMODEL_TTL", "0")); err == nil && v >= 0 {
		cfg.Monitor.Cache.ReadModelTTL = time.Duration(v) * time.Second
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return time.Duration(defaultSeconds) * time.Second
}

// UsesMQTT the MQTT feed is enabled
func (c *Config) UsesMQTT() bool {
	return c.Monitor.SourceMode == SourceModeMQTT || c.Monitor.SourceMode == SourceModeBoth
}

// UsesREST the REST poller is enabled
func (c *Config) UsesREST() bool {
	return c.Monitor.SourceMode == SourceModeREST || c.Monitor.SourceMode == SourceModeBoth
}
