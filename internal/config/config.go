package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the service.
type Config struct {
	Env      string `mapstructure:"env"`
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	StoreDriver   string `mapstructure:"store_driver"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	MongoRetries  int    `mapstructure:"mongo_retries"`
	DBDSN         string `mapstructure:"db_dsn"`

	RedisAddr    string        `mapstructure:"redis_addr"`
	RedisDB      int           `mapstructure:"redis_db"`
	RoomCacheTTL time.Duration `mapstructure:"room_cache_ttl"`

	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	OTLPEndpoint string `mapstructure:"otel_exporter_otlp_endpoint"`

	HistoryLimit     int64         `mapstructure:"history_limit"`
	RoomRetention    time.Duration `mapstructure:"room_retention"`
	WSSendBuffer     int           `mapstructure:"ws_send_buffer"`
	WSMaxMessageSize int64         `mapstructure:"ws_max_message_size"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	DebugRoutes      bool          `mapstructure:"debug_routes"`
}

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

var defaults = map[string]any{
	"env":                         "local",
	"port":                        "8083",
	"log_level":                   "info",
	"store_driver":                StoreMongo,
	"mongo_uri":                   "mongodb://localhost:27017",
	"mongo_database":              "chatapp",
	"mongo_retries":               3,
	"db_dsn":                      "",
	"redis_addr":                  "",
	"redis_db":                    0,
	"room_cache_ttl":              "30s",
	"amqp_url":                    "",
	"amqp_exchange":               "chat.events",
	"otel_exporter_otlp_endpoint": "",
	"history_limit":               100,
	"room_retention":              "720h",
	"ws_send_buffer":              256,
	"ws_max_message_size":         65536,
	"allowed_origins":             "",
	"debug_routes":                false,
}

// Load reads configuration from the environment, seeded from envFile when it exists.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.AllowedOrigins = splitList(v.GetString("allowed_origins"))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.HistoryLimit <= 0 {
		return errors.New("history limit must be positive")
	}
	if c.WSSendBuffer <= 0 {
		return errors.New("ws send buffer must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
