package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/weiawesome/wes-io-community/chat-service/internal/kafka"
	pkgconfig "github.com/weiawesome/wes-io-community/pkg/config"
	"github.com/weiawesome/wes-io-community/pkg/database"
	"github.com/weiawesome/wes-io-community/pkg/jwt"
	"github.com/weiawesome/wes-io-community/pkg/log"
	"github.com/weiawesome/wes-io-community/pkg/pubsub"
	"github.com/weiawesome/wes-io-community/pkg/storage"
)

type Config struct {
	Server      ServerConfig
	WebSocket   WebSocketConfig
	Auth        jwt.Config
	Database    database.Config
	Store       StoreConfig
	Presence    PresenceConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Bus         pubsub.Config
	Kafka       kafka.Config
	Storage     storage.Config
	Attachments AttachmentConfig
	Log         log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// StoreConfig bounds every ledger call.
type StoreConfig struct {
	Timeout time.Duration
}

type PresenceConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

type AttachmentConfig struct {
	MaxSize   int64         `mapstructure:"max_size"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	// Override from environment
	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":           "PORT",
		"auth.jwt_secret":       "JWT_SECRET",
		"auth.public_key_pem":   "JWT_PUBLIC_KEY",
		"auth.issuer":           "JWT_ISSUER",
		"database.driver":       "DATABASE_DRIVER",
		"database.host":         "DATABASE_HOST",
		"database.port":         "DATABASE_PORT",
		"database.user":         "DATABASE_USER",
		"database.password":     "DATABASE_PASSWORD",
		"database.dbname":       "DATABASE_NAME",
		"database.file_path":    "DATABASE_FILE_PATH",
		"redis.address":         "REDIS_ADDRESS",
		"redis.password":        "REDIS_PASSWORD",
		"bus.driver":            "BUS_DRIVER",
		"kafka.enabled":         "KAFKA_ENABLED",
		"kafka.brokers":         "KAFKA_BROKERS",
		"kafka.topic":           "KAFKA_TOPIC",
		"storage.driver":        "STORAGE_DRIVER",
		"storage.s3.endpoint":   "S3_ENDPOINT",
		"storage.s3.bucket":     "S3_BUCKET",
		"storage.s3.public_url": "S3_PUBLIC_URL",
		"storage.s3.prefix":     "S3_PREFIX",
		"log.level":             "LOG_LEVEL",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Store.Timeout = pkgconfig.Duration(v, "store.timeout", 5*time.Second)
	cfg.Presence.SweepInterval = pkgconfig.Duration(v, "presence.sweep_interval", 60*time.Second)
	cfg.Presence.StaleAfter = pkgconfig.Duration(v, "presence.stale_after", 300*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 30*time.Second)
	cfg.Attachments.URLExpiry = pkgconfig.Duration(v, "attachments.url_expiry", time.Hour)

	// The bus shares the cache's Redis unless configured separately.
	if cfg.Bus.Redis.Address == "" {
		cfg.Bus.Redis.Address = cfg.Redis.Address
		cfg.Bus.Redis.Password = cfg.Redis.Password
		cfg.Bus.Redis.DB = cfg.Redis.DB
	}
	if cfg.Bus.Kafka.Brokers == "" {
		cfg.Bus.Kafka.Brokers = cfg.Kafka.Brokers
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.rate_limit", 10)
	v.SetDefault("websocket.rate_burst", 20)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "wes-io-live")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "./data/community.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("store.timeout", "5s")
	v.SetDefault("presence.sweep_interval", "60s")
	v.SetDefault("presence.stale_after", "300s")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.prefix", "chat:cache")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("bus.driver", "none")
	v.SetDefault("bus.kafka.group_id", "chat-gateway")
	v.SetDefault("bus.kafka.partitions", 8)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "community-chat-events")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./data/attachments")
	v.SetDefault("storage.local.url_prefix", "/attachments")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("attachments.max_size", 10<<20)
	v.SetDefault("attachments.url_expiry", "1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chat-service")
}
