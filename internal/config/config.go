package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL    string `env:"RABBITMQ_URL,required=true"`
	RedisURL       string `env:"REDIS_URL,required=true"`
	MailGatewayURL string `env:"MAIL_GATEWAY_URL,required=true"`

	// Connection guard tuning.
	ReconnectDelaySec   int `env:"RECONNECT_DELAY_SEC,default=30"`
	AllowedFailureCount int `env:"ALLOWED_FAILURE_COUNT,default=3"`
	CircuitBreakSec     int `env:"CIRCUIT_BREAK_SEC,default=60"`
	ConnectTimeoutSec   int `env:"CONNECT_TIMEOUT_SEC,default=20"`
	HeartbeatSec        int `env:"HEARTBEAT_SEC,default=30"`

	// Broker topology. Defaults match the names the platform already uses;
	// override only when pointing at a shared broker with different wiring.
	NotificationExchange string `env:"NOTIFICATION_EXCHANGE,default=NotificationExchange"`
	HealthbookExchange   string `env:"HEALTHBOOK_EXCHANGE,default=HealthbookExchange"`
	NotificationQueue    string `env:"NOTIFICATION_QUEUE,default=notification_queue"`
	EmailQueue           string `env:"EMAIL_QUEUE,default=notification_email_queue"`
	HealthbookQueue      string `env:"HEALTHBOOK_QUEUE,default=notification-healthbook-create"`
	PushRoutingKey       string `env:"PUSH_ROUTING_KEY,default=notification-routing-key"`
	EmailRoutingKey      string `env:"EMAIL_ROUTING_KEY,default=notification-email-key"`
	HealthbookRoutingKey string `env:"HEALTHBOOK_ROUTING_KEY,default=healthbook-reminder"`

	PublishChunkSize int    `env:"PUBLISH_CHUNK_SIZE,default=100"`
	ConsumerPrefetch int    `env:"CONSUMER_PREFETCH,default=8"`
	RateLimitPerSec  int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	NotiTypeID       string `env:"HEALTHBOOK_NOTI_TYPE_ID,default=3bb17b2e-4f35-4e56-a8dc-1c31f2466ed7"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySec) * time.Second
}

func (c *Config) BreakDuration() time.Duration {
	return time.Duration(c.CircuitBreakSec) * time.Second
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSec) * time.Second
}
