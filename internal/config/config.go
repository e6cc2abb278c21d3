package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

type Config struct {
	TransportURL   string `env:"TRANSPORT_URL,required=true"`
	CredentialsDir string `env:"CREDENTIALS_DIR,default=./session"`
	WebhookURL     string `env:"WEBHOOK_URL,required=true"`
	SearchAPIURL   string `env:"SEARCH_API_URL,required=true"`
	SearchAPIKey   string `env:"SEARCH_API_KEY,required=true"`
	SearchQuery    string `env:"SEARCH_QUERY,required=true"`
	TriggerPhrases string `env:"TRIGGER_PHRASES,required=true"`
	RedisURL       string `env:"REDIS_URL,default="`

	GateTTLMinutes       int `env:"GATE_TTL_MINUTES,default=30"`
	SweepIntervalMinutes int `env:"SWEEP_INTERVAL_MINUTES,default=5"`

	DeliveryMaxAttempts    int `env:"DELIVERY_MAX_ATTEMPTS,default=3"`
	DeliveryBackoffSeconds int `env:"DELIVERY_BACKOFF_SECONDS,default=2"`
	DeliveryTimeoutSeconds int `env:"DELIVERY_TIMEOUT_SECONDS,default=10"`

	ReconnectBaseSeconds int `env:"RECONNECT_BASE_SECONDS,default=5"`
	ReconnectMaxSeconds  int `env:"RECONNECT_MAX_SECONDS,default=60"`

	BatchMaxSize        int `env:"BATCH_MAX_SIZE,default=50"`
	SendDelayMinSeconds int `env:"SEND_DELAY_MIN_SECONDS,default=25"`
	SendDelayMaxSeconds int `env:"SEND_DELAY_MAX_SECONDS,default=30"`

	FetchPageSize            int `env:"FETCH_PAGE_SIZE,default=10"`
	FetchMaxPages            int `env:"FETCH_MAX_PAGES,default=10"`
	FetchForwardDelaySeconds int `env:"FETCH_FORWARD_DELAY_SECONDS,default=5"`
	FetchIntervalMinutes     int `env:"FETCH_INTERVAL_MINUTES,default=30"`

	APIPort     int    `env:"API_PORT,default=8080"`
	MetricsPort int    `env:"METRICS_PORT,default=9090"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Triggers()) == 0 {
		return fmt.Errorf("TRIGGER_PHRASES must contain at least one phrase")
	}
	if c.SendDelayMaxSeconds < c.SendDelayMinSeconds {
		return fmt.Errorf("SEND_DELAY_MAX_SECONDS (%d) must be >= SEND_DELAY_MIN_SECONDS (%d)",
			c.SendDelayMaxSeconds, c.SendDelayMinSeconds)
	}
	return nil
}

// Triggers splits the configured trigger phrases on commas, dropping blanks.
func (c *Config) Triggers() []string {
	parts := strings.Split(c.TriggerPhrases, ",")
	phrases := make([]string, 0, len(parts))
	for _, part := range parts {
		if phrase := strings.TrimSpace(part); phrase != "" {
			phrases = append(phrases, phrase)
		}
	}
	return phrases
}
