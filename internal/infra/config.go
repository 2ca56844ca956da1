package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"listinglens/internal/domain"
)

// Config represents application configuration loaded from environment
// variables.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	MaxConcurrent     int           `env:"QUEUE_MAX_CONCURRENT" envDefault:"3"`
	MaxQueueSize      int           `env:"QUEUE_MAX_SIZE" envDefault:"50"`
	ProcessingTimeout time.Duration `env:"QUEUE_PROCESSING_TIMEOUT" envDefault:"2m"`

	BoostStarter      int `env:"QUEUE_BOOST_STARTER" envDefault:"10"`
	BoostProfessional int `env:"QUEUE_BOOST_PROFESSIONAL" envDefault:"20"`
	BoostEnterprise   int `env:"QUEUE_BOOST_ENTERPRISE" envDefault:"30"`

	EnhanceProvider string        `env:"ENHANCE_PROVIDER" envDefault:"synthetic"`
	EnhanceBaseURL  string        `env:"ENHANCE_BASE_URL"`
	EnhanceAPIKey   string        `env:"ENHANCE_API_KEY"`
	EnhanceModel    string        `env:"ENHANCE_MODEL" envDefault:"image-edit-large"`
	EnhanceTimeout  time.Duration `env:"ENHANCE_TIMEOUT" envDefault:"90s"`

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"3m"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RateLimitPerMin  int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`
}

// LoadConfig parses configuration from the environment and validates the
// admission parameters.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("QUEUE_MAX_CONCURRENT must be positive, got %d", cfg.MaxConcurrent)
	}
	if cfg.MaxQueueSize < 0 {
		return nil, fmt.Errorf("QUEUE_MAX_SIZE must not be negative, got %d", cfg.MaxQueueSize)
	}
	if cfg.ProcessingTimeout <= 0 {
		return nil, fmt.Errorf("QUEUE_PROCESSING_TIMEOUT must be positive, got %s", cfg.ProcessingTimeout)
	}

	return &cfg, nil
}

// PriorityBoost builds the tier boost map for the admission queue. Free stays
// at the zero baseline.
func (c *Config) PriorityBoost() map[domain.Tier]int {
	return map[domain.Tier]int{
		domain.TierFree:         0,
		domain.TierStarter:      c.BoostStarter,
		domain.TierProfessional: c.BoostProfessional,
		domain.TierEnterprise:   c.BoostEnterprise,
	}
}
