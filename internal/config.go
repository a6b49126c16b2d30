package internal

import (
	"fmt"
	"time"

	"github.com/DINO060/mediasink/internal/acquire"
	"github.com/DINO060/mediasink/internal/api"
	"github.com/DINO060/mediasink/internal/database"
	"github.com/DINO060/mediasink/internal/plugin/ytdlp"
	"github.com/DINO060/mediasink/internal/quota"
	"github.com/DINO060/mediasink/internal/storage"
	"github.com/ilyakaznacheev/cleanenv"
)

type (
	// RedisConfig covers the single redis instance backing both the
	// content cache and the submission rate limiter.
	RedisConfig struct {
		Addr     string `yaml:"address" env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	}

	RateLimitConfig struct {
		SubmitLimit  int           `yaml:"submit_limit" env:"RATE_LIMIT_SUBMIT" env-default:"10"`
		SubmitWindow time.Duration `yaml:"submit_window" env:"RATE_LIMIT_WINDOW" env-default:"60s"`
	}

	SourcesConfig struct {
		Ytdlp ytdlp.Config `yaml:"ytdlp"`
	}

	// MediasinkConfig is the struct used to contain the various user
	// config supplied by file, or manually inside the code.
	MediasinkConfig struct {
		Rest      api.RestConfig  `yaml:"api"`
		Database  database.Config `yaml:"database" env-required:"true"`
		Redis     RedisConfig     `yaml:"redis"`
		Storage   storage.Config  `yaml:"storage" env-required:"true"`
		Acquire   acquire.Config  `yaml:"acquire"`
		Quota     quota.Config    `yaml:"quota"`
		RateLimit RateLimitConfig `yaml:"rate_limit"`
		Sources   SourcesConfig   `yaml:"sources"`
	}
)

// LoadFromFile loads a YAML configuration file in to a
// MediasinkConfig, applying environment overrides on top.
func (config *MediasinkConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return nil
}

// LoadFromEnv populates the config purely from the environment, used
// when no config file path is provided.
func (config *MediasinkConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return nil
}
