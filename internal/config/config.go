package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Supabase SupabaseConfig `yaml:"supabase"`
	Storage  StorageConfig  `yaml:"storage"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Report   ReportConfig   `yaml:"report"`
	LogLevel string         `yaml:"log_level" env:"LOG_LEVEL"`
}

// SupabaseConfig locates the hosted backend. URL and AnonKey reach the
// storage API, DatabaseURL is the project's Postgres connection string.
type SupabaseConfig struct {
	URL         string `yaml:"url" env:"SUPABASE_URL"`
	AnonKey     string `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	DatabaseURL string `yaml:"database_url" env:"SUPABASE_DB_URL"`
}

func (s SupabaseConfig) Configured() bool {
	return s.URL != "" && s.AnonKey != "" && s.DatabaseURL != ""
}

type StorageConfig struct {
	ImageBucket string        `yaml:"image_bucket" env:"STORAGE_IMAGE_BUCKET"`
	AudioBucket string        `yaml:"audio_bucket" env:"STORAGE_AUDIO_BUCKET"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RabbitMQConfig enables story events when URL is set.
type RabbitMQConfig struct {
	URL        string `yaml:"url" env:"RABBITMQ_URL"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type ReportConfig struct {
	Interval    time.Duration `yaml:"interval"`
	RecentLimit int           `yaml:"recent_limit"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Load reads the YAML file at path, expanding ${VARS}, and then applies
// environment overrides. A missing file is fine: everything can come from
// the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Storage.ImageBucket == "" {
		c.Storage.ImageBucket = "story-images"
	}
	if c.Storage.AudioBucket == "" {
		c.Storage.AudioBucket = "story-audio"
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = 60 * time.Second
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "storyteller"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "stories"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "story_events"
	}
	if c.Report.Interval == 0 {
		c.Report.Interval = time.Hour
	}
	if c.Report.RecentLimit == 0 {
		c.Report.RecentLimit = 20
	}
	if c.Report.Timeout == 0 {
		c.Report.Timeout = time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
