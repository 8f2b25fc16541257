package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shivanishrees/malscan/internal/domain/scoring"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Storage struct {
		// Driver selects the record store: memory | sqlite | mysql | postgres.
		Driver                  string `yaml:"driver"`
		SQLitePath              string `yaml:"sqlite_path"`
		RecordTTLHours          int    `yaml:"record_ttl_hours"`
		EvictionIntervalMinutes int    `yaml:"eviction_interval_minutes"`
		QuarantineDir           string `yaml:"quarantine_dir"`
		UploadDir               string `yaml:"upload_dir"`
		ReconstructedDir        string `yaml:"reconstructed_dir"`
	} `yaml:"storage"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	AI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"ai"`

	// APIKeys maps client name → key; empty disables authentication.
	APIKeys map[string]string `yaml:"api_keys"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refill_rate"`
	} `yaml:"ratelimit"`

	// ReputationSeed points at a YAML hash-reputation file for the
	// threat_intel module.
	ReputationSeed string `yaml:"reputation_seed"`

	// AllowedTypes restricts uploads; empty allows everything.
	AllowedTypes []string `yaml:"allowed_types"`

	Scoring scoring.Config `yaml:"scoring"`
}

// Default returns the built-in configuration used when no config file is
// available.
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Storage.Driver = "memory"
	c.Storage.SQLitePath = "data/malscan.db"
	c.Storage.RecordTTLHours = 24
	c.Storage.EvictionIntervalMinutes = 5
	c.Storage.QuarantineDir = "quarantine"
	c.Storage.UploadDir = "uploads"
	c.Storage.ReconstructedDir = "reconstructed"
	c.RateLimit.Capacity = 20
	c.RateLimit.RefillRate = 5
	c.Scoring = scoring.Default()
	return &c
}

// Load reads the YAML config file. A missing file falls back to the
// built-in defaults rather than failing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	// An empty scoring section still gets the built-in module set.
	if len(cfg.Scoring.Modules) == 0 {
		cfg.Scoring = scoring.Default()
	}
	return cfg, nil
}

// RecordTTL converts the configured retention to a duration.
func (c *Config) RecordTTL() time.Duration {
	if c.Storage.RecordTTLHours <= 0 {
		return 0
	}
	return time.Duration(c.Storage.RecordTTLHours) * time.Hour
}

// EvictionInterval is how often the store sweeps expired records.
func (c *Config) EvictionInterval() time.Duration {
	if c.Storage.EvictionIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Storage.EvictionIntervalMinutes) * time.Minute
}

// MySQLDSN builds the DSN for the mysql driver.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the DSN for the pq driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
