// Package config loads the service configuration from the environment and an optional .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"example.com/leadimport/internal/database"
	"example.com/leadimport/internal/importjob"
	"example.com/leadimport/internal/mapping"
)

// Config holds every setting of the lead import service.
type Config struct {
	Port string

	ValidationServiceURL string
	EnrichmentServiceURL string
	CollaboratorTimeout  time.Duration

	NATSURL       string
	Database      database.Config
	SchedulesFile string

	MatchThreshold   float64
	SuggestThreshold float64
	BatchSize        int
}

// Load reads envFile when it exists and then builds the Config from the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("No %s file loaded (%v), using environment variables only.", envFile, err)
		}
	}

	cfg := Config{
		Port:                 getEnv("PORT", "8081"),
		ValidationServiceURL: getEnv("VALIDATION_SERVICE_URL", "http://localhost:8082"),
		EnrichmentServiceURL: getEnv("ENRICHMENT_SERVICE_URL", "http://localhost:8083"),
		NATSURL:              getEnv("NATS_URL", ""),
		SchedulesFile:        getEnv("SCHEDULES_FILE", ""),
		Database: database.Config{
			Driver:   getEnv("DB_DRIVER", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "leads"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "leads.db"),
		},
	}

	var err error
	if cfg.MatchThreshold, err = getFloat("MATCH_THRESHOLD", mapping.DefaultAcceptThreshold); err != nil {
		return Config{}, err
	}
	if cfg.SuggestThreshold, err = getFloat("SUGGEST_THRESHOLD", mapping.DefaultSuggestThreshold); err != nil {
		return Config{}, err
	}
	if cfg.BatchSize, err = getInt("IMPORT_BATCH_SIZE", importjob.DefaultBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.CollaboratorTimeout, err = getDuration("COLLABORATOR_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that the environment parsing cannot.
func (c Config) Validate() error {
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be between 0 and 1, got %v", c.MatchThreshold)
	}
	if c.SuggestThreshold < 0 || c.SuggestThreshold > 1 {
		return fmt.Errorf("SUGGEST_THRESHOLD must be between 0 and 1, got %v", c.SuggestThreshold)
	}
	if c.SuggestThreshold > c.MatchThreshold {
		return fmt.Errorf("SUGGEST_THRESHOLD (%v) must not exceed MATCH_THRESHOLD (%v)", c.SuggestThreshold, c.MatchThreshold)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.CollaboratorTimeout <= 0 {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must be positive, got %s", c.CollaboratorTimeout)
	}
	switch c.Database.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	return nil
}

// Detector returns a mapping detector with the configured thresholds.
func (c Config) Detector() *mapping.Detector {
	d := mapping.NewDetector()
	d.AcceptThreshold = c.MatchThreshold
	d.SuggestThreshold = c.SuggestThreshold
	return d
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
