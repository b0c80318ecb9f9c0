// Package config loads engine configuration from an optional YAML file with
// environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Environment  string `yaml:"environment"`
	LogLevel     string `yaml:"log_level"`
	DatabasePath string `yaml:"database_path"`

	// Collaborative filtering knobs.
	MinSimilarity  float64 `yaml:"min_similarity"`
	MinCommonItems int     `yaml:"min_common_items"`
	NeighborLimit  int     `yaml:"neighbor_limit"`

	// Confidence and blending knobs.
	MediumConfidence float64 `yaml:"medium_confidence"`
	HighConfidence   float64 `yaml:"high_confidence"`
	BlendSaturation  int     `yaml:"blend_saturation"`

	// Training knobs.
	MinTrainingRecords int    `yaml:"min_training_records"`
	RetrainSchedule    string `yaml:"retrain_schedule"`
}

// DefaultConfig returns the baked-in defaults used when neither the file nor
// the environment overrides a value.
func DefaultConfig() *Config {
	return &Config{
		Environment:        "development",
		LogLevel:           "info",
		DatabasePath:       "sommelier.db",
		MinSimilarity:      0.3,
		MinCommonItems:     2,
		NeighborLimit:      50,
		MediumConfidence:   0.5,
		HighConfidence:     0.7,
		BlendSaturation:    20,
		MinTrainingRecords: 1,
		RetrainSchedule:    "0 3 * * *",
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path (skipped when path is empty or the file is absent), then environment
// variables.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	config.Environment = getEnv("ENVIRONMENT", config.Environment)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.DatabasePath = getEnv("DATABASE_PATH", config.DatabasePath)
	config.MinSimilarity = getEnvAsFloat("MIN_SIMILARITY", config.MinSimilarity)
	config.MinCommonItems = getEnvAsInt("MIN_COMMON_ITEMS", config.MinCommonItems)
	config.NeighborLimit = getEnvAsInt("NEIGHBOR_LIMIT", config.NeighborLimit)
	config.MediumConfidence = getEnvAsFloat("MEDIUM_CONFIDENCE", config.MediumConfidence)
	config.HighConfidence = getEnvAsFloat("HIGH_CONFIDENCE", config.HighConfidence)
	config.BlendSaturation = getEnvAsInt("BLEND_SATURATION", config.BlendSaturation)
	config.MinTrainingRecords = getEnvAsInt("MIN_TRAINING_RECORDS", config.MinTrainingRecords)
	config.RetrainSchedule = getEnv("RETRAIN_SCHEDULE", config.RetrainSchedule)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.MinSimilarity < -1 || c.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be in [-1, 1], got %v", c.MinSimilarity)
	}
	if c.MinCommonItems < 1 {
		return fmt.Errorf("min_common_items must be at least 1, got %d", c.MinCommonItems)
	}
	if c.MediumConfidence > c.HighConfidence {
		return fmt.Errorf("medium_confidence %v exceeds high_confidence %v", c.MediumConfidence, c.HighConfidence)
	}
	if c.BlendSaturation < 1 {
		return fmt.Errorf("blend_saturation must be at least 1, got %d", c.BlendSaturation)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
