package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Page-size modes for the results table.
const (
	PageSizeDefault = "default"
	PageSizeMaximum = "maximum"
)

// Session recycle granularities.
const (
	RecyclePerDate = "perDate"
	RecyclePerRace = "perRace"
	RecycleNever   = "never"
)

// Config holds extraction engine configuration.
type Config struct {
	CatalogPath  string // file path or http(s) URL of the race catalog CSV
	OutputDir    string
	OutputFormat string // csv, json, or dual

	MaxRetries int           // retry budget per remote interaction
	RetryDelay time.Duration // fixed delay between attempts

	ShortTimeout time.Duration // clickability / single-element waits
	LongTimeout  time.Duration // full-table reloads and page transitions

	PageSizeMode      string
	PaginationEnabled bool
	RecycleMode       string

	Headless    bool
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults matching the live widget's
// observed behavior.
func DefaultConfig() *Config {
	return &Config{
		CatalogPath:       "data/urls/all_ironman_races.csv",
		OutputDir:         "data/results/races",
		OutputFormat:      "csv",
		MaxRetries:        3,
		RetryDelay:        500 * time.Millisecond,
		ShortTimeout:      10 * time.Second,
		LongTimeout:       30 * time.Second,
		PageSizeMode:      PageSizeMaximum,
		PaginationEnabled: true,
		RecycleMode:       RecyclePerDate,
		Headless:          true,
		MetricsAddr:       "",
		Verbose:           false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.CatalogPath == "" {
		return fmt.Errorf("catalog path cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.ShortTimeout <= 0 {
		return fmt.Errorf("short timeout must be positive")
	}
	if c.LongTimeout <= 0 {
		return fmt.Errorf("long timeout must be positive")
	}
	if c.LongTimeout < c.ShortTimeout {
		return fmt.Errorf("long timeout (%s) cannot be below short timeout (%s)", c.LongTimeout, c.ShortTimeout)
	}
	switch c.PageSizeMode {
	case PageSizeDefault, PageSizeMaximum:
	default:
		return fmt.Errorf("page size mode must be %s or %s", PageSizeDefault, PageSizeMaximum)
	}
	switch c.RecycleMode {
	case RecyclePerDate, RecyclePerRace, RecycleNever:
	default:
		return fmt.Errorf("recycle mode must be %s, %s, or %s", RecyclePerDate, RecyclePerRace, RecycleNever)
	}
	return nil
}

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvBool reads a boolean environment override.
func EnvBool(key string) (bool, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}
