package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings read from the environment.
type Config struct {
	Addr           string
	LogLevel       string
	LogFormat      string
	ParallelSearch bool
	Heartbeat      time.Duration
	RandomSeed     uint64
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:           ":8080",
		LogLevel:       "info",
		LogFormat:      "console",
		ParallelSearch: true,
		Heartbeat:      15 * time.Second,
	}
}

// Load reads the optional env files (".env" when none are given) and then
// the TTT_* environment variables. Variables already set win over files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if v, ok := lookup("TTT_ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := lookup("TTT_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup("TTT_LOG_FORMAT"); ok && v != "" {
		if v != "console" && v != "json" {
			return cfg, fmt.Errorf("TTT_LOG_FORMAT: want console or json, got %q", v)
		}
		cfg.LogFormat = v
	}
	if v, ok := lookup("TTT_PARALLEL_SEARCH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("TTT_PARALLEL_SEARCH: %w", err)
		}
		cfg.ParallelSearch = b
	}
	if v, ok := lookup("TTT_HEARTBEAT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("TTT_HEARTBEAT: %w", err)
		}
		if d <= 0 {
			return cfg, fmt.Errorf("TTT_HEARTBEAT: must be positive, got %s", d)
		}
		cfg.Heartbeat = d
	}
	if v, ok := lookup("TTT_RANDOM_SEED"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("TTT_RANDOM_SEED: %w", err)
		}
		cfg.RandomSeed = n
	}
	return cfg, nil
}
