// Package config loads deepscan settings from an optional YAML file and
// DEEPSCAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// MiB is one mebibyte.
const MiB = 1024 * 1024

// Config is the full client configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Scan    ScanConfig    `yaml:"scan"`
	Upload  UploadConfig  `yaml:"upload"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

type APIConfig struct {
	BaseURL      string        `yaml:"base_url" envconfig:"DEEPSCAN_API_URL" default:"http://localhost:8001/api"`
	GeminiAPIKey string        `yaml:"gemini_api_key" envconfig:"DEEPSCAN_GEMINI_API_KEY"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"DEEPSCAN_API_TIMEOUT" default:"60s"`
}

type ScanConfig struct {
	Model         string `yaml:"model" envconfig:"DEEPSCAN_MODEL" default:"gemini-2.5-flash"`
	Speed         string `yaml:"speed" envconfig:"DEEPSCAN_SPEED" default:"balanced"`
	RelevanceMode string `yaml:"relevance_mode" envconfig:"DEEPSCAN_RELEVANCE_MODE" default:"normal"`
	Pro           bool   `yaml:"pro" envconfig:"DEEPSCAN_PRO" default:"false"`

	// Default page range of standard scans, 1-indexed and inclusive. Zero
	// leaves that end open.
	PageStart int `yaml:"page_start" envconfig:"DEEPSCAN_PAGE_START" default:"0"`
	PageEnd   int `yaml:"page_end" envconfig:"DEEPSCAN_PAGE_END" default:"0"`
}

type UploadConfig struct {
	ChunkSize int64 `yaml:"chunk_size" envconfig:"DEEPSCAN_UPLOAD_CHUNK_SIZE" default:"5242880"`
	// Share of the displayed progress bar reserved for byte transfer.
	ProgressLo float64 `yaml:"progress_lo" envconfig:"DEEPSCAN_UPLOAD_PROGRESS_LO" default:"0"`
	ProgressHi float64 `yaml:"progress_hi" envconfig:"DEEPSCAN_UPLOAD_PROGRESS_HI" default:"60"`
}

type HistoryConfig struct {
	DBPath string        `yaml:"db_path" envconfig:"DEEPSCAN_HISTORY_DB"`
	TTL    time.Duration `yaml:"ttl" envconfig:"DEEPSCAN_HISTORY_TTL" default:"5m"`
}

type LogConfig struct {
	Path  string `yaml:"path" envconfig:"DEEPSCAN_LOG_PATH"`
	Debug bool   `yaml:"debug" envconfig:"DEEPSCAN_LOG_DEBUG" default:"false"`
}

// Load reads the YAML file at path (skipped when path is empty or missing),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	// envconfig fills defaults first so the file only needs the keys it changes.
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
			// Environment wins over the file.
			if err := overlayEnv(&cfg); err != nil {
				return nil, err
			}
		}
	}

	if cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(StateDir(), "history.sqlite")
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = filepath.Join(StateDir(), "deepscan.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// overlayEnv re-applies only the variables that are actually set.
func overlayEnv(cfg *Config) error {
	var env Config
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	set := func(name string) bool {
		_, ok := os.LookupEnv("DEEPSCAN_" + name)
		return ok
	}
	if set("API_URL") {
		cfg.API.BaseURL = env.API.BaseURL
	}
	if set("GEMINI_API_KEY") {
		cfg.API.GeminiAPIKey = env.API.GeminiAPIKey
	}
	if set("API_TIMEOUT") {
		cfg.API.Timeout = env.API.Timeout
	}
	if set("MODEL") {
		cfg.Scan.Model = env.Scan.Model
	}
	if set("SPEED") {
		cfg.Scan.Speed = env.Scan.Speed
	}
	if set("RELEVANCE_MODE") {
		cfg.Scan.RelevanceMode = env.Scan.RelevanceMode
	}
	if set("PRO") {
		cfg.Scan.Pro = env.Scan.Pro
	}
	if set("PAGE_START") {
		cfg.Scan.PageStart = env.Scan.PageStart
	}
	if set("PAGE_END") {
		cfg.Scan.PageEnd = env.Scan.PageEnd
	}
	if set("UPLOAD_CHUNK_SIZE") {
		cfg.Upload.ChunkSize = env.Upload.ChunkSize
	}
	if set("UPLOAD_PROGRESS_LO") {
		cfg.Upload.ProgressLo = env.Upload.ProgressLo
	}
	if set("UPLOAD_PROGRESS_HI") {
		cfg.Upload.ProgressHi = env.Upload.ProgressHi
	}
	if set("HISTORY_DB") {
		cfg.History.DBPath = env.History.DBPath
	}
	if set("HISTORY_TTL") {
		cfg.History.TTL = env.History.TTL
	}
	if set("LOG_PATH") {
		cfg.Log.Path = env.Log.Path
	}
	if set("LOG_DEBUG") {
		cfg.Log.Debug = env.Log.Debug
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("invalid api timeout: %s", c.API.Timeout)
	}
	switch c.Scan.Speed {
	case "thorough", "balanced", "fast":
	default:
		return fmt.Errorf("invalid speed: %s (thorough, balanced or fast)", c.Scan.Speed)
	}
	if c.Scan.RelevanceMode != "normal" && c.Scan.RelevanceMode != "strict" {
		return fmt.Errorf("invalid relevance mode: %s (normal or strict)", c.Scan.RelevanceMode)
	}
	if start, end := c.Scan.PageStart, c.Scan.PageEnd; start < 0 || end < 0 || (start > 0 && end > 0 && start > end) {
		return fmt.Errorf("invalid page range: %d-%d", start, end)
	}
	if c.Upload.ChunkSize < 1 {
		return fmt.Errorf("invalid upload chunk size: %d", c.Upload.ChunkSize)
	}
	lo, hi := c.Upload.ProgressLo, c.Upload.ProgressHi
	if lo < 0 || hi > 100 || lo > hi {
		return fmt.Errorf("invalid upload progress range: [%g, %g]", lo, hi)
	}
	if c.History.TTL <= 0 {
		return fmt.Errorf("invalid history ttl: %s", c.History.TTL)
	}
	return nil
}

// StateDir returns the directory for the history mirror and log file.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "deepscan")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "deepscan")
}
