package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultPort         = 8096
	defaultTimeout      = 30 * time.Second
	defaultProbeTimeout = 5 * time.Second
	defaultProbePath    = "/api/v1/status"
	defaultRunAt        = "02:00"
	defaultMaxRuntime   = 4 * time.Hour
	defaultLockTTL      = 2 * time.Minute
	defaultCountriesTTL = 7 * 24 * time.Hour
)

// One frame every five minutes of runtime.
var defaultExtractorArgs = []string{
	"-hide_banner", "-loglevel", "error",
	"-i", "{input}",
	"-vf", "fps=1/300,scale=320:-1",
	"{output}/%03d.jpg",
}

// DefaultCachePath returns the cache directory using XDG_CACHE_HOME.
func DefaultCachePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "librarian")
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	if c.Maintenance.RunAt != "" {
		if _, err := time.Parse("15:04", c.Maintenance.RunAt); err != nil {
			return fmt.Errorf("invalid maintenance.run_at %q: %w", c.Maintenance.RunAt, err)
		}
	}
	if c.Requests.RateLimit < 0 || c.Listings.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	m := &cfg.Maintenance
	if m.CachePath == "" {
		m.CachePath = DefaultCachePath()
	}
	if m.ImagesPath == "" {
		m.ImagesPath = filepath.Join(m.CachePath, "chapters")
	}
	if m.RunAt == "" {
		m.RunAt = defaultRunAt
	}
	if m.MaxRuntime == 0 {
		m.MaxRuntime = defaultMaxRuntime
	}
	if m.LockTTL == 0 {
		m.LockTTL = defaultLockTTL
	}
	if m.Extractor.Command == "" {
		m.Extractor.Command = "ffmpeg"
		if len(m.Extractor.Args) == 0 {
			m.Extractor.Args = defaultExtractorArgs
		}
	}
	if m.Extractor.Timeout == 0 {
		m.Extractor.Timeout = 2 * time.Minute
	}

	endpointDefaults(&cfg.Requests, defaultProbePath)
	endpointDefaults(&cfg.Listings.EndpointConfig, "/20141201/status")
	if cfg.Listings.CountriesTTL == 0 {
		cfg.Listings.CountriesTTL = defaultCountriesTTL
	}
}

func endpointDefaults(e *EndpointConfig, probePath string) {
	if e.Timeout == 0 {
		e.Timeout = defaultTimeout
	}
	if e.ProbeTimeout == 0 {
		e.ProbeTimeout = defaultProbeTimeout
	}
	if e.ProbePath == "" {
		e.ProbePath = probePath
	}
}
