package config

import (
	"strings"
	"time"

	redisclient "github.com/vietddude/librarian/internal/infra/redis"
	"github.com/vietddude/librarian/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Database    postgres.Config    `yaml:"database"`
	Redis       redisclient.Config `yaml:"redis"`
	Maintenance MaintenanceConfig  `yaml:"maintenance"`
	Requests    EndpointConfig     `yaml:"requests"`
	Listings    ListingsConfig     `yaml:"listings"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MaintenanceConfig controls the chapter image task.
type MaintenanceConfig struct {
	CachePath  string        `yaml:"cache_path"`
	ImagesPath string        `yaml:"images_path"`
	RunAt      string        `yaml:"run_at"`      // HH:MM local time
	MaxRuntime time.Duration `yaml:"max_runtime"` // 0 = no limit
	LockTTL    time.Duration `yaml:"lock_ttl"`

	Extractor ExtractorConfig `yaml:"extractor"`
}

// ExtractorConfig describes the external command that renders chapter images.
// Args may use {input} and {output} placeholders.
type ExtractorConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

// EndpointConfig describes an external provider reachable through one of
// several base URLs. Disabled or empty means unreachable.
type EndpointConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URLs         []string      `yaml:"urls"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	ProbePath    string        `yaml:"probe_path"`
	ProbeGRPC    bool          `yaml:"probe_grpc"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	CacheTTL     time.Duration `yaml:"cache_ttl"`  // selected endpoint cache, 0 = probe every call
}

// Reachable reports whether the endpoint may be probed at all.
func (c EndpointConfig) Reachable() bool {
	if !c.Enabled {
		return false
	}
	for _, u := range c.URLs {
		if strings.TrimSpace(u) != "" {
			return true
		}
	}
	return false
}

// ListingsConfig configures the TV listings provider.
type ListingsConfig struct {
	EndpointConfig `yaml:",inline"`

	CountriesTTL time.Duration `yaml:"countries_ttl"`
}
