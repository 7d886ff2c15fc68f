// Package config loads server configuration from a TOML file with
// ROUTEVIZ_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/azybler/routeviz/pkg/routing"
)

// Config holds routeviz configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Routing RoutingConfig `toml:"routing"`
	Graphs  GraphsConfig  `toml:"graphs"`
	S3      S3Config      `toml:"s3"`
	NATS    NATSConfig    `toml:"nats"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr          string        `toml:"addr"`           // ROUTEVIZ_ADDR
	CORSOrigin    string        `toml:"cors_origin"`    // ROUTEVIZ_CORS_ORIGIN (empty = same-origin)
	MaxConcurrent int           `toml:"max_concurrent"` // 0 = 2x NumCPU
	ReadTimeout   time.Duration `toml:"read_timeout"`
	WriteTimeout  time.Duration `toml:"write_timeout"`
	MaxSessions   int           `toml:"max_sessions"` // ROUTEVIZ_MAX_SESSIONS
}

// RoutingConfig controls pathfinding and point selection.
type RoutingConfig struct {
	DefaultFinder       string  `toml:"default_finder"` // ROUTEVIZ_DEFAULT_FINDER
	HistoryLimit        int     `toml:"history_limit"`  // ROUTEVIZ_HISTORY_LIMIT
	NearestRadius       float64 `toml:"nearest_radius"`
	NearestMaxDoublings int     `toml:"nearest_max_doublings"`
}

// GraphsConfig lists the datasets a session may select.
type GraphsConfig struct {
	Default   string   `toml:"default"`   // ROUTEVIZ_DEFAULT_GRAPH
	Available []string `toml:"available"` // ROUTEVIZ_GRAPHS (comma separated)
	Dir       string   `toml:"dir"`       // ROUTEVIZ_GRAPH_DIR
	Cache     bool     `toml:"cache"`     // keep loaded graphs in memory across sessions
}

// S3Config enables loading datasets from a bucket instead of Dir.
type S3Config struct {
	Bucket   string `toml:"bucket"`   // ROUTEVIZ_S3_BUCKET (enables S3 when set)
	Prefix   string `toml:"prefix"`   // ROUTEVIZ_S3_PREFIX
	Region   string `toml:"region"`   // ROUTEVIZ_S3_REGION
	Endpoint string `toml:"endpoint"` // ROUTEVIZ_S3_ENDPOINT (custom endpoint for MinIO)
}

// NATSConfig enables forwarding session events to NATS.
type NATSConfig struct {
	URL string `toml:"url"` // ROUTEVIZ_NATS_URL (optional, empty = no events)
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `toml:"level"`  // ROUTEVIZ_LOG_LEVEL: debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxSessions:  1000,
		},
		Routing: RoutingConfig{
			DefaultFinder:       string(routing.KindNBA),
			HistoryLimit:        8,
			NearestRadius:       2000,
			NearestMaxDoublings: 32,
		},
		Graphs: GraphsConfig{
			Default:   "amsterdam-roads",
			Available: []string{"amsterdam-roads"},
			Dir:       "data",
			Cache:     true,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, then the TOML file at path (skipped
// when path is empty), then environment overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Addr = envOrDefault("ROUTEVIZ_ADDR", c.Server.Addr)
	c.Server.CORSOrigin = envOrDefault("ROUTEVIZ_CORS_ORIGIN", c.Server.CORSOrigin)
	c.Routing.DefaultFinder = envOrDefault("ROUTEVIZ_DEFAULT_FINDER", c.Routing.DefaultFinder)
	c.Graphs.Default = envOrDefault("ROUTEVIZ_DEFAULT_GRAPH", c.Graphs.Default)
	c.Graphs.Dir = envOrDefault("ROUTEVIZ_GRAPH_DIR", c.Graphs.Dir)
	c.S3.Bucket = envOrDefault("ROUTEVIZ_S3_BUCKET", c.S3.Bucket)
	c.S3.Prefix = envOrDefault("ROUTEVIZ_S3_PREFIX", c.S3.Prefix)
	c.S3.Region = envOrDefault("ROUTEVIZ_S3_REGION", c.S3.Region)
	c.S3.Endpoint = envOrDefault("ROUTEVIZ_S3_ENDPOINT", c.S3.Endpoint)
	c.NATS.URL = envOrDefault("ROUTEVIZ_NATS_URL", c.NATS.URL)
	c.Log.Level = envOrDefault("ROUTEVIZ_LOG_LEVEL", c.Log.Level)

	if v := os.Getenv("ROUTEVIZ_GRAPHS"); v != "" {
		var names []string
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		c.Graphs.Available = names
	}

	for key, dst := range map[string]*int{
		"ROUTEVIZ_HISTORY_LIMIT": &c.Routing.HistoryLimit,
		"ROUTEVIZ_MAX_SESSIONS":  &c.Server.MaxSessions,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate checks that the configuration is usable. An unknown default
// finder is a startup error.
func (c *Config) Validate() error {
	var errs []error
	if _, err := routing.ParseKind(c.Routing.DefaultFinder); err != nil {
		errs = append(errs, fmt.Errorf("routing.default_finder: %w", err))
	}
	if c.Routing.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("routing.history_limit must be at least 1, got %d", c.Routing.HistoryLimit))
	}
	if c.Routing.NearestRadius <= 0 {
		errs = append(errs, fmt.Errorf("routing.nearest_radius must be positive, got %g", c.Routing.NearestRadius))
	}
	if c.Routing.NearestMaxDoublings < 0 {
		errs = append(errs, fmt.Errorf("routing.nearest_max_doublings must not be negative"))
	}
	if len(c.Graphs.Available) == 0 {
		errs = append(errs, errors.New("graphs.available must list at least one graph"))
	} else if !slices.Contains(c.Graphs.Available, c.Graphs.Default) {
		errs = append(errs, fmt.Errorf("graphs.default %q is not in graphs.available", c.Graphs.Default))
	}
	if c.Server.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("server.max_sessions must be at least 1, got %d", c.Server.MaxSessions))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
