package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/routeviz/pkg/routing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, string(routing.KindNBA), cfg.Routing.DefaultFinder)
	assert.Equal(t, 8, cfg.Routing.HistoryLimit)
	assert.Equal(t, 2000.0, cfg.Routing.NearestRadius)
	assert.Equal(t, "amsterdam-roads", cfg.Graphs.Default)
	assert.Empty(t, cfg.S3.Bucket)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routeviz.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9000"
read_timeout = "2s"

[routing]
default_finder = "astar-uni"
history_limit = 3

[graphs]
default = "delhi-roads"
available = ["amsterdam-roads", "delhi-roads"]
dir = "/srv/graphs"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, "astar-uni", cfg.Routing.DefaultFinder)
	assert.Equal(t, 3, cfg.Routing.HistoryLimit)
	assert.Equal(t, "delhi-roads", cfg.Graphs.Default)
	assert.Equal(t, []string{"amsterdam-roads", "delhi-roads"}, cfg.Graphs.Available)
	assert.Equal(t, "/srv/graphs", cfg.Graphs.Dir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ROUTEVIZ_ADDR", ":7070")
	t.Setenv("ROUTEVIZ_DEFAULT_FINDER", "dijkstra")
	t.Setenv("ROUTEVIZ_GRAPHS", "a-roads, b-roads")
	t.Setenv("ROUTEVIZ_DEFAULT_GRAPH", "b-roads")
	t.Setenv("ROUTEVIZ_HISTORY_LIMIT", "2")
	t.Setenv("ROUTEVIZ_S3_BUCKET", "graphs")
	t.Setenv("ROUTEVIZ_NATS_URL", "nats://localhost:4222")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "dijkstra", cfg.Routing.DefaultFinder)
	assert.Equal(t, []string{"a-roads", "b-roads"}, cfg.Graphs.Available)
	assert.Equal(t, "b-roads", cfg.Graphs.Default)
	assert.Equal(t, 2, cfg.Routing.HistoryLimit)
	assert.Equal(t, "graphs", cfg.S3.Bucket)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadBadIntEnv(t *testing.T) {
	t.Setenv("ROUTEVIZ_HISTORY_LIMIT", "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"unknown finder", func(c *Config) { c.Routing.DefaultFinder = "bogus" }, routing.ErrUnknownAlgorithm},
		{"zero history", func(c *Config) { c.Routing.HistoryLimit = 0 }, nil},
		{"default graph not listed", func(c *Config) { c.Graphs.Default = "elsewhere" }, nil},
		{"no graphs", func(c *Config) { c.Graphs.Available = nil }, nil},
		{"bad radius", func(c *Config) { c.Routing.NearestRadius = 0 }, nil},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}
