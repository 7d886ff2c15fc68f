package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/azybler/routeviz/pkg/api"
	"github.com/azybler/routeviz/pkg/config"
	"github.com/azybler/routeviz/pkg/events"
	"github.com/azybler/routeviz/pkg/loader"
	"github.com/azybler/routeviz/pkg/routing"
	"github.com/azybler/routeviz/pkg/session"
	"github.com/azybler/routeviz/pkg/spatial"
)

var (
	configPath string
	addr       string
	graphDir   string
	corsOrigin string
)

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Serve route planning sessions over HTTP",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to TOML config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	rootCmd.Flags().StringVar(&graphDir, "graph-dir", "", "Directory of *.graph.bin datasets (overrides config)")
	rootCmd.Flags().StringVar(&corsOrigin, "cors-origin", "", "CORS allowed origin (empty = same-origin)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = addr
	}
	if cmd.Flags().Changed("graph-dir") {
		cfg.Graphs.Dir = graphDir
	}
	if cmd.Flags().Changed("cors-origin") {
		cfg.Server.CORSOrigin = corsOrigin
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	graphs, err := newLoader(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	finder, _ := routing.ParseKind(cfg.Routing.DefaultFinder) // checked by config.Validate
	manager := session.NewManager(session.Options{
		Loader:        graphs,
		Publisher:     publisher,
		Logger:        logger,
		DefaultGraph:  cfg.Graphs.Default,
		DefaultFinder: finder,
		Graphs:        cfg.Graphs.Available,
		HistoryLimit:  cfg.Routing.HistoryLimit,
		Nearest: spatial.NearestOptions{
			InitialRadius: cfg.Routing.NearestRadius,
			MaxDoublings:  cfg.Routing.NearestMaxDoublings,
		},
	}, cfg.Server.MaxSessions)
	defer manager.Close()

	serverCfg := api.DefaultConfig(cfg.Server.Addr)
	serverCfg.CORSOrigin = cfg.Server.CORSOrigin
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	if cfg.Server.MaxConcurrent > 0 {
		serverCfg.MaxConcurrent = cfg.Server.MaxConcurrent
	}

	handlers := api.NewHandlers(manager, api.Catalog{
		DefaultGraph:  cfg.Graphs.Default,
		Graphs:        cfg.Graphs.Available,
		DefaultFinder: finder,
	}, logger)
	srv := api.NewServer(serverCfg, handlers)

	logger.Info("routeviz ready",
		"graphs", cfg.Graphs.Available, "default_graph", cfg.Graphs.Default,
		"default_finder", finder, "max_sessions", cfg.Server.MaxSessions)
	if err := api.ListenAndServe(srv, logger); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// newLoader picks S3 when a bucket is configured, the graph directory
// otherwise.
func newLoader(ctx context.Context, cfg *config.Config) (loader.Loader, error) {
	var l loader.Loader
	if cfg.S3.Bucket != "" {
		s3l, err := loader.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region, cfg.S3.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("s3 loader: %w", err)
		}
		slog.Info("loading graphs from s3", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
		l = s3l
	} else {
		slog.Info("loading graphs from directory", "dir", cfg.Graphs.Dir)
		l = loader.NewDirLoader(cfg.Graphs.Dir)
	}
	if cfg.Graphs.Cache {
		l = loader.NewCached(l)
	}
	return l, nil
}

func newPublisher(cfg config.NATSConfig, logger *slog.Logger) (events.Publisher, error) {
	if cfg.URL == "" {
		return &events.NoopPublisher{}, nil
	}
	p, err := events.NewNATSPublisher(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	logger.Info("publishing session events", "nats", cfg.URL)
	return p, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
