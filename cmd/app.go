package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kozaktomas/face-registry/internal/cache"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"github.com/kozaktomas/face-registry/internal/vision"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// Store backends register themselves with the database package.
	_ "github.com/kozaktomas/face-registry/internal/database/postgres"
	_ "github.com/kozaktomas/face-registry/internal/database/redisstore"
	_ "github.com/kozaktomas/face-registry/internal/database/sqlite"
)

// app holds the wired engine shared by all commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    database.Store
	vision   *vision.Limited
	cache    *cache.Cache
	enroller *recognition.Enroller
	verifier *recognition.Verifier
	registry *prometheus.Registry
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if debug, err := cmd.Flags().GetBool("debug"); err == nil && debug {
		cfg.Logging.Debug = true
	}
	if driver, err := cmd.Flags().GetString("store"); err == nil && driver != "" {
		cfg.Store.Driver = driver
	}
	return cfg
}

// openApp connects the store and the vision backend and builds the engine.
// withMetrics registers Prometheus collectors for the serve command.
// overrides adjust the configuration before anything is opened.
func openApp(ctx context.Context, cmd *cobra.Command, withMetrics bool, overrides ...func(*config.Config)) (*app, error) {
	cfg := loadConfig(cmd)
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Debug)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	var recorder metrics.Recorder = metrics.Noop{}
	if withMetrics {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheus(a.registry)
	}

	store, err := database.Open(ctx, &cfg.Store, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	a.store = store

	primitive, err := vision.Open(&cfg.Vision)
	if err != nil {
		store.Close()
		logger.Sync()
		return nil, fmt.Errorf("opening vision backend: %w", err)
	}
	a.vision = primitive

	opts := recognition.OptionsFromConfig(cfg)
	opts.Logger = logger
	opts.Metrics = recorder

	a.cache = cache.New(store, cfg.Cache.TTL,
		cache.WithLogger(logger.Named("cache")),
		cache.WithMetrics(recorder),
		cache.WithIndex(cfg.Match.Index))
	a.enroller = recognition.NewEnroller(store, primitive, opts)
	a.verifier = recognition.NewVerifier(a.cache, primitive, opts)

	logger.Debug("engine ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("vision", cfg.Vision.Driver),
		zap.String("index", cfg.Match.Index),
		zap.Float64("tolerance", cfg.Match.Tolerance),
		zap.Duration("cache_ttl", cfg.Cache.TTL))
	return a, nil
}

// Close releases the store and the vision backend.
func (a *app) Close() {
	if err := a.vision.Close(); err != nil {
		a.logger.Warn("closing vision backend", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	a.logger.Sync()
}

// readImageFiles loads image files for enrollment. The source of each
// image is its file name.
func readImageFiles(paths []string) ([]recognition.Image, error) {
	images := make([]recognition.Image, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		images = append(images, recognition.Image{Source: filepath.Base(path), Data: data})
	}
	return images, nil
}

// outputJSON writes data as indented JSON to stdout.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// printIdentity prints an identity in human-readable form.
func printIdentity(id *recognition.Identity) {
	fmt.Printf("Name:         %s\n", id.Name)
	if id.Description != "" {
		fmt.Printf("Description:  %s\n", id.Description)
	}
	if id.Affiliation != "" {
		fmt.Printf("Affiliation:  %s\n", id.Affiliation)
	}
	fmt.Printf("Images:       %d\n", id.ImageCount)
	for _, s := range id.ImageSources {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Printf("Updated:      %s\n", id.UpdatedAt.Format("2006-01-02"))
	fmt.Printf("Dimensions:   %d\n", id.Dimensions)
}
