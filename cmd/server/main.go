package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/fishmate-api/internal/config"
	"github.com/Brownie44l1/fishmate-api/internal/handlers"
	"github.com/Brownie44l1/fishmate-api/internal/logging"
	"github.com/Brownie44l1/fishmate-api/internal/metrics"
	"github.com/Brownie44l1/fishmate-api/internal/model"
	"github.com/Brownie44l1/fishmate-api/internal/store"
	"github.com/Brownie44l1/fishmate-api/internal/zones"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "fishmate-server",
		Short:         "Fish species prediction and fishing zone API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configFile)
			if err != nil {
				return err
			}
			logging.Setup(settings.Log.Level, settings.Log.Pretty)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings)
		},
	}
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a config file (default ./config.yaml)")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, settings *config.Settings) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	modelPath := resolve(root, settings.Model.Path)
	metadataPath := settings.Model.MetadataPath
	if metadataPath != "" {
		metadataPath = resolve(root, metadataPath)
	}

	log.Info().Str("model", modelPath).Msg("loading fish prediction model")
	predictor := model.New(model.Config{
		ModelPath:    modelPath,
		MetadataPath: metadataPath,
		ImageSize:    settings.Model.ImageSize,
		TopK:         settings.Model.TopK,
		MaxPixels:    settings.Model.MaxPixels,
		Labels:       settings.Model.Labels,
		MockSpecies:  settings.Mock.Species,
		MockLatency:  settings.Mock.Latency,
		Open:         model.ONNXOpener(settings.Model.RuntimeLibrary),
	})
	defer func() {
		if err := predictor.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to release model")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}
	m.SetModelMode(string(predictor.Mode()))

	analyzer := zones.NewAnalyzer(zones.Options{
		Seed:      uint64(settings.Zones.Seed),
		NInit:     settings.Zones.NInit,
		MaxIter:   settings.Zones.MaxIter,
		Tolerance: zones.DefaultOptions().Tolerance,
	})
	h := handlers.NewHandler(predictor, analyzer, store.New(settings.Datasets.TTL, settings.Datasets.MaxEntries), handlers.Options{
		DefaultK:     settings.Zones.DefaultK,
		HeatmapLimit: settings.Zones.HeatmapLimit,
		Metrics:      m,
	})
	e := handlers.NewServer(h, handlers.ServerConfig{CORSOrigins: settings.Server.CORSOrigins})

	addr := ":" + settings.Server.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("model_type", string(predictor.Mode())).
			Strs("endpoints", []string{
				"GET /", "GET /health", "POST /upload_csv", "GET /predict_pfz",
				"GET /pfz_heatmap", "POST /predict_fish", "POST /predict_fish/tensor", "GET /metrics",
			}).
			Msg("server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// projectRoot is the working directory, or the repository root when started
// from inside cmd/server.
func projectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	if filepath.Base(wd) == "server" && filepath.Base(filepath.Dir(wd)) == "cmd" {
		wd = filepath.Join(wd, "..", "..")
	}
	return wd, nil
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
