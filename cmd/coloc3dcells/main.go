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

	"github.com/akamensky/argparse"
	"github.com/sirupsen/logrus"

	"github.com/orion-cirb/Coloc-3DCells/pkg/config"
	"github.com/orion-cirb/Coloc-3DCells/pkg/imageio"
	"github.com/orion-cirb/Coloc-3DCells/pkg/metrics"
	"github.com/orion-cirb/Coloc-3DCells/pkg/pipeline"
	"github.com/orion-cirb/Coloc-3DCells/pkg/results"
	"github.com/orion-cirb/Coloc-3DCells/pkg/segment"
)

func main() {
	parser := argparse.NewParser("coloc3dcells", "Detect nuclei and cells in multi-channel stacks and report their colocalization")
	inputDir := parser.String("i", "input", &argparse.Options{Help: "Directory holding one subdirectory per image, each with one subdirectory per channel", Required: true})
	configPath := parser.String("c", "config", &argparse.Options{Help: "YAML configuration file", Default: "coloc3dcells.yaml"})
	outputDir := parser.String("o", "output", &argparse.Options{Help: "Result directory (overrides output.dir)", Default: ""})
	mode := parser.Selector("m", "mode", []string{"", config.ModeCells3D, config.ModeGenes2D}, &argparse.Options{Help: "Analysis to run (overrides mode)", Default: ""})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Images processed at once (overrides processing.workers)", Default: 0})
	metricsAddr := parser.String("", "metrics", &argparse.Options{Help: "Serve Prometheus metrics on this address, e.g. :9100", Default: ""})
	initConfig := parser.Flag("", "init-config", &argparse.Options{Help: "Write a default configuration file and exit", Default: false})
	debugMode := parser.Flag("d", "debug", &argparse.Options{Help: "Enable debug logging", Default: false})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger := initLogger(*debugMode)

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			logger.WithError(err).Fatal("Failed to write default configuration")
		}
		logger.Infof("Default configuration written to %s", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *workers > 0 {
		cfg.Processing.Workers = *workers
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *metricsAddr != "" {
		cfg.Output.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	if !cfg.Output.Verbose && !*debugMode {
		logger.SetLevel(logrus.WarnLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *inputDir, logger); err != nil {
		logger.WithError(err).Error("Batch failed")
		stop()
		os.Exit(1)
	}
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

func run(ctx context.Context, cfg *config.Config, inputDir string, logger *logrus.Logger) error {
	resultsDir := cfg.Output.Dir
	if resultsDir == "" {
		resultsDir = filepath.Join(inputDir, "Results")
	}

	provider := imageio.NewProvider(inputDir, cfg.FallbackCalibration())
	found, err := provider.Images()
	if err != nil {
		return err
	}
	// Overlays of an earlier run live in the result directory
	var images []string
	for _, image := range found {
		if filepath.Clean(filepath.Join(inputDir, image)) != filepath.Clean(resultsDir) {
			images = append(images, image)
		}
	}
	if len(images) == 0 {
		return fmt.Errorf("no images found in %s", inputDir)
	}
	logger.Infof("%d images found in %s", len(images), inputDir)

	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return fmt.Errorf("failed to create result directory: %w", err)
	}

	sink, err := openSinks(cfg, resultsDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.WithError(err).Error("Failed to close results")
		}
	}()

	m := metrics.New()
	if cfg.Output.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.Output.MetricsAddr, Handler: metricsMux(m)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
		defer srv.Close()
		logger.Infof("Serving metrics on %s/metrics", cfg.Output.MetricsAddr)
	}

	params := &pipeline.Params{
		Config:    cfg,
		Source:    provider,
		Segmenter: newSegmenter(cfg, inputDir, logger),
		Logger:    logger,
		Metrics:   m,
	}
	if cfg.Output.SaveObjects {
		params.ObjectsDir = resultsDir
	}
	analysis, err := pipeline.New(params)
	if err != nil {
		return err
	}

	batch := &pipeline.Batch{
		Analysis: analysis,
		Sink:     sink,
		Workers:  cfg.Processing.Workers,
		Logger:   logger,
		Metrics:  m,
	}

	start := time.Now()
	summary, err := batch.Run(ctx, images)
	logger.WithFields(logrus.Fields{
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"elapsed":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("Batch finished")
	return err
}

func newSegmenter(cfg *config.Config, inputDir string, logger *logrus.Logger) segment.Segmenter {
	if cfg.Segmenter.Kind == config.SegmenterCommand {
		return segment.Command{
			Path:   cfg.Segmenter.Command,
			Args:   cfg.Segmenter.Args,
			Logger: logger,
		}
	}
	return segment.Precomputed{Root: inputDir, Suffix: cfg.Segmenter.LabelSuffix}
}

func openSinks(cfg *config.Config, resultsDir string) (results.Sink, error) {
	var sinks results.MultiSink
	if cfg.Output.TSV {
		tsv, err := results.NewTSVSink(resultsDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tsv)
	}
	if cfg.Output.SQLite != "" {
		path := cfg.Output.SQLite
		if !filepath.IsAbs(path) {
			path = filepath.Join(resultsDir, path)
		}
		db, err := results.NewSQLiteSink(path)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, db)
	}
	return sinks, nil
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
