package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/talkstream/talkstream/internal/audio"
	"github.com/talkstream/talkstream/internal/capture"
	"github.com/talkstream/talkstream/internal/config"
	"github.com/talkstream/talkstream/internal/controller"
	"github.com/talkstream/talkstream/internal/gemini"
	"github.com/talkstream/talkstream/internal/metrics"
	"github.com/talkstream/talkstream/internal/notify"
	"github.com/talkstream/talkstream/internal/server"
	"github.com/talkstream/talkstream/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "talkstream"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	modeFlag := flag.String("mode", "", "Capture mode override (none, screen, window, camera)")
	autoStart := flag.Bool("start", false, "Start a session immediately")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *modeFlag != "" {
		if _, err := capture.ParseMode(*modeFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid mode: %v\n", err)
			os.Exit(1)
		}
		cfg.Capture.DefaultMode = *modeFlag
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("default_mode", cfg.Capture.DefaultMode),
		slog.Int("fps", cfg.Capture.FPS),
		slog.Int("queue_capacity", cfg.Capture.QueueCapacity),
		slog.Int("input_sample_rate", cfg.Audio.InputSampleRate),
		slog.Int("output_sample_rate", cfg.Audio.OutputSampleRate),
		slog.Float64("speaking_timeout", cfg.Audio.SpeakingTimeout),
		slog.Bool("api_key_present", cfg.Gemini.APIKey != ""),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics on a dedicated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	// Session transport
	dial := func(ctx context.Context) (session.Transport, error) {
		return gemini.Dial(ctx, gemini.Config{
			Endpoint:          cfg.Gemini.Endpoint,
			APIKey:            cfg.Gemini.APIKey,
			Model:             cfg.Gemini.Model,
			SystemInstruction: cfg.Gemini.SystemInstruction,
			ConnectTimeout:    cfg.Gemini.GetConnectTimeout(),
			MaxRetries:        cfg.Gemini.MaxRetries,
		}, logger)
	}

	// Frame sources
	sources := capture.NewFactory(capture.FactoryConfig{
		Display:     cfg.Capture.Display,
		JPEGQuality: cfg.Capture.JPEGQuality,
	})

	// Audio devices, opened per session
	audioIO := func() (audio.Capturer, audio.Player, error) {
		mic, err := audio.NewMicCapturer(audio.MicConfig{
			SampleRate:  cfg.Audio.InputSampleRate,
			ChunkMillis: cfg.Audio.GetChunkDurationMillis(),
		})
		if err != nil {
			return nil, nil, err
		}

		spk, err := audio.NewSpeakerPlayer(audio.SpeakerConfig{
			SampleRate: cfg.Audio.OutputSampleRate,
		})
		if err != nil {
			mic.Close()
			return nil, nil, err
		}

		return mic, spk, nil
	}

	notifier := notify.NewDesktop(logger)

	ctrl := controller.New(controller.Config{
		FPS:             cfg.Capture.FPS,
		QueueCapacity:   cfg.Capture.QueueCapacity,
		SpeakingTimeout: cfg.Audio.GetSpeakingTimeout(),
		DefaultMode:     cfg.Capture.GetDefaultMode(),
	}, dial, sources, audioIO, notifier, appMetrics, logger)
	logger.Info("Session controller initialized")

	// Control API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, ctrl, appMetrics, registry)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start control API server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Optional immediate session start (hotkey launchers pass -start)
	if *autoStart {
		if err := ctrl.Toggle(cfg.Capture.GetDefaultMode()); err != nil {
			logger.Error("Initial session start failed", slog.String("error", err.Error()))
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop the control API first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping control API server", slog.String("error", err.Error()))
		}
	}

	// Stop the active session, waiting out any in-flight transition
	for {
		err := ctrl.Stop()
		if err == nil {
			break
		}
		if !errors.Is(err, controller.ErrBusy) {
			logger.Error("Error stopping session", slog.String("error", err.Error()))
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
