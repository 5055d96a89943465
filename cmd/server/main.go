package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rakeshkurakula/voice-training-app/internal/audio"
	"github.com/rakeshkurakula/voice-training-app/internal/config"
	"github.com/rakeshkurakula/voice-training-app/internal/metrics"
	"github.com/rakeshkurakula/voice-training-app/internal/server"
	"github.com/rakeshkurakula/voice-training-app/internal/session"
	"github.com/rakeshkurakula/voice-training-app/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voice-training-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("ws_port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.Address),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("segment_trigger_bytes", cfg.Audio.SegmentTriggerBytes),
		slog.Int("buffer_trigger_bytes", cfg.Audio.BufferTriggerBytes),
		slog.Duration("idle_timeout", cfg.Session.GetIdleTimeout()),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize transcription client
	transClient, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Language:      cfg.Transcription.Language,
		Model:         cfg.Transcription.Model,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription client initialized",
		slog.String("endpoint", cfg.Transcription.Endpoint),
		slog.String("language", cfg.Transcription.Language),
	)

	// Audio normalizers: ffmpeg for encoded segments, direct WAV wrap for raw PCM
	segmentNorm := audio.NewFFmpegNormalizer(cfg.Normalizer.FFmpegPath, cfg.Audio.SampleRate, cfg.Normalizer.GetTimeoutDuration())
	rawNorm := audio.NewPCMNormalizer(cfg.Audio.SampleRate)

	// Session configuration shared by all sessions
	sessionConfig := session.Config{
		SampleRate:     cfg.Audio.SampleRate,
		SegmentTrigger: int64(cfg.Audio.SegmentTriggerBytes),
		BufferTrigger:  int64(cfg.Audio.BufferTriggerBytes),
		FinalizeWait:   cfg.Session.GetFinalizeWait(),
	}

	// Initialize session registry
	factory := func(id string, notify session.Notifier) (*session.Session, error) {
		return session.New(id, cfg.Session.ScratchDir, transClient, segmentNorm, rawNorm,
			notify, logger, appMetrics, sessionConfig)
	}
	registry := session.NewRegistry(factory, cfg.Session.GetIdleTimeout(), logger, appMetrics)
	logger.Info("Session registry initialized",
		slog.String("scratch_dir", cfg.Session.ScratchDir),
		slog.Duration("idle_timeout", cfg.Session.GetIdleTimeout()),
		slog.Duration("finalize_wait", cfg.Session.GetFinalizeWait()),
	)

	// Initialize WebSocket server
	wsServer := server.NewWSServer(&cfg.Server, logger, registry, appMetrics)
	logger.Info("WebSocket server initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, registry, wsServer, transClient, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start WebSocket server
	if err := wsServer.Start(); err != nil {
		logger.Error("Failed to start WebSocket server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ws_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop WebSocket server (close client connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping WebSocket server", slog.String("error", err.Error()))
	}

	// Stop session registry (tear down sessions and stop background routines)
	registry.Stop()

	// Close transcription client after the last session finished
	if err := transClient.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := wsServer.GetStatistics()
	transcriptionStats := transClient.GetStats()
	logger.Info("Final server statistics",
		slog.Uint64("messages_received", stats.MessagesReceived),
		slog.Uint64("messages_processed", stats.MessagesProcessed),
		slog.Uint64("decode_errors", stats.DecodeErrors),
		slog.Uint64("transcription_requests", transcriptionStats.TotalRequests),
		slog.Float64("transcription_success_rate", transcriptionStats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
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
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
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

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
