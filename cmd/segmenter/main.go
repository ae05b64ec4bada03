package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/andrii-vasyliev/vad-segmenter/internal/capture"
	"github.com/andrii-vasyliev/vad-segmenter/internal/config"
	"github.com/andrii-vasyliev/vad-segmenter/internal/metrics"
	"github.com/andrii-vasyliev/vad-segmenter/internal/queue"
	"github.com/andrii-vasyliev/vad-segmenter/internal/segmenter"
	"github.com/andrii-vasyliev/vad-segmenter/internal/server"
	"github.com/andrii-vasyliev/vad-segmenter/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "vad-segmenter"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("block_duration_ms", cfg.Audio.BlockDurationMs),
		slog.Int("frame_duration_ms", cfg.Segmenter.FrameDurationMs),
		slog.Int("aggressiveness", cfg.VAD.Aggressiveness),
		slog.Int("start_consecutive", cfg.Segmenter.StartConsecutive),
		slog.Int("end_consecutive", cfg.Segmenter.EndConsecutive),
		slog.String("queue_policy", cfg.Queue.Policy),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	engineCfg := segmenter.Config{
		SampleRate:       cfg.Audio.SampleRate,
		FrameDuration:    cfg.Segmenter.GetFrameDuration(),
		StartConsecutive: cfg.Segmenter.StartConsecutive,
		EndConsecutive:   cfg.Segmenter.EndConsecutive,
		MaxUtterance:     cfg.Segmenter.GetMaxUtteranceDuration(),
		PollInterval:     cfg.Segmenter.GetPollInterval(),
		QueuePolicy:      queue.Policy(cfg.Queue.Policy),
		QueueCapacity:    cfg.Queue.Capacity,
		QueuePushWait:    cfg.Queue.GetPushWait(),
	}

	classifier, err := vad.NewEnergyClassifier(cfg.VAD.Aggressiveness, cfg.Audio.SampleRate, engineCfg.FrameSamples())
	if err != nil {
		logger.Error("Failed to create classifier", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := portaudio.Initialize(); err != nil {
		logger.Error("Failed to initialize audio subsystem", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer portaudio.Terminate()

	source, err := capture.NewPortAudioSource(cfg.Audio.SampleRate, cfg.Audio.BlockSamples())
	if err != nil {
		logger.Error("Failed to create capture source", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.Output.Enabled {
		if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
			logger.Error("Failed to create output directory",
				slog.String("directory", cfg.Output.Directory),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	callbacks := segmenter.Callbacks{
		OnSpeechStart: func() {
			logger.Info("Speech detected")
		},
		OnSpeechEnd: func(wavData []byte, durationSeconds float64) {
			logger.Info("Utterance finished",
				slog.Float64("duration", durationSeconds),
				slog.Int("wav_bytes", len(wavData)),
			)
			saveUtterance(logger, cfg.Output, wavData, durationSeconds)
		},
	}

	engine, err := segmenter.New(engineCfg, classifier, source, callbacks, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, engine, classifier, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if err := engine.Start(); err != nil {
		logger.Error("Failed to start engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, listening for speech...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := engine.GetStats()

	if err := engine.Stop(); err != nil {
		logger.Error("Error stopping engine", slog.String("error", err.Error()))
	}

	logger.Info("Final statistics",
		slog.Uint64("frames_processed", stats.Gate.FramesProcessed),
		slog.Uint64("speech_frames", stats.Gate.SpeechFrames),
		slog.Uint64("utterances_emitted", stats.Gate.UtterancesEmitted),
		slog.Uint64("classifier_errors", stats.Gate.ClassifierErrors),
		slog.Uint64("blocks_dropped", stats.Queue.Dropped),
	)

	logger.Info("Service stopped")
}

// saveUtterance writes one finished utterance to the output directory,
// skipping clips shorter than the configured minimum.
func saveUtterance(logger *slog.Logger, cfg config.OutputConfig, wavData []byte, durationSeconds float64) {
	if !cfg.Enabled {
		return
	}

	if durationSeconds < cfg.MinDuration {
		logger.Debug("Skipping short utterance",
			slog.Float64("duration", durationSeconds),
			slog.Float64("min_duration", cfg.MinDuration),
		)
		return
	}

	filename := fmt.Sprintf("segment_%d.wav", time.Now().UnixMilli())
	path := filepath.Join(cfg.Directory, filename)

	if err := os.WriteFile(path, wavData, 0644); err != nil {
		logger.Error("Failed to save utterance",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	logger.Info("Utterance saved",
		slog.String("path", path),
		slog.Float64("duration", durationSeconds),
	)
}

// initLogger creates the structured logger from the logging configuration
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
