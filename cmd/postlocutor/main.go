package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/MustBeArt/postlocutor/internal/audio"
	"github.com/MustBeArt/postlocutor/internal/codec"
	"github.com/MustBeArt/postlocutor/internal/config"
	"github.com/MustBeArt/postlocutor/internal/device"
	"github.com/MustBeArt/postlocutor/internal/metrics"
	"github.com/MustBeArt/postlocutor/internal/router"
	"github.com/MustBeArt/postlocutor/internal/server"
	"github.com/MustBeArt/postlocutor/internal/state"
	"github.com/MustBeArt/postlocutor/internal/station"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "postlocutor"
)

var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	envErr := config.LoadEnv()
	if envErr != nil && !os.IsNotExist(envErr) {
		return fmt.Errorf("failed to load .env file: %w", envErr)
	}

	cfg, err := config.Load(configPath)
	if err != nil && errors.Is(err, fs.ErrNotExist) && configPath == defaultConfigPath {
		cfg, err = config.Load("")
		configPath = ""
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := initLogger(cfg.Logging)
	instanceID := uuid.New()
	logger = logger.With(slog.String("instance_id", instanceID.String()))

	if envErr != nil {
		logger.Debug("No .env file found, continuing without it")
	}

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.Int("frame_duration_ms", cfg.Audio.FrameDuration),
		slog.Int("buffer_capacity", cfg.Audio.BufferCapacity),
		slog.String("output", cfg.Audio.Output),
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := state.New()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(registry)

	format := audio.Format{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		FrameDuration: cfg.Audio.GetFrameDuration(),
	}

	decoder, err := codec.NewOpusDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return fmt.Errorf("failed to create opus decoder: %w", err)
	}

	sink, err := newSink(cfg.Audio, format, logger)
	if err != nil {
		return err
	}

	pipeline, err := audio.NewPipeline(audio.PipelineConfig{
		Format:         format,
		BufferCapacity: cfg.Audio.BufferCapacity,
	}, decoder, sink, st, logger, appMetrics)
	if err != nil {
		sink.Close()
		return fmt.Errorf("failed to create audio pipeline: %w", err)
	}

	if err := metrics.RegisterState(registry, st, pipeline.BufferLen); err != nil {
		return fmt.Errorf("failed to register state metrics: %w", err)
	}

	tracker := station.NewTracker(logger, cfg.Station.GetTimeout())

	frameRouter := router.New(pipeline, st, logger,
		router.WithObserver(router.NewLogObserver(logger)),
		router.WithStations(tracker),
		router.WithMetrics(appMetrics),
	)

	receiver := server.NewReceiver(&cfg.Server, logger, st, frameRouter, appMetrics)

	if err := pipeline.Start(); err != nil {
		pipeline.Stop()
		return fmt.Errorf("failed to start audio output: %w", err)
	}

	if err := receiver.Start(); err != nil {
		pipeline.Stop()
		return fmt.Errorf("failed to start UDP receiver: %w", err)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, server.HTTPServerDeps{
			Config:     cfg,
			State:      st,
			Buffer:     pipeline,
			Stations:   tracker,
			Metrics:    appMetrics,
			Gatherer:   registry,
			InstanceID: instanceID,
			Version:    version,
		})
		if err := httpServer.Start(); err != nil {
			receiver.Stop()
			pipeline.Stop()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", receiver.Addr().String()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tracker.Run(gctx)
	})
	g.Go(func() error {
		reportStatus(gctx, logger, st, pipeline, cfg.Status.GetInterval())
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown requested")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Background task failed", slog.String("error", err.Error()))
	}

	logger.Info("Starting graceful shutdown...")

	// Stop accepting API requests first, then network input, then playback
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
		shutdownCancel()
	}

	if err := receiver.Stop(); err != nil {
		logger.Error("Error stopping UDP receiver", slog.String("error", err.Error()))
	}

	if err := pipeline.Stop(); err != nil {
		logger.Error("Error stopping audio output", slog.String("error", err.Error()))
	}

	logStatus(logger, "Final receiver statistics", st.Snapshot(), pipeline.BufferLen())
	logger.Info("Service stopped")

	return nil
}

// newSink selects the playback sink for the configured output
func newSink(cfg config.AudioConfig, format audio.Format, logger *slog.Logger) (audio.Sink, error) {
	switch cfg.Output {
	case config.OutputDevice:
		return device.NewOtoSink(device.Config{
			SampleRate:     format.SampleRate,
			Channels:       format.Channels,
			BufferDuration: cfg.GetDeviceBuffer(),
		}, logger), nil
	case config.OutputWAV:
		w, err := audio.CreateWAVFile(cfg.WAVPath, format)
		if err != nil {
			return nil, fmt.Errorf("failed to open WAV output: %w", err)
		}
		logger.Info("Recording playback to WAV file", slog.String("path", cfg.WAVPath))
		return audio.NewClockedSink(w, format, logger), nil
	case config.OutputNull:
		return audio.NewClockedSink(nil, format, logger), nil
	default:
		return nil, fmt.Errorf("unknown audio output %q", cfg.Output)
	}
}

// reportStatus logs a snapshot every interval until ctx is cancelled
func reportStatus(ctx context.Context, logger *slog.Logger, st *state.ReceiverState,
	pipeline *audio.Pipeline, interval time.Duration) {

	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStatus(logger, "Receiver status", st.Snapshot(), pipeline.BufferLen())
		}
	}
}

func logStatus(logger *slog.Logger, msg string, snap state.Snapshot, bufferDepth int) {
	attrs := []any{
		slog.Uint64("packets", snap.PacketsReceived),
		slog.Uint64("valid_frames", snap.ValidFrames),
		slog.Uint64("invalid_frames", snap.InvalidFrames),
		slog.Uint64("audio_frames", snap.AudioFrames),
		slog.Uint64("text_frames", snap.TextFrames),
		slog.Uint64("control_frames", snap.ControlFrames),
		slog.Uint64("frames_decoded", snap.FramesDecoded),
		slog.Uint64("frames_played", snap.FramesPlayed),
		slog.Uint64("decode_errors", snap.DecodeErrors),
		slog.Uint64("buffer_evictions", snap.BufferEvictions),
		slog.Int("buffer_depth", bufferDepth),
		slog.Bool("ptt_active", snap.PTTActive),
	}
	if since, ok := snap.SinceLastAudio(time.Now()); ok {
		attrs = append(attrs, slog.Duration("since_last_audio", since.Round(time.Millisecond)))
	}
	logger.Info(msg, attrs...)
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
