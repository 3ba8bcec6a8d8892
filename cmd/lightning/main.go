package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-lightning-service/internal/adapter/bluesky"
	"github.com/couchcryptid/storm-lightning-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/storm-lightning-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-lightning-service/internal/adapter/nws"
	"github.com/couchcryptid/storm-lightning-service/internal/adapter/telemetryfile"
	"github.com/couchcryptid/storm-lightning-service/internal/config"
	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	"github.com/couchcryptid/storm-lightning-service/internal/engine"
	"github.com/couchcryptid/storm-lightning-service/internal/gate"
	"github.com/couchcryptid/storm-lightning-service/internal/observability"
	"github.com/couchcryptid/storm-lightning-service/internal/storm"
	"github.com/couchcryptid/storm-lightning-service/internal/throttle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	var closers []io.Closer

	publisher, err := newPublisher(cfg, clock, logger)
	if err != nil {
		logger.Error("failed to create publisher", "error", err)
		os.Exit(1)
	}

	// Weather corroboration is feature-flagged via NWS_ENABLED.
	var corroborator domain.Corroborator
	if cfg.NWSEnabled {
		client, err := nws.NewClient(nws.Config{
			UserAgent:     cfg.NWSUserAgent,
			Lat:           cfg.NWSLat,
			Lon:           cfg.NWSLon,
			Timeout:       cfg.NWSTimeout,
			ForecastHours: cfg.NWSForecastHours,
		}, clock, logger)
		if err != nil {
			logger.Error("failed to create nws client", "error", err)
			os.Exit(1)
		}
		corroborator = client
		logger.Info("nws corroboration enabled", "lat", cfg.NWSLat, "lon", cfg.NWSLon)
	} else {
		logger.Info("nws corroboration disabled")
	}

	sink, closer, err := newTelemetrySink(cfg, logger)
	if err != nil {
		logger.Error("failed to create telemetry sink", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	history := domain.NewHistory(cfg.HistoryCapacity)
	g := gate.New(gate.Config{
		StartupGrace: cfg.StartupGrace,
		DedupeWindow: cfg.DedupeWindow,
		MaxPer15m:    cfg.MaxPer15m,
		MaxPerHour:   cfg.MaxPerHour,
		MaxPerDay:    cfg.MaxPerDay,
		DryRun:       cfg.DryRun,
	}, gate.NewFileStore(cfg.StatePath), clock.Now(), logger)

	eng := engine.New(engine.Config{
		Node:         domain.NodeInfo{ID: cfg.NodeID, Region: cfg.NodeRegion, Channel: cfg.NodeChannel},
		TickInterval: cfg.TickInterval,
		SummaryBin:   cfg.SummaryBin,
	}, engine.Components{
		History: history,
		Machine: storm.NewMachine(storm.Config{
			MinStrikes:   cfg.StormMinStrikes,
			Window:       cfg.StormWindow,
			GapToEnd:     cfg.StormGapToEnd,
			SummaryDelay: cfg.SummaryDelay,
		}, history),
		Gate:         g,
		Throttle:     throttle.New(cfg.PublishMinInterval, cfg.PublishMaxPerHour),
		Dispatcher:   engine.NewDispatcher(cfg.PublishWorkers, cfg.PublishTimeout, logger),
		Publisher:    publisher,
		Corroborator: corroborator,
		Telemetry:    sink,
	}, clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, eng, clock, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the Kafka strike consumer (feature-flagged via KAFKA_ENABLED).
	if cfg.KafkaEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		closers = append(closers, reader)
		go func() {
			if err := eng.Consume(ctx, reader); err != nil {
				logger.Error("strike consumer error", "error", err)
			}
		}()
		logger.Info("kafka strike source enabled", "topic", cfg.KafkaStrikeTopic)
	}

	// Run the engine tick loop until shutdown.
	if err := eng.Run(ctx); err != nil {
		logger.Error("engine error", "error", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := eng.Drain(shutdownCtx); err != nil {
		logger.Error("publish drain error", "error", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func newPublisher(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (engine.Publisher, error) {
	if cfg.DryRun {
		logger.Info("dry run enabled, nothing will be posted")
		return engine.LogPublisher{Logger: logger}, nil
	}
	client, err := bluesky.NewClient(cfg.BlueskyPDSURL, cfg.BlueskyHandle, cfg.BlueskyAppPassword, cfg.PublishTimeout, clock, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newTelemetrySink(cfg *config.Config, logger *slog.Logger) (domain.TelemetrySink, io.Closer, error) {
	switch cfg.TelemetrySink {
	case config.TelemetryFile:
		s, err := telemetryfile.Open(cfg.TelemetryFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("telemetry to file", "path", cfg.TelemetryFile)
		return s, s, nil
	case config.TelemetryKafka:
		w := kafkaadapter.NewTelemetryWriter(cfg, logger)
		logger.Info("telemetry to kafka", "topic", cfg.KafkaTelemetryTopic)
		return w, w, nil
	default:
		logger.Info("telemetry disabled")
		return nil, nil, nil
	}
}
