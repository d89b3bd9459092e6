package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/signup/internal/api"
	"example.com/signup/internal/catalog"
	"example.com/signup/internal/config"
	"example.com/signup/internal/ctxlog"
	"example.com/signup/internal/domain"
	"example.com/signup/internal/outbox"
	httptransport "example.com/signup/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		ctxlog.New(os.Stderr, "error").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := ctxlog.New(os.Stdout, cfg.LogLevel).With("service", "signup-api")

	seed, err := catalog.Load(cfg.SeedPath)
	if err != nil {
		logger.Error("failed to load activity seed", "path", cfg.SeedPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		publisher  domain.EventPublisher = domain.NoopPublisher{}
		dispatcher *outbox.Dispatcher
	)
	if cfg.EventsEnabled() {
		producerOpts := []outbox.ProducerOption{outbox.WithBatchTimeout(cfg.EventsBatchTimeout)}
		if cfg.EventsAutoCreateTopic {
			producerOpts = append(producerOpts, outbox.WithAutoTopicCreation())
		}
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, producerOpts...)
		defer producer.Close()

		var registry outbox.SchemaRegistrar
		if cfg.SchemaRegistryURL != "" {
			registry = outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		}
		dispatcher = outbox.NewDispatcher(producer, registry, outbox.Config{
			Topic:         cfg.EventsTopic,
			FlushInterval: cfg.EventsFlushInterval,
			BatchSize:     cfg.EventsBatchSize,
			QueueSize:     cfg.EventsQueueSize,
		}, logger)
		publisher = dispatcher
		go dispatcher.Start(ctx)
		logger.Info("membership events enabled", "topic", cfg.EventsTopic, "brokers", cfg.KafkaBrokers)
	}

	service := domain.NewService(domain.NewDirectory(seed), publisher)

	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(mux, httptransport.WithLogger(logger), httptransport.CORS(cfg.CORSOrigin)),
	)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("signup-api listening", "address", cfg.HTTPAddress, "activities", len(seed))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	// Stop the dispatcher only after in-flight requests have enqueued their events.
	cancel()
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
