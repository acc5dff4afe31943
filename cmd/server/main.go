package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"certregistry/internal/app"
	censushandler "certregistry/internal/census/handler"
	certhandler "certregistry/internal/certificate/handler"
	consignmenthandler "certregistry/internal/consignment/handler"
	"certregistry/internal/events"
	jwttoken "certregistry/internal/jwt_token"
	"certregistry/internal/platform/config"
	"certregistry/internal/platform/httpserver"
	"certregistry/internal/platform/kafka"
	"certregistry/internal/platform/logger"
	httptransport "certregistry/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close resources", "error", err)
		}
	}()

	health := map[string]httptransport.HealthCheck{}
	if a.DB != nil {
		health["postgres"] = a.DB.PingContext
	}
	if a.Redis != nil {
		health["redis"] = a.Redis.Health
	}

	var relay *events.Relay
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			return err
		}
		health["kafka"] = producer.Health
		relay = events.NewRelay(a.Outbox, producer, a.Runner,
			events.WithLogger(log),
			events.WithMetrics(a.Metrics),
			events.WithInterval(cfg.Kafka.PollInterval),
			events.WithBatchSize(cfg.Kafka.BatchSize),
		)
	}

	tokens := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httptransport.NewRouter(httptransport.Deps{
		Certificates: certhandler.New(a.Certificates, a.Census, log),
		Census:       censushandler.New(a.Census, log),
		Consignments: consignmenthandler.New(a.Consignments, log),
		Tokens:       jwttoken.NewJWTServiceAdapter(tokens),
		Logger:       log,
		Metrics:      a.Metrics,
		Gatherer:     a.Registry,
		Health:       health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting certregistry", "addr", cfg.Addr, "postgres", a.DB != nil, "relay", relay != nil)
		return httpserver.Run(ctx, srv)
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(ctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("certregistry stopped")
	return nil
}
