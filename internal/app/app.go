// Package app wires stores, services and infrastructure from configuration.
// The server and the CLI share it so both see the same storage mode.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	censuscache "certregistry/internal/census/cache"
	censusservice "certregistry/internal/census/service"
	censusstore "certregistry/internal/census/store"
	certservice "certregistry/internal/certificate/service"
	certstore "certregistry/internal/certificate/store/certificate"
	eventstore "certregistry/internal/certificate/store/event"
	consignmentservice "certregistry/internal/consignment/service"
	consignmentstore "certregistry/internal/consignment/store"
	"certregistry/internal/events"
	outboxstore "certregistry/internal/events/store"
	"certregistry/internal/labelkb"
	labelstore "certregistry/internal/labelkb/store"
	"certregistry/internal/platform/config"
	"certregistry/internal/platform/metrics"
	"certregistry/internal/platform/postgres"
	"certregistry/internal/platform/redis"
	"certregistry/pkg/platform/tx"
	"certregistry/pkg/requestcontext"
)

// CertificateStore is the union the services need from certificate storage.
type CertificateStore interface {
	certservice.CertificateStore
	consignmentservice.CertificateIndex
	censusservice.BucketSource
}

// OutboxStore is written by the lifecycle and drained by the relay.
type OutboxStore interface {
	certservice.Outbox
	events.OutboxStore
	CountUnpublished(ctx context.Context) (int, error)
}

// App holds the wired object graph.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	DB     *sql.DB
	Redis  *redis.Client
	Runner tx.Runner

	Certs  CertificateStore
	Outbox OutboxStore
	Labels *labelkb.Registry

	Census       *censusservice.Service
	Certificates *certservice.Service
	Consignments *consignmentservice.Service

	closers []func() error
}

// Build connects to whatever cfg enables. Without a database DSN every store
// is in memory and lives for the process.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.NewWithRegisterer(reg),
		Labels:   labelkb.NewRegistry(nil),
	}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	var (
		buckets      censusservice.Store
		eventStore   certservice.EventStore
		consignments consignmentservice.Store
	)

	if a.Config.Database.Enabled() {
		db, err := postgres.Open(ctx, a.Config.Database)
		if err != nil {
			return err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		a.Certs = certstore.NewPostgres(db)
		a.Outbox = outboxstore.NewPostgres(db)
		buckets = censusstore.NewPostgres(db)
		eventStore = eventstore.NewPostgres(db)
		consignments = consignmentstore.NewPostgres(db)
		a.Runner = tx.NewSQLRunner(db, a.Config.TxTimeout)
	} else {
		certs := certstore.NewInMemory()
		outbox := outboxstore.NewInMemory()
		bucketStore := censusstore.NewInMemory()
		eventMem := eventstore.NewInMemory()
		consignmentMem := consignmentstore.NewInMemory()
		a.Certs, a.Outbox, buckets, eventStore, consignments = certs, outbox, bucketStore, eventMem, consignmentMem
		a.Runner = tx.NewMemoryRunner(certs, outbox, bucketStore, eventMem, consignmentMem)
		a.Logger.Warn("no database configured, using in-memory stores")
	}

	if err := a.loadLabels(ctx); err != nil {
		return err
	}

	censusOpts := []censusservice.Option{
		censusservice.WithLogger(a.Logger),
		censusservice.WithMetrics(a.Metrics),
	}
	client, err := redis.New(ctx, a.Config.Redis)
	if err != nil {
		return err
	}
	if client != nil {
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		censusOpts = append(censusOpts, censusservice.WithCache(censuscache.NewRedisCache(client.Client, a.Config.Redis.CacheTTL)))
	}
	census, err := censusservice.New(buckets, a.Runner, censusOpts...)
	if err != nil {
		return err
	}
	a.Census = census

	certOpts := []certservice.Option{
		certservice.WithLogger(a.Logger),
		certservice.WithMetrics(a.Metrics),
		certservice.WithLabels(a.Labels),
	}
	// In memory without a broker nothing would ever drain the outbox.
	if a.Config.Database.Enabled() || a.Config.Kafka.Enabled() {
		certOpts = append(certOpts, certservice.WithOutbox(a.Outbox))
	}
	certs, err := certservice.New(a.Certs, eventStore, census, a.Runner, certOpts...)
	if err != nil {
		return err
	}
	a.Certificates = certs

	a.Consignments, err = consignmentservice.New(consignments, certs, a.Certs, a.Runner,
		consignmentservice.WithLogger(a.Logger))
	return err
}

// loadLabels fills the registry from the database, then applies the seed
// file. With a database the seed is upserted first so both agree.
func (a *App) loadLabels(ctx context.Context) error {
	var entries []labelkb.Entry
	if a.Config.LabelSeed != "" {
		seed, err := labelkb.LoadYAML(a.Config.LabelSeed)
		if err != nil {
			return fmt.Errorf("load label seed: %w", err)
		}
		entries = seed
	}
	if a.DB != nil {
		store := labelstore.NewPostgres(a.DB)
		if len(entries) > 0 {
			if _, err := labelkb.NewIndex(entries); err != nil {
				return fmt.Errorf("label seed: %w", err)
			}
			if err := store.Upsert(ctx, entries, requestcontext.Now(ctx)); err != nil {
				return fmt.Errorf("upsert label seed: %w", err)
			}
		}
		all, err := store.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load labels: %w", err)
		}
		entries = all
	}
	idx, err := a.Labels.Replace(entries)
	if err != nil {
		return fmt.Errorf("label knowledge base: %w", err)
	}
	a.Logger.Info("label knowledge base loaded", "entries", idx.Len())
	return nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
