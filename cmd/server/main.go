package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	jwttoken "auditpipe/internal/jwt_token"
	"auditpipe/internal/platform/config"
	"auditpipe/internal/platform/database"
	"auditpipe/internal/platform/httpserver"
	"auditpipe/internal/platform/kafka/producer"
	"auditpipe/internal/platform/logger"
	"auditpipe/internal/platform/metrics"
	"auditpipe/internal/platform/redis"
	"auditpipe/internal/platform/supervisor"
	httptransport "auditpipe/internal/transport/http"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/audit/archive"
	"auditpipe/pkg/platform/audit/publishers/compliance"
	"auditpipe/pkg/platform/audit/queue"
	"auditpipe/pkg/platform/audit/retention"
	"auditpipe/pkg/platform/audit/service"
	"auditpipe/pkg/platform/audit/store/memory"
	"auditpipe/pkg/platform/audit/store/postgres"
	"auditpipe/pkg/platform/audit/worker"
)

const (
	tokenIssuer   = "auditpipe"
	tokenAudience = "auditpipe-api"
)

// main wires the audit pipeline, exposes the read API and keeps the process
// lifecycle small. Pipeline logic lives in pkg/platform/audit.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log); err != nil {
		log.Error("auditpipe exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("auditpipe stopped")
}

type infra struct {
	pool     *database.Pool
	redis    *redis.Client
	producer *producer.Producer
}

func (i *infra) close(log *slog.Logger) {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			log.Warn("failed to close kafka producer", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("failed to close redis client", "error", err)
		}
	}
	if i.pool != nil {
		if err := i.pool.Close(); err != nil {
			log.Warn("failed to close database pool", "error", err)
		}
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("initializing auditpipe",
		"addr", cfg.Server.Addr,
		"queue_capacity", cfg.Audit.QueueCapacity,
		"retention_enabled", cfg.Retention.Enabled,
	)

	deps := &infra{}
	defer deps.close(log)

	store, err := openStore(ctx, cfg, deps, log)
	if err != nil {
		return err
	}

	q := queue.NewRing(cfg.Audit.QueueCapacity)
	w := worker.New(q, store,
		worker.WithLogger(log),
		worker.WithMetrics(worker.NewMetrics()),
		worker.WithBatchSize(cfg.Audit.BatchSize),
		worker.WithFlushInterval(cfg.Audit.FlushInterval),
		worker.WithMaxRetries(cfg.Audit.MaxRetries),
		worker.WithRetryBackoff(cfg.Audit.RetryBackoff),
		worker.WithShutdownGrace(cfg.Audit.ShutdownGrace),
		worker.WithBreaker(cfg.Audit.BreakerThreshold, cfg.Audit.BreakerOpenFor),
	)
	publisher := compliance.New(store,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	svc := service.New(q, publisher, store,
		service.WithLogger(log),
		service.WithMetrics(service.NewMetrics()),
		service.WithExportBatchSize(cfg.Export.BatchSize),
	)

	tree := supervisor.NewTree(log, supervisor.DefaultTreeConfig())
	tree.AddIngestion(w)

	// a typed nil would defeat the handler's disabled check
	var sweeper httptransport.Sweeper
	if cfg.Retention.Enabled {
		s, err := newSweeper(ctx, cfg, store, deps, log)
		if err != nil {
			return err
		}
		tree.AddMaintenance(s)
		sweeper = s
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, tokenIssuer, tokenAudience)
	handler := httptransport.New(svc, sweeper, jwttoken.NewJWTServiceAdapter(jwtService), cfg.Auth.AdminRole, log,
		httptransport.WithExportRateLimit(cfg.Export.RequestsPerMinute, time.Minute),
	)
	router := httptransport.NewRouter(handler, metrics.New(), healthChecks(deps), cfg.Server.CORSAllowedOrigins, log)
	srv := httpserver.New(cfg.Server.Addr, router)

	supCtx, stopSupervisor := context.WithCancel(context.Background())
	defer stopSupervisor()

	g, gctx := errgroup.WithContext(ctx)
	supDone := make(chan struct{})
	g.Go(func() error {
		defer close(supDone)
		err := tree.Serve(supCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("supervisor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-supDone:
		}
		log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// requests are finished; refuse late events and let the worker drain
		// what was queued
		q.Close()
		stopSupervisor()
		<-supDone
		if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
			log.Warn("services did not stop in time", "services", len(report))
		}
		stats := q.Stats()
		log.Info("audit queue closed",
			"enqueued", stats.Enqueued,
			"dropped", stats.Dropped,
			"rejected", stats.Rejected,
			"unwritten", stats.Queued,
		)
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, deps *infra, log *slog.Logger) (audit.Store, error) {
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		log.Warn("database.url not set, using in-memory audit store")
		return memory.NewInMemoryStore(), nil
	}
	deps.pool = pool
	return postgres.New(pool.DB()), nil
}

func newSweeper(ctx context.Context, cfg *config.Config, store audit.Pruner, deps *infra, log *slog.Logger) (*retention.Sweeper, error) {
	opts := []retention.Option{
		retention.WithLogger(log),
		retention.WithMetrics(retention.NewMetrics()),
		retention.WithHorizon(cfg.Retention.Horizon),
		retention.WithInterval(cfg.Retention.SweepInterval),
		retention.WithBatchSize(cfg.Retention.BatchSize),
	}
	if cfg.Retention.BatchesPerSec > 0 {
		opts = append(opts, retention.WithBatchRate(rate.Limit(cfg.Retention.BatchesPerSec), 1))
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		deps.redis = client
		opts = append(opts, retention.WithLocker(retention.NewRedisLocker(client.Client)))
	} else {
		log.Warn("redis.url not set, retention sweeps run without a cluster lock")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := producer.New(producer.Config{
			Brokers:         strings.Join(cfg.Kafka.Brokers, ","),
			Acks:            cfg.Kafka.Acks,
			DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		deps.producer = p
		if err := p.EnsureTopic(ctx, cfg.Kafka.ArchiveTopic, cfg.Kafka.Partitions, 1); err != nil {
			return nil, fmt.Errorf("ensure archive topic: %w", err)
		}
		opts = append(opts, retention.WithArchiver(archive.NewKafkaArchiver(p, cfg.Kafka.ArchiveTopic)))
	}

	return retention.New(store, opts...), nil
}

func healthChecks(deps *infra) map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{}
	if deps.pool != nil {
		checks["database"] = deps.pool.Health
	}
	if deps.redis != nil {
		checks["redis"] = deps.redis.Health
	}
	if deps.producer != nil {
		p := deps.producer
		checks["kafka"] = func(ctx context.Context) error {
			if !p.Healthy(ctx) {
				return errors.New("kafka brokers unreachable")
			}
			return nil
		}
	}
	return checks
}
