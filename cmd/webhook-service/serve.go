package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dmehra2102/payment-reconciler/internal/config"
	"github.com/dmehra2102/payment-reconciler/internal/payment/application"
	paymenthttp "github.com/dmehra2102/payment-reconciler/internal/payment/infrastructure/http"
	paymentkafka "github.com/dmehra2102/payment-reconciler/internal/payment/infrastructure/kafka"
	"github.com/dmehra2102/payment-reconciler/internal/payment/infrastructure/memory"
	pg "github.com/dmehra2102/payment-reconciler/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/payment-reconciler/pkg/idempotency"
	"github.com/dmehra2102/payment-reconciler/pkg/logging"
	"github.com/dmehra2102/payment-reconciler/pkg/metrics"
	"github.com/dmehra2102/payment-reconciler/pkg/outbox"
	"github.com/dmehra2102/payment-reconciler/pkg/shutdown"
	"github.com/dmehra2102/payment-reconciler/pkg/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, cancel := shutdown.WithSignals(cmd.Context())
			defer cancel()
			return serve(ctx, cfg, logging.New(cfg.LogLevel))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	tp, err := tracing.Init(ctx, serviceName, cfg.OTel.Endpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var (
		store application.Store
		ready paymenthttp.Pinger
		pool  *pgxpool.Pool
	)
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err = pgxpool.New(ctx, cfg.PG.URL)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			return err
		}
		defer pool.Close()
		s := pg.NewStore(log, pool, cfg.Store.MaxRetries)
		store, ready = s, s
	case config.DriverMemory:
		log.Warn("using in-memory store; state is lost on exit")
		s := memory.NewStore()
		store, ready = s, s
	}

	var opts []application.Option
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		opts = append(opts, application.WithDeliveryCache(idempotency.NewStore(rdb, cfg.Idempotency.TTL)))
		log.Info("delivery cache enabled", "redis_addr", cfg.Redis.Addr, "ttl", cfg.Idempotency.TTL)
	}
	reconciler := application.NewReconciler(log, store, opts...)

	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 && pool != nil {
		writer := paymentkafka.NewWriter(brokers)
		defer writer.Close()

		dispatch := outbox.NewDispatcher(log, writer, cfg.Kafka.Topic)
		host, _ := os.Hostname()
		relay := outbox.NewRelay(log, pg.NewOutboxStore(log, pool), dispatch, serviceName+"-"+host)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped", "err", err)
			}
		}()
	} else {
		log.Info("outbox relay disabled", "kafka_addr", cfg.Kafka.Addr, "store_driver", cfg.Store.Driver)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWebhook(reg)

	h := paymenthttp.NewHandler(log, reconciler, ready, m, paymenthttp.Config{
		Gateway:      cfg.Webhook.Gateway,
		Secret:       cfg.Webhook.Secret,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
	})

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", h.Routes())

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("webhook endpoint ready", "path", paymenthttp.WebhookPath(cfg.Webhook.Gateway))

	if err := shutdown.ServeHTTP(ctx, log, srv, shutdownGrace); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("webhook-service shutdown")
	return nil
}
