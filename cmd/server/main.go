package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genmark/internal/audit"
	"genmark/internal/ledger"
	ledgeralgo "genmark/internal/ledger/algorand"
	ledgermem "genmark/internal/ledger/memory"
	"genmark/internal/mirror"
	"genmark/internal/notify"
	"genmark/internal/platform/config"
	"genmark/internal/platform/httpserver"
	"genmark/internal/platform/logger"
	platformredis "genmark/internal/platform/redis"
	"genmark/internal/registry"
	registryhandler "genmark/internal/registry/handler"
	"genmark/pkg/platform/httputil"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx := context.Background()

	var led ledger.Client
	if cfg.Algod.Configured() {
		algoLed, err := ledgeralgo.New(cfg.Algod, log)
		if err != nil {
			log.Error("ledger client init failed", "error", err)
			os.Exit(1)
		}
		led = algoLed
	} else {
		// Local development only: records vanish on restart.
		log.Warn("no ledger application configured, using in-process ledger")
		led = ledgermem.New()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	var mir mirror.Mirror = mirror.NewMemory()
	if redisClient != nil {
		mir = mirror.NewRedis(redisClient.Client, cfg.Registry.MirrorTTL)
		defer redisClient.Close()
	}

	var auditStore audit.Store = audit.NewMemoryStore()
	if cfg.Postgres.DSN != "" {
		pgStore, err := audit.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres init failed", "error", err)
			os.Exit(1)
		}
		if err := pgStore.Migrate(ctx); err != nil {
			log.Error("postgres migrate failed", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		auditStore = pgStore
	}

	var trailOpts []audit.Option
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka init failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		trailOpts = append(trailOpts, audit.WithPublisher(publisher))
	}
	trail := audit.New(auditStore, log, trailOpts...)
	defer trail.Close()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := registry.NewService(led, mir, cfg.Registry,
		registry.WithLogger(log),
		registry.WithMetrics(registry.NewMetrics(promRegistry)),
		registry.WithRecorder(trail),
		registry.WithNotifier(notify.NewLogNotifier(log)),
	)

	router := chi.NewRouter()
	registryhandler.New(svc, trail, log).Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	router.Get("/health", healthHandler(cfg, redisClient))

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Addr, "app_id", cfg.Algod.AppID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func healthHandler(cfg config.Config, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status":            "ok",
			"ledger_configured": cfg.Algod.Configured(),
			"signer_configured": cfg.Algod.SignerMnemonic != "",
			"algod_target":      cfg.Algod.URL(),
		}
		code := http.StatusOK
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				status["status"] = "degraded"
				status["redis"] = err.Error()
				code = http.StatusServiceUnavailable
			} else {
				status["redis"] = "ok"
			}
		}
		httputil.WriteJSON(w, code, status)
	}
}
