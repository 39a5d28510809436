package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/config"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/infra"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/router"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in dev, JSON in production
	if cfg.Env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infra.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}

	// Redis backs the redis sink and the dead letter queue of either sink.
	var rdb *redis.Client
	if cfg.AuditSink != "none" && cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
	}

	metrics := infra.NewMetrics()
	sinkCB := infra.NewCircuitBreaker("audit_sink", infra.DefaultCBConfig())

	r := router.New(cfg, store, rdb, sinkCB, metrics)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Msgf("stock engine listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if sink := openSink(cfg, rdb); sink != nil {
		defer sink.Close()
		relay := worker.NewRelay(worker.RelayConfig{
			Store:      store,
			Sink:       sink,
			CB:         sinkCB,
			DeadLetter: deadLetter(rdb),
			Recorder:   metrics,
			Interval:   cfg.AuditRelayInterval,
			BatchSize:  cfg.AuditRelayBatch,
		})
		g.Go(func() error { return relay.Run(gctx) })
	}

	// Graceful shutdown on SIGINT / SIGTERM or when a member of the group fails
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("forced shutdown: %w", err)
		}
		return shutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}

func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("using in-memory store; state is lost on restart")
		return repository.NewMemoryStore(), nil
	case "postgres":
		db, err := infra.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repository.NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func openSink(cfg *config.Config, rdb *redis.Client) worker.Publisher {
	switch cfg.AuditSink {
	case "redis":
		if rdb == nil {
			log.Fatal().Msg("AUDIT_SINK=redis requires REDIS_URL")
		}
		return worker.NewRedisPublisher(rdb)
	case "kafka":
		return worker.NewKafkaPublisher(cfg.Brokers(), cfg.AuditTopic)
	default:
		log.Info().Str("sink", cfg.AuditSink).Msg("audit relay disabled")
		return nil
	}
}

// deadLetter needs Redis; with the Kafka sink and no Redis, refused events
// stay unpublished and are retried.
func deadLetter(rdb *redis.Client) worker.DeadLetterFunc {
	if rdb == nil {
		return nil
	}
	return worker.RedisDeadLetter(rdb)
}
