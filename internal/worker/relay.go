package worker

// The relay drains audit_events to the configured sink. Events are written in
// the same transaction as the ledger mutation they describe; the relay only
// moves committed facts outward and marks them published. The sink sits
// behind a circuit breaker so a downed broker costs one fast check per tick.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/infra"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultRelayInterval = 5 * time.Second
	defaultRelayBatch    = 100
	// MaxPublishAttempts is how often one event may fail before it is
	// dead-lettered.
	MaxPublishAttempts = 5
)

// Relay results, used as metric labels.
const (
	RelayPublished    = "published"
	RelayFailed       = "failed"
	RelayDeadLettered = "dead_lettered"
)

// RelayRecorder is implemented by infra.Metrics.
type RelayRecorder interface {
	ObserveRelay(result string, n int)
}

type nopRelayRecorder struct{}

func (nopRelayRecorder) ObserveRelay(string, int) {}

// DeadLetterFunc parks an undeliverable event and reports whether it was stored.
type DeadLetterFunc func(ctx context.Context, eventType string, payload json.RawMessage, reason string, attempts int) bool

// RedisDeadLetter stores entries under dlq:audit:events.
func RedisDeadLetter(rdb *redis.Client) DeadLetterFunc {
	return func(ctx context.Context, eventType string, payload json.RawMessage, reason string, attempts int) bool {
		return SendToDLQ(ctx, rdb, QueueAudit, eventType, payload, reason, attempts)
	}
}

// RelayConfig holds all dependencies for the relay goroutine. DeadLetter and
// Recorder are optional.
type RelayConfig struct {
	Store       repository.Store
	Sink        Publisher
	CB          *infra.CircuitBreaker
	DeadLetter  DeadLetterFunc
	Recorder    RelayRecorder
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

type Relay struct {
	cfg      RelayConfig
	attempts map[uuid.UUID]int // owned by the relay goroutine
	now      func() time.Time
}

func NewRelay(cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRelayInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultRelayBatch
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = MaxPublishAttempts
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRelayRecorder{}
	}
	if cfg.CB == nil {
		cfg.CB = infra.NewCircuitBreaker("audit_sink", infra.DefaultCBConfig())
	}
	return &Relay{cfg: cfg, attempts: make(map[uuid.UUID]int), now: time.Now}
}

// Run ticks until ctx is cancelled. It always returns nil so it can sit in an
// errgroup next to the HTTP server.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.cfg.Interval).Int("batch", r.cfg.BatchSize).Msg("audit_relay: started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("audit_relay: shutting down")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("audit_relay: tick failed")
			}
		}
	}
}

// RunOnce publishes one batch in creation order and returns how many events
// reached the sink. It stops at the first event the sink refuses so that
// facts about one entity are never delivered out of order.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if r.cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("audit_relay: circuit breaker is open, skipping tick")
		return 0, nil
	}

	events, err := r.cfg.Store.Audit().ListUnpublished(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unpublished: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var done []uuid.UUID
	published, failed, dead := 0, 0, 0
	for _, e := range events {
		env := NewEnvelope(e)
		pubErr := r.cfg.CB.Execute(func() error { return r.cfg.Sink.Publish(ctx, env) })
		if pubErr == nil {
			done = append(done, e.ID)
			delete(r.attempts, e.ID)
			published++
			continue
		}
		if errors.Is(pubErr, infra.ErrCircuitOpen) {
			log.Debug().Msg("audit_relay: circuit breaker opened mid-batch, stopping")
			break
		}

		failed++
		r.attempts[e.ID]++
		n := r.attempts[e.ID]
		if n >= r.cfg.MaxAttempts && r.cfg.DeadLetter != nil {
			payload, _ := json.Marshal(env)
			reason := fmt.Sprintf("max attempts (%d) exceeded: %s", r.cfg.MaxAttempts, pubErr)
			if r.cfg.DeadLetter(ctx, e.Action, payload, reason, n) {
				done = append(done, e.ID)
				delete(r.attempts, e.ID)
				dead++
				continue
			}
		}
		log.Warn().
			Err(pubErr).
			Str("event_id", e.ID.String()).
			Str("action", e.Action).
			Int("attempts", n).
			Msg("audit_relay: publish failed, will retry")
		break
	}

	if len(done) > 0 {
		if err := r.cfg.Store.Audit().MarkPublished(ctx, done, r.now().UTC()); err != nil {
			// already delivered; the next tick re-sends them
			return 0, fmt.Errorf("mark published: %w", err)
		}
	}

	r.cfg.Recorder.ObserveRelay(RelayPublished, published)
	r.cfg.Recorder.ObserveRelay(RelayFailed, failed)
	r.cfg.Recorder.ObserveRelay(RelayDeadLettered, dead)
	if published > 0 {
		log.Debug().Int("published", published).Msg("audit_relay: batch delivered")
	}
	return published, nil
}
