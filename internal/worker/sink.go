package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// QueueAudit is the Redis list the relay pushes events to.
const QueueAudit = "audit:events"

// Envelope is the wire form of an audit event on every sink.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	Details    json.RawMessage `json:"details"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty"`
	CreatedAt  string          `json:"created_at"` // RFC 3339
}

func NewEnvelope(e model.AuditEvent) Envelope {
	return Envelope{
		ID:         e.ID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		Details:    json.RawMessage(e.Details),
		ActorID:    e.ActorID,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Publisher hands one encoded event to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, ev Envelope) error
	Close() error
}

// RedisPublisher pushes events onto a Redis list consumed with BRPOP.
type RedisPublisher struct {
	rdb   *redis.Client
	queue string
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, queue: QueueAudit}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.LPush(ctx, p.queue, data).Err()
}

// Close is a no-op; the client is owned by the caller.
func (p *RedisPublisher) Close() error { return nil }

// KafkaPublisher writes events to a topic keyed by entity id, so facts about
// one ledger row or transfer stay ordered within a partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.EntityType + ":" + ev.EntityID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(ev.Action)},
		},
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
