package worker

// Events the sink keeps refusing are parked in a Redis list per source queue,
// dlq:{queue}, for manual inspection and replay.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DLQPrefix = "dlq:"

// DLQEntry wraps an undeliverable payload with debugging metadata.
type DLQEntry struct {
	OriginalQueue string          `json:"original_queue"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	FailedAt      string          `json:"failed_at"` // RFC 3339
	Attempts      int             `json:"attempts"`
}

// SendToDLQ reports whether the entry was stored.
func SendToDLQ(ctx context.Context, rdb *redis.Client, queue, eventType string, payload json.RawMessage, reason string, attempts int) bool {
	entry := DLQEntry{
		OriginalQueue: queue,
		EventType:     eventType,
		Payload:       payload,
		Reason:        reason,
		FailedAt:      time.Now().UTC().Format(time.RFC3339),
		Attempts:      attempts,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: failed to marshal entry")
		return false
	}

	dlqKey := DLQPrefix + queue
	if err := rdb.LPush(ctx, dlqKey, data).Err(); err != nil {
		log.Error().Err(err).Str("dlq_key", dlqKey).Msg("dlq: failed to push entry")
		return false
	}

	log.Warn().
		Str("queue", queue).
		Str("event_type", eventType).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("dlq: event moved to dead letter queue")
	return true
}

// DLQLength backs the audit_dlq figure on /health.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}
