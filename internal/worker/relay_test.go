package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/audit"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/infra"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu     sync.Mutex
	got    []Envelope
	failOn map[string]error // entity id -> error
}

func (s *fakeSink) Publish(_ context.Context, ev Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[ev.EntityID]; err != nil {
		return err
	}
	s.got = append(s.got, ev)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) entityIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.got))
	for i, ev := range s.got {
		out[i] = ev.EntityID
	}
	return out
}

type relayCounts map[string]int

func (c relayCounts) ObserveRelay(result string, n int) { c[result] += n }

func emit(t *testing.T, store *repository.MemoryStore, entityIDs ...string) {
	t.Helper()
	em := audit.NewEmitter()
	for _, id := range entityIDs {
		require.NoError(t, em.Emit(context.Background(), store.Audit(), audit.EntityAllocation, id, audit.ActionAdjust,
			audit.AllocationChange{Reason: "cycle count"}, nil))
	}
}

func pending(t *testing.T, store *repository.MemoryStore) int {
	t.Helper()
	events, err := store.Audit().ListUnpublished(context.Background(), 0)
	require.NoError(t, err)
	return len(events)
}

func TestRelay_PublishesInOrderAndMarksPublished(t *testing.T) {
	store := repository.NewMemoryStore()
	emit(t, store, "a", "b", "c")
	sink := &fakeSink{}
	counts := relayCounts{}
	r := NewRelay(RelayConfig{Store: store, Sink: sink, Recorder: counts})

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, sink.entityIDs())
	assert.Equal(t, 0, pending(t, store))
	assert.Equal(t, 3, counts[RelayPublished])

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "published events are not sent twice")
}

func TestRelay_EnvelopeCarriesDetails(t *testing.T) {
	store := repository.NewMemoryStore()
	emit(t, store, "a")
	sink := &fakeSink{}
	_, err := NewRelay(RelayConfig{Store: store, Sink: sink}).RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.got, 1)
	ev := sink.got[0]
	assert.Equal(t, audit.EntityAllocation, ev.EntityType)
	assert.Equal(t, audit.ActionAdjust, ev.Action)
	var details audit.AllocationChange
	require.NoError(t, json.Unmarshal(ev.Details, &details))
	assert.Equal(t, "cycle count", details.Reason)
	_, err = time.Parse(time.RFC3339Nano, ev.CreatedAt)
	assert.NoError(t, err)
}

func TestRelay_StopsAtFirstRefusedEvent(t *testing.T) {
	store := repository.NewMemoryStore()
	emit(t, store, "a", "b", "c")
	sink := &fakeSink{failOn: map[string]error{"b": errors.New("broker unavailable")}}
	counts := relayCounts{}
	r := NewRelay(RelayConfig{Store: store, Sink: sink, Recorder: counts})

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, sink.entityIDs(), "c must not overtake b")
	assert.Equal(t, 2, pending(t, store))
	assert.Equal(t, 1, counts[RelayFailed])

	delete(sink.failOn, "b")
	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b", "c"}, sink.entityIDs())
	assert.Equal(t, 0, pending(t, store))
}

func TestRelay_DeadLettersAfterMaxAttempts(t *testing.T) {
	store := repository.NewMemoryStore()
	emit(t, store, "poison", "next")
	sink := &fakeSink{failOn: map[string]error{"poison": errors.New("message too large")}}

	var parked []DLQEntry
	dlq := func(_ context.Context, eventType string, payload json.RawMessage, reason string, attempts int) bool {
		parked = append(parked, DLQEntry{EventType: eventType, Payload: payload, Reason: reason, Attempts: attempts})
		return true
	}
	counts := relayCounts{}
	r := NewRelay(RelayConfig{
		Store:       store,
		Sink:        sink,
		DeadLetter:  dlq,
		Recorder:    counts,
		MaxAttempts: 2,
		CB:          infra.NewCircuitBreaker("test", infra.CircuitBreakerConfig{FailureThreshold: 10}),
	})

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, parked)
	assert.Equal(t, 2, pending(t, store))

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, parked, 1)
	assert.Equal(t, audit.ActionAdjust, parked[0].EventType)
	assert.Equal(t, 2, parked[0].Attempts)
	assert.Contains(t, parked[0].Reason, "message too large")
	assert.Equal(t, []string{"next"}, sink.entityIDs())
	assert.Equal(t, 0, pending(t, store))
	assert.Equal(t, 1, counts[RelayDeadLettered])
}

func TestRelay_KeepsEventWhenDeadLetterFails(t *testing.T) {
	store := repository.NewMemoryStore()
	emit(t, store, "poison")
	sink := &fakeSink{failOn: map[string]error{"poison": errors.New("rejected")}}
	r := NewRelay(RelayConfig{
		Store:       store,
		Sink:        sink,
		MaxAttempts: 1,
		DeadLetter: func(context.Context, string, json.RawMessage, string, int) bool {
			return false
		},
	})

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pending(t, store))
}

func TestRelay_OpenBreakerSkipsSink(t *testing.T) {
	store := repository.NewMemoryStore()
	emit(t, store, "a")
	sink := &fakeSink{failOn: map[string]error{"a": errors.New("connection refused")}}
	cb := infra.NewCircuitBreaker("test", infra.CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Hour})
	r := NewRelay(RelayConfig{Store: store, Sink: sink, CB: cb})

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, infra.CBOpen, cb.State())

	delete(sink.failOn, "a")
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sink.entityIDs())
	assert.Equal(t, 1, pending(t, store))
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := repository.NewMemoryStore()
	emit(t, store, "a")
	sink := &fakeSink{}
	r := NewRelay(RelayConfig{Store: store, Sink: sink, Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		events, err := store.Audit().ListUnpublished(context.Background(), 0)
		return err == nil && len(events) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
