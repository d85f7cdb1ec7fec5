package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

var errBroker = errors.New("broker unavailable")

type fakeStore struct {
	mu       sync.Mutex
	batch    []Event
	lockErr  error
	sent     []int64
	failed   map[int64]string
	extended [][]int64
}

func (s *fakeStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	out := s.batch
	s.batch = nil
	return out, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = errMsg
	return nil
}

func (s *fakeStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extended = append(s.extended, ids)
	return nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []kafka.Message
	FailKey  string
}

func (p *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.FailKey != "" && string(m.Key) == p.FailKey {
			return errBroker
		}
	}
	p.messages = append(p.messages, msgs...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelayFlushDispatchesAndMarksSent(t *testing.T) {
	store := &fakeStore{batch: []Event{
		{ID: 1, AggregateID: "order-1", Type: "PaymentSettled", Payload: []byte(`{"a":1}`), Traceparent: "00-abc-def-01", Headers: map[string]string{"source": "webhook"}},
		{ID: 2, AggregateID: "order-2", Type: "PaymentSettled", Payload: []byte(`{"a":2}`)},
	}}
	producer := &fakeProducer{}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), producer, "payment.events"), "test-relay")

	n, err := relay.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Flush() = %d, want 2", n)
	}
	if len(store.sent) != 2 || store.sent[0] != 1 || store.sent[1] != 2 {
		t.Errorf("sent = %v, want [1 2]", store.sent)
	}

	first := producer.messages[0]
	if first.Topic != "payment.events" || string(first.Key) != "order-1" {
		t.Errorf("message topic/key = %s/%s", first.Topic, first.Key)
	}
	if got := header(first, "event_type"); got != "PaymentSettled" {
		t.Errorf("event_type header = %q", got)
	}
	if got := header(first, "traceparent"); got != "00-abc-def-01" {
		t.Errorf("traceparent header = %q", got)
	}
	if got := header(first, "source"); got != "webhook" {
		t.Errorf("source header = %q", got)
	}
	if got := header(producer.messages[1], "traceparent"); got != "" {
		t.Errorf("unexpected traceparent header %q", got)
	}
}

func TestRelayFlushMarksFailedEventsAndKeepsGoing(t *testing.T) {
	store := &fakeStore{batch: []Event{
		{ID: 1, AggregateID: "order-1"},
		{ID: 2, AggregateID: "order-2"},
	}}
	producer := &fakeProducer{FailKey: "order-1"}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), producer, "t"), "r")

	n, err := relay.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Flush() = %d, want 1", n)
	}
	if msg, ok := store.failed[1]; !ok || msg != errBroker.Error() {
		t.Errorf("failed = %v, want event 1 marked with broker error", store.failed)
	}
	if len(store.sent) != 1 || store.sent[0] != 2 {
		t.Errorf("sent = %v, want [2]", store.sent)
	}
}

func TestRelayFlushExtendsLeaseOnLongBatches(t *testing.T) {
	var batch []Event
	for i := int64(1); i <= 25; i++ {
		batch = append(batch, Event{ID: i, AggregateID: "o"})
	}
	store := &fakeStore{batch: batch}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), &fakeProducer{}, "t"), "r", WithBatchSize(25))

	if _, err := relay.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(store.extended) != 2 {
		t.Fatalf("extended %d times, want 2", len(store.extended))
	}
	if got := store.extended[0]; len(got) != 15 || got[0] != 11 {
		t.Errorf("first extension = %v, want ids 11..25", got)
	}
}

func TestRelayFlushPropagatesLockError(t *testing.T) {
	store := &fakeStore{lockErr: errors.New("db down")}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), &fakeProducer{}, "t"), "r")

	if _, err := relay.Flush(context.Background()); err == nil {
		t.Fatal("Flush() error = nil, want lock error")
	}
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	store := &fakeStore{}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), &fakeProducer{}, "t"), "r", WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
