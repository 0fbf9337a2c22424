package amqp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"finsync/internal/events"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{15, 30 * time.Second}, // capped at 30s
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection error", errors.New("connection refused"), true},
		{"closed connection error", errors.New("connection closed"), true},
		{"EOF error", errors.New("unexpected EOF"), true},
		{"broken pipe error", errors.New("broken pipe"), true},
		{"closed network connection error", errors.New("use of closed network connection"), true},
		{"amqp closed", fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{"other error", errors.New("some other error"), false},
		{"validation error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isConnectionError(tt.err)
			if result != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func testEvent(t *testing.T) events.Event {
	t.Helper()
	ev, err := events.New("transaction", events.ActionConfirmed, 1, 42, map[string]string{"amount": "10"})
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestClient_Publish(t *testing.T) {
	client := newClient(Config{Exchange: "test_exchange"}, nil)

	var gotKey string
	var gotMsg amqp091.Publishing
	client.publish = func(ctx context.Context, key string, msg amqp091.Publishing) error {
		gotKey, gotMsg = key, msg
		return nil
	}

	ev := testEvent(t)
	if err := client.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if gotKey != "transaction.confirmed" {
		t.Errorf("routing key = %q", gotKey)
	}
	if gotMsg.DeliveryMode != amqp091.Persistent {
		t.Error("message should be persistent")
	}
	if gotMsg.MessageId != ev.ID {
		t.Errorf("MessageId = %q, want %q", gotMsg.MessageId, ev.ID)
	}
	parsed, err := events.FromJSON(gotMsg.Body)
	if err != nil || parsed.RecordID != 42 {
		t.Errorf("body round trip = %+v, %v", parsed, err)
	}
}

func TestClient_Publish_CircuitBreaker(t *testing.T) {
	client := newClient(Config{Exchange: "test_exchange"}, nil)

	calls := 0
	client.publish = func(ctx context.Context, key string, msg amqp091.Publishing) error {
		calls++
		return errors.New("broker said no")
	}

	ctx := context.Background()
	for i := 0; i < maxFailures; i++ {
		if err := client.Publish(ctx, testEvent(t)); err == nil {
			t.Fatal("Publish should fail")
		}
	}

	err := client.Publish(ctx, testEvent(t))
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Publish with open circuit = %v, want ErrCircuitOpen", err)
	}
	if calls != maxFailures {
		t.Errorf("open circuit must not reach the broker: calls = %d", calls)
	}
}

func TestClient_Publish_RespectsCancellation(t *testing.T) {
	client := newClient(Config{Exchange: "test_exchange"}, nil)
	client.publish = func(ctx context.Context, key string, msg amqp091.Publishing) error {
		t.Error("publish should not be attempted")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Publish(ctx, testEvent(t)); err != context.Canceled {
		t.Errorf("Publish() = %v, want context.Canceled", err)
	}
}

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked, f.requeue = true, requeue
	return nil
}

func TestDispatch(t *testing.T) {
	body, _ := testEvent(t).ToJSON()
	logger := newClient(Config{}, nil).logger

	tests := []struct {
		name        string
		body        []byte
		handlerErr  error
		wantAck     bool
		wantRequeue bool
	}{
		{"success", body, nil, true, false},
		{"handler failure is requeued", body, errors.New("sheets down"), false, true},
		{"malformed payload is dropped", body, fmt.Errorf("decode: %w", events.ErrMalformed), false, false},
		{"malformed body is dropped", []byte(`{`), nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			dispatch(context.Background(), logger, tt.body, ack, func(ctx context.Context, ev events.Event) error {
				return tt.handlerErr
			})
			if ack.acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", ack.acked, tt.wantAck)
			}
			if !tt.wantAck && !ack.nacked {
				t.Error("expected a nack")
			}
			if ack.requeue != tt.wantRequeue {
				t.Errorf("requeue = %v, want %v", ack.requeue, tt.wantRequeue)
			}
		})
	}
}
