package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/MarketForge/internal/logger"
	"github.com/Strob0t/MarketForge/internal/port/messagequeue"
)

func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

// received is what a test handler saw for one message.
type received struct {
	subject   string
	data      []byte
	requestID string
	tenantID  string
}

// collect subscribes through the Queue and forwards every delivery.
func collect(t *testing.T, q *Queue, subject string, fail error) <-chan received {
	t.Helper()
	ch := make(chan received, 16)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, subj string, data []byte) error {
		ch <- received{subject: subj, data: data, requestID: logger.RequestID(ctx), tenantID: logger.TenantID(ctx)}
		return fail
	})
	if err != nil {
		t.Fatalf("Subscribe %s: %v", subject, err)
	}
	t.Cleanup(stop)
	return ch
}

// collectRaw reads a subject without validation, used for dead letters.
func collectRaw(t *testing.T, q *Queue, subject string) <-chan jetstream.Msg {
	t.Helper()
	ctx := context.Background()
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("consumer %s: %v", subject, err)
	}
	ch := make(chan jetstream.Msg, 16)
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		_ = msg.Ack()
		ch <- msg
	})
	if err != nil {
		t.Fatalf("consume %s: %v", subject, err)
	}
	t.Cleanup(cc.Stop)
	return ch
}

func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	var zero T
	return zero
}

func TestQueue_TenantProvisionedRoundTrip(t *testing.T) {
	q := testConnect(t)
	got := collect(t, q, messagequeue.SubjectTenantProvisioned, nil)

	payload := messagequeue.TenantProvisionedPayload{
		TenantID:  "0b6f4c1e-test",
		Subdomain: "acme",
		OwnerID:   "user-1",
		Plan:      "BASIC",
	}
	data, _ := json.Marshal(payload)

	ctx := logger.WithRequestID(context.Background(), "req-provision-1")
	ctx = logger.WithTenantID(ctx, payload.TenantID)
	if err := q.Publish(ctx, messagequeue.SubjectTenantProvisioned, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Older runs may have left messages behind; look for ours.
	for {
		msg := await(t, got)
		var p messagequeue.TenantProvisionedPayload
		if json.Unmarshal(msg.data, &p) != nil || p.TenantID != payload.TenantID {
			continue
		}
		if p != payload {
			t.Fatalf("payload = %+v, want %+v", p, payload)
		}
		if msg.requestID != "req-provision-1" {
			t.Errorf("request id = %q", msg.requestID)
		}
		if msg.tenantID != payload.TenantID {
			t.Errorf("tenant id = %q", msg.tenantID)
		}
		return
	}
}

func TestQueue_InvalidPayloadDeadLettered(t *testing.T) {
	q := testConnect(t)
	subject := messagequeue.SubjectDomainChanged
	dead := collectRaw(t, q, subject+".dlq")
	_ = collect(t, q, subject, nil)

	if err := q.Publish(context.Background(), subject, []byte(`{"domain":42}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := await(t, dead)
	if string(msg.Data()) != `{"domain":42}` {
		t.Fatalf("dead letter data = %q", msg.Data())
	}
	if msg.Headers().Get(headerDLQReason) == "" {
		t.Fatal("expected DLQ reason header")
	}
}

func TestQueue_HandlerFailureRetriedThenDeadLettered(t *testing.T) {
	q := testConnect(t)
	subject := "platform.test.retry"
	dead := collectRaw(t, q, subject+".dlq")
	got := collect(t, q, subject, errors.New("rotation handler failed"))

	if err := q.Publish(context.Background(), subject, []byte(`{"key":"MARKETFORGE_ADMIN_KEY"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// First delivery plus maxRetries redeliveries.
	for i := 0; i <= maxRetries; i++ {
		await(t, got)
	}
	msg := await(t, dead)
	if n := msg.Headers().Get(headerRetryCount); n != "3" {
		t.Fatalf("retry count on dead letter = %q", n)
	}
}

func TestQueue_IdempotencyBucket(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "MARKETFORGE_TEST_IDEMPOTENCY", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}

	key := "user-1.setup-key-1"
	if _, err := kv.Put(ctx, key, []byte(`{"status":201}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != `{"status":201}` {
		t.Fatalf("value = %q", entry.Value())
	}

	if err := kv.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, key); !errors.Is(err, jetstream.ErrKeyNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if !q.IsConnected() {
		t.Fatal("expected connected queue")
	}
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		header string
		want   int
	}{
		{"", 0},
		{"2", 2},
		{"garbage", 0},
	}
	for _, tt := range tests {
		h := nats.Header{}
		if tt.header != "" {
			h.Set(headerRetryCount, tt.header)
		}
		if got := retryCount(h); got != tt.want {
			t.Errorf("retryCount(%q) = %d, want %d", tt.header, got, tt.want)
		}
	}
}
