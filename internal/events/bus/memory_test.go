package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentmux/agentmux/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func TestNewMemoryEventBus(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	if b == nil {
		t.Fatal("Expected non-nil bus")
	}
	if !b.IsConnected() {
		t.Error("Expected bus to be connected")
	}
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	received := make(chan *Notification, 1)
	sub, err := b.Subscribe("agent.spawned", func(ctx context.Context, n *Notification) error {
		received <- n
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	n := NewNotification(SubjectAgentSpawned, "manager", map[string]any{"agent_id": "a1"})
	if err := b.Publish(context.Background(), "agent.spawned", n); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != SubjectAgentSpawned {
			t.Errorf("Expected type %q, got %q", SubjectAgentSpawned, got.Type)
		}
		if got.Data["agent_id"] != "a1" {
			t.Errorf("Expected agent_id a1, got %v", got.Data["agent_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for notification")
	}
}

func TestMemoryEventBus_WildcardSubscribe(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	var count atomic.Int32
	if _, err := b.Subscribe("agent.*", func(ctx context.Context, n *Notification) error {
		count.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx := context.Background()
	for _, subject := range []string{SubjectAgentSpawned, SubjectAgentCompleted, SubjectAgentFailed} {
		if err := b.Publish(ctx, subject, NewNotification(subject, "manager", nil)); err != nil {
			t.Fatalf("Publish %s failed: %v", subject, err)
		}
	}
	// Tokens beyond one level must not match "*".
	if err := b.Publish(ctx, "agent.a1.status", NewNotification("agent.a1.status", "manager", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := count.Load(); got != 3 {
		t.Errorf("Expected 3 deliveries, got %d", got)
	}
}

func TestMemoryEventBus_FullWildcard(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	var count atomic.Int32
	if _, err := b.Subscribe("agent.>", func(ctx context.Context, n *Notification) error {
		count.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx := context.Background()
	for _, subject := range []string{"agent.spawned", "agent.a1.status", "agent.a1.status.deep"} {
		if err := b.Publish(ctx, subject, NewNotification(subject, "manager", nil)); err != nil {
			t.Fatalf("Publish %s failed: %v", subject, err)
		}
	}
	if got := count.Load(); got != 3 {
		t.Errorf("Expected 3 deliveries, got %d", got)
	}
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	var count atomic.Int32
	sub, err := b.Subscribe("agent.stopped", func(ctx context.Context, n *Notification) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if !sub.IsValid() {
		t.Fatal("Expected valid subscription")
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if sub.IsValid() {
		t.Error("Expected subscription to be invalid after unsubscribe")
	}

	if err := b.Publish(context.Background(), "agent.stopped", NewNotification(SubjectAgentStopped, "manager", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := count.Load(); got != 0 {
		t.Errorf("Expected no deliveries after unsubscribe, got %d", got)
	}
}

func TestMemoryEventBus_ConcurrentPublish(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	var count atomic.Int32
	if _, err := b.Subscribe("agent.completed", func(ctx context.Context, n *Notification) error {
		count.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := NewNotification(SubjectAgentCompleted, "manager", nil)
			_ = b.Publish(context.Background(), "agent.completed", n)
		}()
	}
	wg.Wait()

	if got := count.Load(); got != 10 {
		t.Errorf("Expected 10 deliveries, got %d", got)
	}
}
