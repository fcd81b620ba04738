package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/queue"
)

type fakeConsumer struct {
	mu sync.Mutex

	available  bool
	failStarts bool

	pushStarts       int
	emailStarts      int
	healthbookStarts int
}

func (f *fakeConsumer) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeConsumer) setAvailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = v
}

func (f *fakeConsumer) start(counter *int) queue.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	*counter++
	if f.failStarts {
		return queue.Failure("cannot subscribe", nil)
	}
	return queue.Success("subscribed", 0)
}

func (f *fakeConsumer) StartPushConsumer(ctx context.Context) queue.Result {
	return f.start(&f.pushStarts)
}

func (f *fakeConsumer) StartEmailConsumer(ctx context.Context) queue.Result {
	return f.start(&f.emailStarts)
}

func (f *fakeConsumer) StartHealthbookConsumer(ctx context.Context) queue.Result {
	return f.start(&f.healthbookStarts)
}

func (f *fakeConsumer) counts() (push, email, healthbook int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushStarts, f.emailStarts, f.healthbookStarts
}

func TestDispatchWorker_StartsAllConsumers(t *testing.T) {
	t.Parallel()

	consumer := &fakeConsumer{available: true}
	w, err := newDispatchWorker(consumer, true, time.Hour, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	waitFor(t, func() bool {
		push, email, healthbook := consumer.counts()
		return push == 1 && email == 1 && healthbook == 1
	}, "all consumers should be started once")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start returned %v", err)
	}
}

func TestDispatchWorker_SkipsEmailWhenDisabled(t *testing.T) {
	t.Parallel()

	consumer := &fakeConsumer{available: true}
	w, err := newDispatchWorker(consumer, false, time.Hour, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	waitFor(t, func() bool {
		push, _, healthbook := consumer.counts()
		return push == 1 && healthbook == 1
	}, "push and healthbook consumers should start")

	_, email, _ := consumer.counts()
	if email != 0 {
		t.Errorf("email starts = %d, want 0", email)
	}

	cancel()
	<-done
}

func TestDispatchWorker_ResubscribesAfterConnectionLoss(t *testing.T) {
	t.Parallel()

	consumer := &fakeConsumer{available: true}
	w, err := newDispatchWorker(consumer, false, 5*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	waitFor(t, func() bool {
		push, _, _ := consumer.counts()
		return push >= 1
	}, "initial subscription")

	consumer.setAvailable(false)
	waitFor(t, func() bool {
		push, _, _ := consumer.counts()
		return push >= 2
	}, "worker should resubscribe after the connection drops")

	cancel()
	<-done
}

func TestDispatchWorker_RetriesFailedSubscription(t *testing.T) {
	t.Parallel()

	consumer := &fakeConsumer{available: false, failStarts: true}
	w, err := newDispatchWorker(consumer, false, 5*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	waitFor(t, func() bool {
		push, _, _ := consumer.counts()
		return push >= 3
	}, "worker should keep retrying a failed subscription")

	cancel()
	<-done
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting: %s", msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
