package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeAcknowledger struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeues []bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeues = append(f.requeues, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type fakeStore struct {
	mu            sync.Mutex
	pushed        []string
	created       []*domain.Notification
	failOnUserID  string
	pushErr       error
	healthbookErr error
}

func (f *fakeStore) PushSingleNotification(ctx context.Context, notificationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnUserID != "" && userID == f.failOnUserID {
		if f.pushErr != nil {
			return f.pushErr
		}
		return errors.New("store failure")
	}
	f.pushed = append(f.pushed, userID)
	return nil
}

func (f *fakeStore) CreateHealthBookNotification(ctx context.Context, userID string, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthbookErr != nil {
		return f.healthbookErr
	}
	f.created = append(f.created, n)
	return nil
}

type fakeMailer struct {
	mu           sync.Mutex
	sent         []string
	failOnUserID string
}

func (f *fakeMailer) Send(ctx context.Context, userID, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnUserID != "" && userID == f.failOnUserID {
		return errors.New("gateway failure")
	}
	f.sent = append(f.sent, userID)
	return nil
}

type fakeSubscriber struct {
	mu             sync.Mutex
	available      bool
	connectOutcome Outcome
	connectCalls   int
	deliveries     chan amqp.Delivery
	subscribeErr   error
	subscribed     []string
	closed         int
}

func (f *fakeSubscriber) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeSubscriber) Connect(ctx context.Context) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectOutcome == OutcomeOK {
		f.available = true
	}
	return f.connectOutcome
}

func (f *fakeSubscriber) Subscribe(queue string, prefetch int) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.subscribed = append(f.subscribed, queue)
	return f.deliveries, nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func testConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		PushQueue:            "notification_queue",
		EmailQueue:           "notification_email_queue",
		HealthbookQueue:      "notification-healthbook-create",
		Prefetch:             8,
		HealthbookNotiTypeID: "3bb17b2e-4f35-4e56-a8dc-1c31f2466ed7",
	}
}

func newTestConsumer(t *testing.T, broker subscriber, store NotificationStore, mailer Mailer) *Consumer {
	t.Helper()
	c, err := newConsumer(broker, store, mailer, testConsumerConfig(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func delivery(ack *fakeAcknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, Body: []byte(body)}
}

func TestConsumer_PushDeliveryAcked(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	c := newTestConsumer(t, &fakeSubscriber{available: true}, store, nil)

	ack := &fakeAcknowledger{}
	c.handlePushDelivery(context.Background(), delivery(ack,
		`{"notificationId":"n1","Receivers":[{"UserId":"u1"},{"UserId":"u2"}],"isEmail":false}`))

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("acks = %d, nacks = %d, want 1 ack", ack.acks, ack.nacks)
	}
	if len(store.pushed) != 2 {
		t.Errorf("pushed %d receivers, want 2", len(store.pushed))
	}
}

func TestConsumer_PushFirstFailureStopsAndRequeues(t *testing.T) {
	t.Parallel()

	store := &fakeStore{failOnUserID: "u2"}
	c := newTestConsumer(t, &fakeSubscriber{available: true}, store, nil)

	ack := &fakeAcknowledger{}
	c.handlePushDelivery(context.Background(), delivery(ack,
		`{"notificationId":"n1","Receivers":[{"UserId":"u1"},{"UserId":"u2"},{"UserId":"u3"}]}`))

	if ack.acks != 0 || ack.nacks != 1 {
		t.Fatalf("acks = %d, nacks = %d, want 1 nack", ack.acks, ack.nacks)
	}
	if !ack.requeues[0] {
		t.Error("nack should requeue the message")
	}
	// Processing stops at the failing receiver; u3 is never attempted.
	if len(store.pushed) != 1 || store.pushed[0] != "u1" {
		t.Errorf("pushed = %v, want only u1", store.pushed)
	}
}

func TestConsumer_MalformedJSONRequeued(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	c := newTestConsumer(t, &fakeSubscriber{available: true}, store, nil)

	ack := &fakeAcknowledger{}
	c.handlePushDelivery(context.Background(), delivery(ack, `{not json`))

	if ack.nacks != 1 {
		t.Fatalf("nacks = %d, want 1", ack.nacks)
	}
	if !ack.requeues[0] {
		t.Error("malformed message should be requeued")
	}
	if len(store.pushed) != 0 {
		t.Errorf("pushed %d receivers for malformed input, want 0", len(store.pushed))
	}
}

func TestConsumer_EmailDelivery(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	c := newTestConsumer(t, &fakeSubscriber{available: true}, &fakeStore{}, mailer)

	ack := &fakeAcknowledger{}
	c.handleEmailDelivery(context.Background(), delivery(ack,
		`{"notificationId":"n1","NotificationTitle":"Vaccine due","NotificationContent":"This week.","Receivers":[{"UserId":"u1"},{"UserId":"u2"}]}`))

	if ack.acks != 1 {
		t.Fatalf("acks = %d, want 1", ack.acks)
	}
	if len(mailer.sent) != 2 {
		t.Errorf("sent %d emails, want 2", len(mailer.sent))
	}
}

func TestConsumer_EmailFailureRequeues(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{failOnUserID: "u1"}
	c := newTestConsumer(t, &fakeSubscriber{available: true}, &fakeStore{}, mailer)

	ack := &fakeAcknowledger{}
	c.handleEmailDelivery(context.Background(), delivery(ack,
		`{"notificationId":"n1","NotificationTitle":"t","NotificationContent":"c","Receivers":[{"UserId":"u1"},{"UserId":"u2"}]}`))

	if ack.nacks != 1 || !ack.requeues[0] {
		t.Fatal("failed email delivery should nack with requeue")
	}
	if len(mailer.sent) != 0 {
		t.Errorf("sent = %v, want none after first failure", mailer.sent)
	}
}

func TestConsumer_HealthbookDelivery(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	c := newTestConsumer(t, &fakeSubscriber{available: true}, store, nil)

	ack := &fakeAcknowledger{}
	c.handleHealthbookDelivery(context.Background(), delivery(ack,
		`[{"UserId":"u1","PetName":"Mochi","nextVisitDate":"2026-09-01T09:00:00Z"}]`))

	if ack.acks != 1 {
		t.Fatalf("acks = %d, want 1", ack.acks)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d notifications, want 1", len(store.created))
	}

	n := store.created[0]
	if n.NotiTypeID != "3bb17b2e-4f35-4e56-a8dc-1c31f2466ed7" {
		t.Errorf("NotiTypeID = %s", n.NotiTypeID)
	}
	if !strings.Contains(n.Title, "Mochi") || !strings.Contains(n.Title, "01/09/2026") {
		t.Errorf("Title = %q, want pet name and visit date", n.Title)
	}
	if !n.IsPushed {
		t.Error("reminder notification should be marked pushed")
	}
}

func TestConsumer_ReminderNotificationIDDeterministic(t *testing.T) {
	t.Parallel()

	c := newTestConsumer(t, &fakeSubscriber{available: true}, &fakeStore{}, nil)

	reminder := HealthBookReminder{
		UserID:        "u1",
		PetName:       "Mochi",
		NextVisitDate: time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
	}

	first := c.reminderNotification(reminder)
	second := c.reminderNotification(reminder)
	if first.ID != second.ID {
		t.Errorf("same reminder produced ids %s and %s; redelivery would duplicate rows", first.ID, second.ID)
	}

	other := reminder
	other.PetName = "Biscuit"
	if c.reminderNotification(other).ID == first.ID {
		t.Error("different reminders must not share a notification id")
	}
}

func TestConsumer_StartConnectsThroughGuard(t *testing.T) {
	t.Parallel()

	broker := &fakeSubscriber{
		available:      false,
		connectOutcome: OutcomeOK,
		deliveries:     make(chan amqp.Delivery),
	}
	c := newTestConsumer(t, broker, &fakeStore{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := c.StartPushConsumer(ctx)
	if !result.Flag {
		t.Fatalf("expected subscription success, got %q", result.Message)
	}
	if broker.connectCalls != 1 {
		t.Errorf("connect calls = %d, want 1", broker.connectCalls)
	}
}

func TestConsumer_StartFailsWhenSuppressed(t *testing.T) {
	t.Parallel()

	broker := &fakeSubscriber{available: false, connectOutcome: OutcomeSuppressed}
	c := newTestConsumer(t, broker, &fakeStore{}, nil)

	result := c.StartPushConsumer(context.Background())
	if result.Flag {
		t.Fatal("expected failure while the breaker suppresses connects")
	}
	if len(broker.subscribed) != 0 {
		t.Error("no subscription should be registered when connect is suppressed")
	}
}

func TestConsumer_StartEmailRequiresMailer(t *testing.T) {
	t.Parallel()

	c := newTestConsumer(t, &fakeSubscriber{available: true}, &fakeStore{}, nil)

	result := c.StartEmailConsumer(context.Background())
	if result.Flag {
		t.Fatal("expected failure without a configured mailer")
	}
}

func TestConsumer_RunDispatchesDeliveries(t *testing.T) {
	t.Parallel()

	deliveries := make(chan amqp.Delivery, 1)
	broker := &fakeSubscriber{available: true, deliveries: deliveries}
	store := &fakeStore{}
	c := newTestConsumer(t, broker, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := c.StartPushConsumer(ctx)
	if !result.Flag {
		t.Fatalf("expected subscription success, got %q", result.Message)
	}

	ack := &fakeAcknowledger{}
	deliveries <- delivery(ack, `{"notificationId":"n1","Receivers":[{"UserId":"u1"}]}`)

	deadline := time.After(2 * time.Second)
	for {
		ack.mu.Lock()
		done := ack.acks == 1
		ack.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("delivery was not processed in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestConsumer_SubscribeErrorReported(t *testing.T) {
	t.Parallel()

	broker := &fakeSubscriber{available: true, subscribeErr: fmt.Errorf("channel closed")}
	c := newTestConsumer(t, broker, &fakeStore{}, nil)

	result := c.StartPushConsumer(context.Background())
	if result.Flag {
		t.Fatal("expected failure when subscribe errors")
	}
	if result.Err == nil {
		t.Error("failure result should carry the subscribe error")
	}
}
