package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Group592024/petbooking-notifier/internal/domain"
	"github.com/Group592024/petbooking-notifier/internal/queue"
)

type fakePublisher struct {
	mu sync.Mutex

	initResult       queue.Result
	publishResults   []queue.Result
	initCalls        int
	pushCalls        []queue.PushNotification
	emailCalls       []queue.SendNotification
	publishCallCount int
}

func (f *fakePublisher) Initialize(ctx context.Context) queue.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initResult
}

func (f *fakePublisher) nextResult() queue.Result {
	if f.publishCallCount < len(f.publishResults) {
		r := f.publishResults[f.publishCallCount]
		f.publishCallCount++
		return r
	}
	f.publishCallCount++
	return queue.Success("published", 0)
}

func (f *fakePublisher) PublishPushBatch(ctx context.Context, msg queue.PushNotification) queue.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushCalls = append(f.pushCalls, msg)
	return f.nextResult()
}

func (f *fakePublisher) PublishEmailAndPushBatch(ctx context.Context, msg queue.SendNotification) queue.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailCalls = append(f.emailCalls, msg)
	return f.nextResult()
}

func (f *fakePublisher) Close() error { return nil }

type fakeNotificationRepo struct {
	mu        sync.Mutex
	created   []*domain.Notification
	createErr error
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) PushSingleNotification(ctx context.Context, notificationID, userID string) error {
	return nil
}

func (f *fakeNotificationRepo) CreateHealthBookNotification(ctx context.Context, userID string, n *domain.Notification) error {
	return nil
}

func newTestNotifier(t *testing.T, repo *fakeNotificationRepo, publisher *fakePublisher) *NotifierService {
	t.Helper()
	s, err := NewNotifierService(repo, publisher, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func sendRequest() SendRequest {
	return SendRequest{
		NotiTypeID:  "booking",
		Title:       "Booking confirmed",
		Content:     "Mochi is booked for Saturday.",
		ReceiverIDs: []string{"u1", "u2"},
	}
}

func TestNotifierService_SendStoresAndPublishes(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	publisher := &fakePublisher{publishResults: []queue.Result{queue.Success("published", 2)}}
	s := newTestNotifier(t, repo, publisher)

	notification, result, err := s.Send(context.Background(), sendRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Flag {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d notifications, want 1", len(repo.created))
	}
	if notification.ID == "" {
		t.Error("notification should get an id")
	}
	if len(publisher.pushCalls) != 1 {
		t.Fatalf("push publishes = %d, want 1", len(publisher.pushCalls))
	}
	if publisher.pushCalls[0].NotificationID != notification.ID {
		t.Error("published batch should carry the stored notification's id")
	}
	if len(publisher.pushCalls[0].Receivers) != 2 {
		t.Errorf("published %d receivers, want 2", len(publisher.pushCalls[0].Receivers))
	}
}

func TestNotifierService_WithEmailUsesEmailPath(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	publisher := &fakePublisher{publishResults: []queue.Result{queue.Success("published", 2)}}
	s := newTestNotifier(t, repo, publisher)

	req := sendRequest()
	req.WithEmail = true
	_, result, err := s.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Flag {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if len(publisher.emailCalls) != 1 || len(publisher.pushCalls) != 0 {
		t.Errorf("emailCalls = %d, pushCalls = %d, want the email path only",
			len(publisher.emailCalls), len(publisher.pushCalls))
	}
	if publisher.emailCalls[0].Title != "Booking confirmed" {
		t.Errorf("Title = %q", publisher.emailCalls[0].Title)
	}
}

func TestNotifierService_UnavailableTriggersOneReconnectRetry(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	publisher := &fakePublisher{
		initResult: queue.Success("connected", 0),
		publishResults: []queue.Result{
			queue.Failure("messaging connection is unavailable", nil),
			queue.Success("published", 2),
		},
	}
	s := newTestNotifier(t, repo, publisher)

	_, result, err := s.Send(context.Background(), sendRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Flag {
		t.Fatalf("expected success after reconnect, got %q", result.Message)
	}
	if publisher.initCalls != 1 {
		t.Errorf("Initialize calls = %d, want 1", publisher.initCalls)
	}
	if len(publisher.pushCalls) != 2 {
		t.Errorf("push publishes = %d, want 2", len(publisher.pushCalls))
	}
}

func TestNotifierService_NoRetryWhenReconnectSuppressed(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	publisher := &fakePublisher{
		initResult: queue.Failure("suppressed by circuit breaker", nil),
		publishResults: []queue.Result{
			queue.Failure("messaging connection is unavailable", nil),
		},
	}
	s := newTestNotifier(t, repo, publisher)

	notification, result, err := s.Send(context.Background(), sendRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Flag {
		t.Fatal("expected failure while the breaker suppresses reconnects")
	}
	if len(publisher.pushCalls) != 1 {
		t.Errorf("push publishes = %d, want 1", len(publisher.pushCalls))
	}
	// The row is stored regardless, so the send can be replayed later.
	if len(repo.created) != 1 || notification == nil {
		t.Error("notification should be stored even when publishing fails")
	}
}

func TestNotifierService_WireFailureNotRetried(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	publisher := &fakePublisher{
		initResult: queue.Success("connected", 0),
		publishResults: []queue.Result{
			queue.Failure("failed to publish push batch", errors.New("channel closed")),
		},
	}
	s := newTestNotifier(t, repo, publisher)

	_, result, err := s.Send(context.Background(), sendRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Flag {
		t.Fatal("expected failure")
	}
	if publisher.initCalls != 0 {
		t.Errorf("Initialize calls = %d, want 0 for a publish that hit the wire", publisher.initCalls)
	}
	if len(publisher.pushCalls) != 1 {
		t.Errorf("push publishes = %d, want 1", len(publisher.pushCalls))
	}
}

func TestNotifierService_ReceiverNormalization(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	publisher := &fakePublisher{}
	s := newTestNotifier(t, repo, publisher)

	req := sendRequest()
	req.ReceiverIDs = []string{" u1 ", "u1", "u2"}
	_, _, err := s.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := publisher.pushCalls[0].Receivers; len(got) != 2 {
		t.Errorf("receivers = %v, want deduplicated u1 and u2", got)
	}
}

func TestNotifierService_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		receivers []string
	}{
		{"empty list", nil},
		{"blank receiver", []string{"u1", "  "}},
		{"too many receivers", make([]string, maxReceivers+1)},
	}

	for i := range tests[2].receivers {
		tests[2].receivers[i] = "u"
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeNotificationRepo{}
			publisher := &fakePublisher{}
			s := newTestNotifier(t, repo, publisher)

			req := sendRequest()
			req.ReceiverIDs = tt.receivers
			_, _, err := s.Send(context.Background(), req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
			if len(repo.created) != 0 {
				t.Error("invalid requests must not store a row")
			}
		})
	}
}

func TestNotifierService_StoreFailureSkipsPublish(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{createErr: errors.New("db down")}
	publisher := &fakePublisher{}
	s := newTestNotifier(t, repo, publisher)

	_, _, err := s.Send(context.Background(), sendRequest())
	if err == nil {
		t.Fatal("expected error from the repository")
	}
	if len(publisher.pushCalls) != 0 || len(publisher.emailCalls) != 0 {
		t.Error("nothing should be published when the store fails")
	}
}
