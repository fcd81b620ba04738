package queue

import "context"

const nullPublisherMessage = "notification messaging is not available; message was not published"

// NullPublisher is the fallback used when the broker is not reachable at
// startup. Every operation reports failure with a fixed message and has no
// side effects, so callers treat "messaging unavailable" as an ordinary
// Result instead of special-casing nil publishers.
type NullPublisher struct{}

var _ Publisher = NullPublisher{}

func NewNullPublisher() NullPublisher {
	return NullPublisher{}
}

func (NullPublisher) Initialize(ctx context.Context) Result {
	return Failure(nullPublisherMessage, nil)
}

func (NullPublisher) PublishPushBatch(ctx context.Context, msg PushNotification) Result {
	return Failure(nullPublisherMessage, nil)
}

func (NullPublisher) PublishEmailAndPushBatch(ctx context.Context, msg SendNotification) Result {
	return Failure(nullPublisherMessage, nil)
}

func (NullPublisher) Close() error {
	return nil
}
