package queue

import "context"

// Result is the outcome every public messaging operation reports. Nothing in
// this package throws past its boundary; callers branch on Flag.
type Result struct {
	Flag      bool
	Message   string
	Published int
	Err       error
}

func Success(message string, published int) Result {
	return Result{Flag: true, Message: message, Published: published}
}

func Failure(message string, err error) Result {
	return Result{Flag: false, Message: message, Err: err}
}

// Publisher publishes notification batches to the broker.
type Publisher interface {
	Initialize(ctx context.Context) Result
	PublishPushBatch(ctx context.Context, msg PushNotification) Result
	PublishEmailAndPushBatch(ctx context.Context, msg SendNotification) Result
	Close() error
}
