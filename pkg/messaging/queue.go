package messaging

import (
	"context"
)

// Topics used by the engine. Dispatch carries queued message IDs,
// receipts carries carrier delivery callbacks.
const (
	TopicDispatch = "sms:dispatch"
	TopicReceipts = "sms:receipts"
)

// Queue is the message-passing boundary between trigger evaluation and
// carrier dispatch, and between the receipt webhook and the delivery
// tracker. Payloads are JSON-encoded by the implementation.
type Queue interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
	Consume(ctx context.Context, topic string) (<-chan []byte, error)
	Depth(ctx context.Context, topic string) (int64, error)
	Close() error
}
