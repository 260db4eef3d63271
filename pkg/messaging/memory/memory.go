package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryQueue is a channel-backed Queue for tests and single-process
// development. Not durable.
type MemoryQueue struct {
	mu     sync.Mutex
	topics map[string]chan []byte
	closed bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{topics: make(map[string]chan []byte)}
}

func (q *MemoryQueue) topic(name string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.topics[name]
	if !ok {
		ch = make(chan []byte, 1024)
		q.topics[name] = ch
	}
	return ch
}

func (q *MemoryQueue) Publish(ctx context.Context, topic string, payload interface{}) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return fmt.Errorf("queue closed")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	select {
	case q.topic(topic) <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	src := q.topic(topic)
	out := make(chan []byte, 100)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (q *MemoryQueue) Depth(_ context.Context, topic string) (int64, error) {
	return int64(len(q.topic(topic))), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
