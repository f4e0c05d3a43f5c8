package message_broaker

import (
	"context"
	"errors"
	"sync"
)

var ErrBrokerClosed = errors.New("message broker is closed")

// MemoryBroker is an in-process broker. Queues are created on first use,
// routing keys map one to one onto queue names, and each consumer holds at
// most one unacknowledged message.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
	closed bool
	done   chan struct{}
}

type memoryQueue struct {
	messages [][]byte
	notify   chan struct{}
	inFlight int
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues: make(map[string]*memoryQueue),
		done:   make(chan struct{}),
	}
}

// queue must be called with b.mu held.
func (b *MemoryBroker) queue(name string) *memoryQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{notify: make(chan struct{}, 1)}
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) DeclareQueues(ctx context.Context, queues ...QueueSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range queues {
		b.queue(q.Name)
	}
	return nil
}

func (b *MemoryBroker) Publish(ctx context.Context, routingKey string, message []byte, _ ...PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	q := b.queue(routingKey)
	q.messages = append(q.messages, append([]byte(nil), message...))
	q.signal()
	return nil
}

func (q *memoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	q := b.queue(queue)
	b.mu.Unlock()

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			body, ok := b.pop(q)
			if !ok {
				select {
				case <-q.notify:
					continue
				case <-ctx.Done():
					return
				case <-b.done:
					return
				}
			}

			settled := make(chan bool, 1)
			var once sync.Once
			settle := func(requeue bool) error {
				once.Do(func() { settled <- requeue })
				return nil
			}
			delivery := NewDelivery(body, func() error { return settle(false) }, settle)

			select {
			case out <- delivery:
			case <-ctx.Done():
				b.requeue(q, body)
				return
			case <-b.done:
				return
			}

			select {
			case requeue := <-settled:
				b.finish(q, body, requeue)
			case <-ctx.Done():
				b.requeue(q, body)
				return
			case <-b.done:
				return
			}
		}
	}()
	return out, nil
}

func (b *MemoryBroker) pop(q *memoryQueue) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, false
	}
	body := q.messages[0]
	q.messages = q.messages[1:]
	q.inFlight++
	return body, true
}

func (b *MemoryBroker) finish(q *memoryQueue, body []byte, requeue bool) {
	if requeue {
		b.requeue(q, body)
		return
	}
	b.mu.Lock()
	q.inFlight--
	b.mu.Unlock()
}

// requeue puts a message back at the head of the queue.
func (b *MemoryBroker) requeue(q *memoryQueue, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q.inFlight--
	q.messages = append([][]byte{body}, q.messages...)
	q.signal()
}

// Pending returns the number of queued plus unacknowledged messages.
func (b *MemoryBroker) Pending(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue]
	if !ok {
		return 0
	}
	return len(q.messages) + q.inFlight
}

// Drain removes and returns every queued message without delivering it.
func (b *MemoryBroker) Drain(queue string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue]
	if !ok {
		return nil
	}
	messages := q.messages
	q.messages = nil
	return messages
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}
