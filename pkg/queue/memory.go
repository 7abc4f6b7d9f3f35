package queue

import (
	"context"
	"sync"
)

// MemoryQueue 进程内队列，用于本地调试和测试
type MemoryQueue struct {
	ch    chan []byte
	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	acked int
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan []byte, size), done: make(chan struct{})}
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrClosed
	case body := <-q.ch:
		return NewDelivery(body, func() error {
			q.mu.Lock()
			q.acked++
			q.mu.Unlock()
			return nil
		}), nil
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, body []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	case q.ch <- body:
		return nil
	}
}

// Acked 已确认的消息数
func (q *MemoryQueue) Acked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked
}

func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
