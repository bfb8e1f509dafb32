package tree

import (
	"sync"

	"github.com/acorndb/acorndb/pkg/acorn/envelope"
)

// Subscriber is a channel that receives change events for one listener.
type Subscriber[T any] chan *envelope.ChangeEvent[T]

// broker fans a tree's change events out to subscribers: one internal
// buffered channel feeding N per-subscriber buffered channels, a
// non-blocking send per subscriber so one slow listener cannot stall the
// tree (spec §4.3 Subscribe). Generalized from the teacher's
// pub/sub broker to the envelope's ChangeEvent type.
type broker[T any] struct {
	mu          sync.RWMutex
	subscribers map[Subscriber[T]]bool
	eventCh     chan *envelope.ChangeEvent[T]
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func newBroker[T any]() *broker[T] {
	b := &broker[T]{
		subscribers: make(map[Subscriber[T]]bool),
		eventCh:     make(chan *envelope.ChangeEvent[T], 100),
		stopCh:      make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *broker[T]) Subscribe() Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber[T], 50)
	b.subscribers[sub] = true
	return sub
}

func (b *broker[T]) Unsubscribe(sub Subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

func (b *broker[T]) Publish(evt *envelope.ChangeEvent[T]) {
	select {
	case b.eventCh <- evt:
	case <-b.stopCh:
	}
}

func (b *broker[T]) run() {
	for {
		select {
		case evt := <-b.eventCh:
			b.broadcast(evt)
		case <-b.stopCh:
			return
		}
	}
}

func (b *broker[T]) broadcast(evt *envelope.ChangeEvent[T]) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- evt:
		default:
		}
	}
}

func (b *broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *broker[T]) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}
