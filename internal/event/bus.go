// Package event provides typed pub/sub buses scoped to one engine instance.
//
// A [Bus] delivers synchronously on the publisher's goroutine, in
// subscription order. A [Mailbox] carries requests from any goroutine to the
// frame loop, which drains it at a safe point.
package event

import "sync"

type Handler[T any] func(T)

type Bus[T any] struct {
	mu       sync.RWMutex
	next     int
	handlers []subscription[T]
}

type subscription[T any] struct {
	id int
	fn Handler[T]
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus[T]) Subscribe(fn Handler[T]) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.handlers = append(b.handlers, subscription[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.handlers {
		if s.id == id {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

func (b *Bus[T]) Publish(ev T) {
	b.mu.RLock()
	handlers := make([]Handler[T], len(b.handlers))
	for i, s := range b.handlers {
		handlers[i] = s.fn
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Reset drops every subscriber.
func (b *Bus[T]) Reset() {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
}
