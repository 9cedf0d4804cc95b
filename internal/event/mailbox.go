package event

import "sync"

// Mailbox is a multi-producer queue with a single consumer.
// Producers never block on the consumer.
type Mailbox[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

// NewMailbox returns a mailbox holding at most limit pending items.
// When full, Push drops the new item and reports false. A limit <= 0 means
// unbounded.
func NewMailbox[T any](limit int) *Mailbox[T] {
	return &Mailbox[T]{limit: limit}
}

func (m *Mailbox[T]) Push(item T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit > 0 && len(m.items) >= m.limit {
		return false
	}
	m.items = append(m.items, item)
	return true
}

// Drain returns pending items in FIFO order and empties the mailbox.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil
	}
	out := m.items
	m.items = nil
	return out
}

func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
