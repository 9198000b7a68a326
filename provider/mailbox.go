package provider

import (
	"sync/atomic"
)

// Mailbox is a single slot message box.  Posting overwrites any message not
// yet taken so the reader always sees the most recent one.  It is safe for
// one or more writers and readers and never blocks
type Mailbox[T any] struct {
	slot  atomic.Pointer[T]
	drops atomic.Uint64
}

// Post stores v replacing any unread message
func (m *Mailbox[T]) Post(v T) {
	if old := m.slot.Swap(&v); old != nil {
		// previous message was never taken
		m.drops.Add(1)
	}
}

// Take removes and returns the message.  ok is false when the box is empty
func (m *Mailbox[T]) Take() (v T, ok bool) {

	p := m.slot.Swap(nil)

	if p == nil {
		return v, false
	}

	return *p, true
}

// Peek returns the message without removing it
func (m *Mailbox[T]) Peek() (v T, ok bool) {

	p := m.slot.Load()

	if p == nil {
		return v, false
	}

	return *p, true
}

// Drops returns the number of messages overwritten before being taken
func (m *Mailbox[T]) Drops() uint64 {
	return m.drops.Load()
}
