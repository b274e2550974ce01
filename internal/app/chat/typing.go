package chat

import "sync"

// TypingSet tracks the connections currently signaling that they are typing.
type TypingSet struct {
	mu       sync.Mutex
	handles  map[Handle]struct{}
	onChange func(n int)
}

// NewTypingSet creates an empty set. onChange receives the set size after mutations
// and may be nil.
func NewTypingSet(onChange func(n int)) *TypingSet {
	if onChange == nil {
		onChange = func(int) {}
	}

	return &TypingSet{
		handles:  make(map[Handle]struct{}),
		onChange: onChange,
	}
}

// SetTyping adds handle. Adding a member twice is a no-op.
func (t *TypingSet) SetTyping(handle Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handles[handle]; ok {
		return
	}

	t.handles[handle] = struct{}{}
	t.onChange(len(t.handles))
}

// ClearTyping removes handle. Clearing an absent handle is a no-op.
func (t *TypingSet) ClearTyping(handle Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handles[handle]; !ok {
		return
	}

	delete(t.handles, handle)
	t.onChange(len(t.handles))
}

// ClearOnDisconnect removes handle and always publishes the resulting size, so every
// disconnect is followed by a typing count even when the client never typed.
func (t *TypingSet) ClearOnDisconnect(handle Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.handles, handle)
	t.onChange(len(t.handles))
}

// Observe calls fn with the current size under the set's lock, so whatever fn sends is
// ordered before any later change notification.
func (t *TypingSet) Observe(fn func(n int)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn(len(t.handles))
}

// Len returns the number of typing connections.
func (t *TypingSet) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.handles)
}
