// Package registry provides the registration table buses keep for their
// subscriptions and postbox handles.
package registry

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rbaliyan/eventbus"
)

// ID generation
var counter uint64

// NewID generates a new unique ID
func NewID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return strconv.FormatUint(atomic.AddUint64(&counter, 1), 10)
}

type entry[E any] struct {
	id  string
	val E
}

// Table holds entries in registration order. The zero value is not usable;
// create tables with New.
type Table[E any] struct {
	mu      sync.RWMutex
	entries []entry[E]
	limit   int
	closed  bool
}

// New creates a table. A limit of zero means unlimited.
func New[E any](limit int) *Table[E] {
	return &Table[E]{limit: limit}
}

// Add registers e and returns its id. Fails with ErrExhausted when the
// table is full and ErrClosed once the table was closed.
func (t *Table[E]) Add(op string, e E) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return "", eventbus.NewFault(op, eventbus.ErrClosed)
	}
	if t.limit > 0 && len(t.entries) >= t.limit {
		return "", eventbus.NewFault(op, eventbus.ErrExhausted)
	}

	id := NewID()
	t.entries = append(t.entries, entry[E]{id: id, val: e})
	return id, nil
}

// Remove deletes the entry with id. Returns false if it was not present.
func (t *Table[E]) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, en := range t.entries {
		if en.id == id {
			t.entries = append(t.entries[:i:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the current entries in registration order.
func (t *Table[E]) Snapshot() []E {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]E, len(t.entries))
	for i, en := range t.entries {
		result[i] = en.val
	}
	return result
}

// Len returns the number of entries
func (t *Table[E]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Close empties the table and refuses further registrations.
// Returns the entries that were registered.
func (t *Table[E]) Close() []E {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	result := make([]E, len(t.entries))
	for i, en := range t.entries {
		result[i] = en.val
	}
	t.entries = nil
	return result
}
