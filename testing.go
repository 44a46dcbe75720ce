package eventbus

import (
	"sync"
	"time"
)

// Recorder collects payloads delivered to its Handler.
// Useful for asserting what a subscription observed.
type Recorder[P any] struct {
	mu       sync.Mutex
	received []P
	notify   chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder[P any]() *Recorder[P] {
	return &Recorder[P]{notify: make(chan struct{}, 1)}
}

// Handler returns the handler to pass to Subscribe.
func (r *Recorder[P]) Handler() Handler[P] {
	return func(payload P) {
		r.mu.Lock()
		r.received = append(r.received, payload)
		r.mu.Unlock()

		select {
		case r.notify <- struct{}{}:
		default:
		}
	}
}

// Received returns a copy of all received payloads in delivery order.
func (r *Recorder[P]) Received() []P {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]P, len(r.received))
	copy(result, r.received)
	return result
}

// Count returns the number of payloads received
func (r *Recorder[P]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

// WaitFor blocks until at least n payloads were received or timeout elapses.
// Returns true if n was reached.
func (r *Recorder[P]) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if r.Count() >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Count() >= n
		}
	}
}

// Reset clears all received payloads
func (r *Recorder[P]) Reset() {
	r.mu.Lock()
	r.received = nil
	r.mu.Unlock()
}

// MockMode selects how a MockPostbox answers.
type MockMode int

const (
	// MockAccept accepts every payload.
	MockAccept MockMode = iota
	// MockReject never has room: every post returns false once its wait
	// elapses. Forever parks until SetMode.
	MockReject
	// MockDestroyed behaves like a bus whose primitive is gone.
	MockDestroyed
)

// MockPostbox is a Postbox test double with a fixed answer.
type MockPostbox[P any] struct {
	mu      sync.Mutex
	mode    MockMode
	changed chan struct{} // closed and replaced by SetMode
	posted  []P
	calls   int
}

// NewMockPostbox creates a mock answering according to mode.
func NewMockPostbox[P any](mode MockMode) *MockPostbox[P] {
	return &MockPostbox[P]{mode: mode, changed: make(chan struct{})}
}

// Post answers according to the mock mode. In MockReject mode it behaves
// like a permanently full bus: it waits out the bound (Forever parks) and
// re-evaluates if SetMode switches the mode meanwhile.
func (m *MockPostbox[P]) Post(payload P, wait time.Duration) (bool, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	timeout, stop := Timer(wait)
	defer stop()

	for {
		m.mu.Lock()
		mode, changed := m.mode, m.changed
		if mode == MockAccept {
			m.posted = append(m.posted, payload)
		}
		m.mu.Unlock()

		switch mode {
		case MockAccept:
			return true, nil
		case MockDestroyed:
			return false, NewFault("post", ErrClosed)
		}

		select {
		case <-changed:
		case <-timeout:
			return false, nil
		}
	}
}

// SetMode changes the answer for subsequent posts and wakes posts parked
// in MockReject mode.
func (m *MockPostbox[P]) SetMode(mode MockMode) {
	m.mu.Lock()
	m.mode = mode
	if m.changed != nil {
		close(m.changed)
	}
	m.changed = make(chan struct{})
	m.mu.Unlock()
}

// Posted returns a copy of all accepted payloads
func (m *MockPostbox[P]) Posted() []P {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]P, len(m.posted))
	copy(result, m.posted)
	return result
}

// Calls returns the number of Post calls
func (m *MockPostbox[P]) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Postbox[int] = (*MockPostbox[int])(nil)
