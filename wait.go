package eventbus

import "time"

const (
	// NoWait makes a single non-blocking attempt.
	NoWait time.Duration = 0

	// Forever waits without bound. Any negative duration means the same.
	Forever time.Duration = -1
)

// Timer returns a channel that fires when wait elapses and a function that
// releases the timer. For Forever the channel is nil and never fires; for
// NoWait it is already closed.
func Timer(wait time.Duration) (<-chan time.Time, func()) {
	switch {
	case wait < 0:
		return nil, func() {}
	case wait == 0:
		ch := make(chan time.Time)
		close(ch)
		return ch, func() {}
	}
	t := time.NewTimer(wait)
	return t.C, func() { t.Stop() }
}
