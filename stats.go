package eventbus

import "log/slog"

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Accepted    uint64 `json:"accepted"`    // payloads accepted by Post/Send
	Rejected    uint64 `json:"rejected"`    // posts that returned false
	Delivered   uint64 `json:"delivered"`   // handler invocations / receiver yields
	Dropped     uint64 `json:"dropped"`     // per-subscriber deliveries given up
	Queued      int    `json:"queued"`      // payloads waiting for dispatch
	Subscribers int    `json:"subscribers"` // active subscriptions
	Postboxes   int    `json:"postboxes"`   // postbox handles holding a slot
}

// StatsSource is implemented by buses that expose counters.
type StatsSource interface {
	Stats() Stats
}

// Logger returns a logger with the given component name
func Logger(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
