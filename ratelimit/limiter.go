// Package ratelimit throttles postboxes.
//
// A rate limited postbox is one more source of backpressure: a post that
// cannot obtain a token within its wait bound returns false, exactly like a
// post to a full queue. Limits never produce errors.
//
// Two limiters are provided:
//   - TokenBucket: local, in-memory token bucket (golang.org/x/time/rate)
//   - RedisLimiter: fixed window shared by every process using the same key
//
// # Basic Usage
//
//	// 100 posts/second with bursts of 10, across every handle of bus
//	provider := ratelimit.NewProvider[Order](bus, ratelimit.NewTokenBucket(100, 10))
//	pb, _ := provider.Postbox()
//	defer eventbus.Release(pb)
//
//	ok, err := pb.Post(order, 50*time.Millisecond)
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out permission for one post at a time.
//
// All implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether a post may happen right now, consuming the
	// permission if so.
	Allow(ctx context.Context) bool

	// Reserve returns a reservation. A reservation that is OK with a
	// positive Delay holds a permission that becomes usable after Delay.
	// One that is not OK holds nothing; Delay then says when to ask again
	// (zero means never).
	Reserve(ctx context.Context) Reservation
}

// Reservation is the answer of Limiter.Reserve.
type Reservation interface {
	OK() bool
	Delay() time.Duration

	// Cancel returns an OK reservation's permission to the limiter, even
	// after its Delay elapsed, so an abandoned post does not count against
	// the budget. Cancelling a refused reservation does nothing.
	Cancel()
}

// TokenBucket is a local token bucket limiter.
//
// Tokens are added at rps per second, at most burst accumulate, and every
// post consumes one.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a token bucket adding rps tokens per second with
// room for burst.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Allow consumes one token if available.
func (t *TokenBucket) Allow(context.Context) bool {
	return t.limiter.Allow()
}

// Reserve takes a token from the future if none is available now.
func (t *TokenBucket) Reserve(context.Context) Reservation {
	now := time.Now()
	r := t.limiter.ReserveN(now, 1)
	res := tokenReservation{r: r}
	if r.OK() {
		res.act = now.Add(r.DelayFrom(now))
	}
	return res
}

// SetLimit changes the refill rate.
func (t *TokenBucket) SetLimit(rps float64) {
	t.limiter.SetLimit(rate.Limit(rps))
}

// Limit returns the refill rate in tokens per second.
func (t *TokenBucket) Limit() float64 {
	return float64(t.limiter.Limit())
}

// Burst returns the bucket size.
func (t *TokenBucket) Burst() int {
	return t.limiter.Burst()
}

type tokenReservation struct {
	r   *rate.Reservation
	act time.Time // when the token becomes usable
}

func (r tokenReservation) OK() bool { return r.r.OK() }

// Delay is zero for a refused reservation: asking again cannot help.
func (r tokenReservation) Delay() time.Duration {
	if !r.r.OK() {
		return 0
	}
	return r.r.Delay()
}

// Cancel restores the token as of its act time. rate only restores tokens
// for reservations whose act time has not passed, so cancelling "now" would
// be a no-op once Post has slept or proceeded.
func (r tokenReservation) Cancel() {
	if r.r.OK() {
		r.r.CancelAt(r.act)
	}
}

// Compile-time check
var _ Limiter = (*TokenBucket)(nil)
