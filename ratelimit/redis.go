package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindow increments the window counter and returns {allowed, pttl}.
// Refused requests are not counted.
var fixedWindow = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if current > tonumber(ARGV[1]) then
		redis.call('DECR', KEYS[1])
		return {0, ttl}
	end
	return {1, ttl}
`)

// giveBack returns one permission to a live window.
var giveBack = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	if current > 0 then
		return redis.call('DECR', KEYS[1])
	end
	return 0
`)

// RedisLimiter is a fixed-window limiter kept in Redis, so every process
// posting with the same key shares one budget.
//
// At most limit posts are allowed per window. Counters reset at window
// boundaries, which can let up to twice the limit through around a
// boundary. On Redis errors the limiter fails open.
type RedisLimiter struct {
	client redis.Cmdable
	key    string
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing limit posts per window under
// key.
func NewRedisLimiter(client redis.Cmdable, key string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		key:    "eventbus:ratelimit:" + key,
		limit:  limit,
		window: window,
	}
}

// take reports whether the window has room, when to retry if not, and
// whether Redis actually counted the request.
func (r *RedisLimiter) take(ctx context.Context) (ok bool, retry time.Duration, counted bool) {
	res, err := fixedWindow.Run(ctx, r.client, []string{r.key}, r.limit, r.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		return true, 0, false // fail open
	}
	retry = time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = r.window
	}
	return res[0] == 1, retry, true
}

// Allow reports whether the current window still has room.
func (r *RedisLimiter) Allow(ctx context.Context) bool {
	ok, _, _ := r.take(ctx)
	return ok
}

// Reserve never borrows from future windows: a full window yields a
// reservation that is not OK and whose Delay is the time until the window
// resets.
func (r *RedisLimiter) Reserve(ctx context.Context) Reservation {
	ok, retry, counted := r.take(ctx)
	if ok {
		res := windowReservation{ok: true}
		if counted {
			res.limiter = r
		}
		return res
	}
	return windowReservation{delay: retry}
}

// Reset clears the current window.
func (r *RedisLimiter) Reset(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

type windowReservation struct {
	ok      bool
	delay   time.Duration
	limiter *RedisLimiter // set when the permission was counted in Redis
}

func (r windowReservation) OK() bool             { return r.ok }
func (r windowReservation) Delay() time.Duration { return r.delay }

// Cancel gives the permission back to the window it was taken from. If that
// window already expired there is nothing to return.
func (r windowReservation) Cancel() {
	if r.limiter == nil {
		return
	}
	_ = giveBack.Run(context.Background(), r.limiter.client, []string{r.limiter.key}).Err()
}

// Compile-time check
var _ Limiter = (*RedisLimiter)(nil)
