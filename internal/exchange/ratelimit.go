// ratelimit.go paces requests to the market gateway.
//
// The gateway publishes per-category quotas as requests per 10-second
// window. Instead of counting against fixed windows, each category gets a
// token bucket whose level refills continuously at one tenth of the window
// quota per second: a full bucket absorbs the burst of many pockets
// triggering in the same tick, and a drained bucket queues callers on the
// refill rate rather than tripping the gateway's hard limit.
package exchange

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket is a continuously refilling token bucket. The level is kept
// fractional so refill accrues smoothly instead of quantizing to whole
// request slots.
type TokenBucket struct {
	mu     sync.Mutex
	level  float64
	burst  float64
	perSec float64
	stamp  time.Time
}

// NewTokenBucket returns a bucket holding up to burst tokens, refilling at
// perSecond. It starts full.
func NewTokenBucket(burst, perSecond float64) *TokenBucket {
	return &TokenBucket{
		level:  burst,
		burst:  burst,
		perSec: perSecond,
		stamp:  time.Now(),
	}
}

// take credits the refill accrued since the last draw and tries to take
// one token. When the bucket is empty it reports how long until a full
// token accrues.
func (b *TokenBucket) take(now time.Time) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.level = math.Min(b.burst, b.level+now.Sub(b.stamp).Seconds()*b.perSec)
	b.stamp = now

	if b.level >= 1 {
		b.level--
		return 0, true
	}
	deficit := 1 - b.level
	return time.Duration(deficit / b.perSec * float64(time.Second)), false
}

// Wait blocks until the bucket yields a token or ctx is cancelled.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		delay, ok := b.take(time.Now())
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Gateway quotas, expressed as 10-second window allowances.
const (
	marketWindowQuota = 1000 // market metadata and open-orders reads
	priceWindowQuota  = 3000 // mid-price reads
)

// RateLimiter holds one bucket per gateway endpoint category. Every read
// draws from its category's bucket before issuing the HTTP request.
type RateLimiter struct {
	Market *TokenBucket // GET /markets/{addr}, /markets/{addr}/open-orders
	Price  *TokenBucket // GET /markets/{addr}/price
}

// NewRateLimiter builds buckets tuned to the gateway's published quotas:
// burst equal to the full window allowance divided by ten, refilling at a
// hundredth of the window quota per second.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Market: NewTokenBucket(marketWindowQuota/10, marketWindowQuota/100),
		Price:  NewTokenBucket(priceWindowQuota/10, priceWindowQuota/100),
	}
}
