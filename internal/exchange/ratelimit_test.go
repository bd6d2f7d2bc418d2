package exchange

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"pocket-keeper/pkg/types"
)

func TestNewRateLimiterMatchesGatewayQuotas(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter()
	if rl.Market.burst != 100 || rl.Market.perSec != 10 {
		t.Errorf("market bucket = %v burst / %v per sec, want 100/10", rl.Market.burst, rl.Market.perSec)
	}
	if rl.Price.burst != 300 || rl.Price.perSec != 30 {
		t.Errorf("price bucket = %v burst / %v per sec, want 300/30", rl.Price.burst, rl.Price.perSec)
	}
}

func TestTokenBucketAbsorbsBurst(t *testing.T) {
	t.Parallel()

	// A full bucket must hand out its whole burst without blocking.
	b := NewTokenBucket(4, 1)
	for i := 0; i < 4; i++ {
		delay, ok := b.take(time.Now())
		if !ok {
			t.Fatalf("draw %d queued for %v, want immediate", i, delay)
		}
	}
	if _, ok := b.take(time.Now()); ok {
		t.Error("drained bucket handed out a fifth token")
	}
}

func TestTokenBucketQueuesOnRefill(t *testing.T) {
	t.Parallel()

	// One-token bucket refilling at 20/s: the second draw should queue for
	// roughly 50ms.
	b := NewTokenBucket(1, 20)
	if err := b.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := b.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)
	if elapsed < 25*time.Millisecond {
		t.Errorf("second draw returned after %v, want ~50ms of queueing", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("second draw queued for %v, far past the refill point", elapsed)
	}
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	t.Parallel()

	b := NewTokenBucket(1, 0.01)
	if err := b.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := b.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

// drainedBucket yields no tokens within any test's lifetime.
func drainedBucket() *TokenBucket {
	return &TokenBucket{burst: 1, perSec: 0.001, stamp: time.Now()}
}

func TestMidPriceDrawsFromPriceBucket(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"mid":"2"}`)
	})
	// Market is empty on purpose: a mid-price read that touched it would
	// stall until the deadline below.
	c.rl = &RateLimiter{Market: drainedBucket(), Price: NewTokenBucket(1, 0.001)}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	market := types.Derive([]byte("market"))
	if _, err := c.MidPrice(ctx, market); err != nil {
		t.Fatalf("MidPrice with a full price bucket: %v", err)
	}
	// The single price token is spent now, so the next read must queue.
	if _, err := c.MidPrice(ctx, market); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded once the price bucket drains", err)
	}
}

func TestMarketReadsDrawFromMarketBucket(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"exists":true}`)
	})
	c.rl = &RateLimiter{Market: NewTokenBucket(2, 0.001), Price: drainedBucket()}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	market := types.Derive([]byte("market"))
	owner := types.Derive([]byte("pocket"))
	if _, err := c.LoadMarket(ctx, market); err != nil {
		t.Fatalf("LoadMarket with a full market bucket: %v", err)
	}
	if _, err := c.HasOpenOrders(ctx, market, owner); err != nil {
		t.Fatalf("HasOpenOrders shares the market bucket: %v", err)
	}
	// Both market tokens are spent, the third read must queue.
	if _, err := c.LoadMarket(ctx, market); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded once the market bucket drains", err)
	}
}
