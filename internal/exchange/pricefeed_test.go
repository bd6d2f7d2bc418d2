package exchange

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"pocket-keeper/pkg/types"
)

func testFeed(t *testing.T) *PriceFeed {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPriceFeed("ws://unused.invalid", logger)
}

func TestPriceFeedCachesLatestSample(t *testing.T) {
	t.Parallel()

	f := testFeed(t)
	market := types.Derive([]byte("market"))

	if _, _, ok := f.Latest(market); ok {
		t.Fatal("fresh feed reported a sample before any message arrived")
	}

	f.dispatchMessage([]byte(`{"event_type":"price","market":"` + market.Hex() + `","mid":"1.5"}`))
	mid, at, ok := f.Latest(market)
	if !ok {
		t.Fatal("price event did not populate the cache")
	}
	if mid.String() != "1.5" {
		t.Errorf("mid = %s, want 1.5", mid)
	}
	if time.Since(at) > time.Minute {
		t.Errorf("sample timestamp %v is not recent", at)
	}

	// A later sample for the same market replaces the cached one.
	f.dispatchMessage([]byte(`{"event_type":"price","market":"` + market.Hex() + `","mid":"1.75"}`))
	if mid, _, _ := f.Latest(market); mid.String() != "1.75" {
		t.Errorf("mid after update = %s, want 1.75", mid)
	}
}

func TestPriceFeedIgnoresNonPriceEvents(t *testing.T) {
	t.Parallel()

	f := testFeed(t)
	market := types.Derive([]byte("market"))

	f.dispatchMessage([]byte(`{"event_type":"heartbeat"}`))
	f.dispatchMessage([]byte(`not even json`))
	if _, _, ok := f.Latest(market); ok {
		t.Error("non-price traffic populated the cache")
	}
}
