package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pocket-keeper/internal/exchange"
	"pocket-keeper/pkg/types"
)

// marketSource serves market reads to the executor, preferring the websocket
// price cache and falling back to REST when a sample is missing or stale.
// All other reads pass straight through to the gateway client.
type marketSource struct {
	gateway *exchange.Client
	feed    *exchange.PriceFeed // nil when the feed is disabled
	maxAge  time.Duration
	metrics *Metrics
}

func (m *marketSource) LoadMarket(ctx context.Context, market types.Address) (*types.MarketView, error) {
	return m.gateway.LoadMarket(ctx, market)
}

func (m *marketSource) HasOpenOrders(ctx context.Context, market, owner types.Address) (bool, error) {
	return m.gateway.HasOpenOrders(ctx, market, owner)
}

func (m *marketSource) MidPrice(ctx context.Context, market types.Address) (decimal.Decimal, error) {
	if m.feed != nil {
		if mid, at, ok := m.feed.Latest(market); ok && time.Since(at) <= m.maxAge {
			m.metrics.FeedPriceReads.Inc()
			return mid, nil
		}
	}
	m.metrics.RestPriceReads.Inc()
	return m.gateway.MidPrice(ctx, market)
}
