// Package exchange talks to the order-book venue the keeper swaps against.
//
// The REST client (Client) reads venue state from the market gateway:
//   - LoadMarket:    GET /markets/{address}            — full account set + lot sizes
//   - MidPrice:      GET /markets/{address}/price      — current mid price
//   - HasOpenOrders: GET /markets/{address}/open-orders — whether an owner's
//     open-orders account exists on the venue
//
// Requests are rate-limited via per-category TokenBuckets and automatically
// retried on 5xx errors. Market reads are public; the gateway performs no
// authentication, all authority checks happen on the ledger itself.
//
// The instruction builders in instructions.go turn a loaded MarketView into
// the ledger operations the swap batch is assembled from.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"pocket-keeper/pkg/types"
)

// Client is the market gateway REST client.
// It wraps a resty HTTP client with rate limiting and retry.
type Client struct {
	http   *resty.Client // HTTP client with retry + base URL
	rl     *RateLimiter  // per-endpoint-category rate limiting
	logger *slog.Logger
}

// NewClient creates a gateway client with rate limiting and retry.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		rl:     NewRateLimiter(),
		logger: logger.With("component", "exchange"),
	}
}

// LoadMarket fetches the full account set and lot parameters for a market.
func (c *Client) LoadMarket(ctx context.Context, market types.Address) (*types.MarketView, error) {
	if err := c.rl.Market.Wait(ctx); err != nil {
		return nil, err
	}

	var result types.MarketView
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/markets/" + market.Hex())
	if err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("load market: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// MidPrice fetches the current mid price of a market, in quote units per
// base unit.
func (c *Client) MidPrice(ctx context.Context, market types.Address) (decimal.Decimal, error) {
	if err := c.rl.Price.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Mid decimal.Decimal `json:"mid"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/markets/" + market.Hex() + "/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("mid price: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("mid price: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Mid, nil
}

// HasOpenOrders reports whether the owner already holds an initialized
// open-orders account on the given market. Used to decide whether a swap
// batch needs the bootstrap pre-instruction.
func (c *Client) HasOpenOrders(ctx context.Context, market, owner types.Address) (bool, error) {
	if err := c.rl.Market.Wait(ctx); err != nil {
		return false, err
	}

	var result struct {
		Exists bool `json:"exists"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("owner", owner.Hex()).
		SetResult(&result).
		Get("/markets/" + market.Hex() + "/open-orders")
	if err != nil {
		return false, fmt.Errorf("open orders lookup: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("open orders lookup: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Exists, nil
}
