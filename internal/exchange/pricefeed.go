// pricefeed.go implements the WebSocket mid-price feed from the gateway.
//
// The feed subscribes by market address and receives "price" events as the
// book moves. The latest sample per market is cached so the trigger loop can
// evaluate price gates without a REST round-trip; the REST MidPrice call
// remains the fallback when a sample is missing or stale.
//
// The connection auto-reconnects with exponential backoff (1s → 30s max) and
// re-subscribes to all tracked markets on reconnection. A read deadline (90s)
// ensures silent server failures are detected within ~2 missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"pocket-keeper/pkg/types"
)

const (
	pingInterval     = 50 * time.Second // how often we send PING to keep alive
	readTimeout      = 90 * time.Second // ~2 missed pings triggers reconnect
	maxReconnectWait = 30 * time.Second // cap on exponential backoff
	writeTimeout     = 10 * time.Second // deadline for outgoing messages
)

// priceEvent is one mid-price update from the gateway.
type priceEvent struct {
	EventType string          `json:"event_type"`
	Market    string          `json:"market"`
	Mid       decimal.Decimal `json:"mid"`
}

// subscribeMsg is the subscription frame sent after connecting.
type subscribeMsg struct {
	Operation string   `json:"operation"` // "subscribe" or "unsubscribe"
	Markets   []string `json:"markets"`
}

// priceSample is a cached mid price with its arrival time.
type priceSample struct {
	mid decimal.Decimal
	at  time.Time
}

// PriceFeed maintains the WebSocket connection to the gateway's price
// channel. It handles connection lifecycle, subscription tracking, and
// automatic reconnection with exponential backoff.
type PriceFeed struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex // protects conn reads/writes

	// Track subscriptions for automatic re-subscribe on reconnect
	subscribedMu sync.RWMutex
	subscribed   map[string]bool // market addresses, hex-encoded

	samplesMu sync.RWMutex
	samples   map[string]priceSample

	logger *slog.Logger
}

// NewPriceFeed creates a feed for the gateway's price channel.
func NewPriceFeed(wsURL string, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		url:        wsURL,
		subscribed: make(map[string]bool),
		samples:    make(map[string]priceSample),
		logger:     logger.With("component", "price_feed"),
	}
}

// Latest returns the most recent cached mid price for a market and when it
// arrived. ok is false when no sample has been received yet.
func (f *PriceFeed) Latest(market types.Address) (mid decimal.Decimal, at time.Time, ok bool) {
	f.samplesMu.RLock()
	defer f.samplesMu.RUnlock()
	s, ok := f.samples[market.Hex()]
	return s.mid, s.at, ok
}

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *PriceFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		// Exponential backoff: 1s, 2s, 4s, 8s, ..., 30s max
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Subscribe starts tracking mid prices for the given markets.
func (f *PriceFeed) Subscribe(markets ...types.Address) error {
	ids := make([]string, len(markets))
	for i, m := range markets {
		ids[i] = m.Hex()
	}

	f.subscribedMu.Lock()
	for _, id := range ids {
		f.subscribed[id] = true
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(subscribeMsg{Operation: "subscribe", Markets: ids})
}

// Unsubscribe stops tracking the given markets and drops their samples.
func (f *PriceFeed) Unsubscribe(markets ...types.Address) error {
	ids := make([]string, len(markets))
	for i, m := range markets {
		ids[i] = m.Hex()
	}

	f.subscribedMu.Lock()
	for _, id := range ids {
		delete(f.subscribed, id)
	}
	f.subscribedMu.Unlock()

	f.samplesMu.Lock()
	for _, id := range ids {
		delete(f.samples, id)
	}
	f.samplesMu.Unlock()

	return f.writeJSON(subscribeMsg{Operation: "unsubscribe", Markets: ids})
}

// Close gracefully closes the connection.
func (f *PriceFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *PriceFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	// Re-send the subscription set on every (re)connect
	if err := f.sendInitialSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected")

	// Start ping goroutine
	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	// Read loop with deadline so we reconnect if server goes silent
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *PriceFeed) sendInitialSubscription() error {
	f.subscribedMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subscribedMu.RUnlock()

	if len(ids) == 0 {
		return nil
	}
	return f.writeJSON(subscribeMsg{Operation: "subscribe", Markets: ids})
}

func (f *PriceFeed) dispatchMessage(data []byte) {
	var evt priceEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch evt.EventType {
	case "price":
		f.samplesMu.Lock()
		f.samples[evt.Market] = priceSample{mid: evt.Mid, at: time.Now()}
		f.samplesMu.Unlock()

	case "heartbeat", "subscribed", "unsubscribed":
		f.logger.Debug("ignoring event", "type", evt.EventType)

	default:
		f.logger.Debug("unknown ws event type", "type", evt.EventType)
	}
}

func (f *PriceFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *PriceFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *PriceFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
