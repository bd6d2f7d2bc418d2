package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"pocket-keeper/pkg/types"
)

// Client is the RPC ledger client. It speaks a JSON-RPC style protocol to
// the substrate node: checkpoint reads, transaction submission, and status
// polling. Requests retry on 5xx; submission is POSTed exactly once per
// SendAndConfirm since a duplicate submit of the same signed payload is
// idempotent on the node side.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

var _ Ledger = (*Client)(nil)

// NewClient creates a ledger RPC client for the given endpoint.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
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
		logger: logger.With("component", "ledger-rpc"),
	}
}

type rpcRequest struct {
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	req := rpcRequest{ID: uuid.NewString(), Method: method, Params: params}

	var rpcResp rpcResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&rpcResp).
		Post("/rpc")
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s: status %d: %s", method, resp.StatusCode(), resp.String())
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// LatestCheckpoint fetches the freshest reference-state checkpoint.
func (c *Client) LatestCheckpoint(ctx context.Context) (types.Checkpoint, error) {
	var cp types.Checkpoint
	err := c.call(ctx, "checkpoint.latest", nil, &cp)
	return cp, err
}

// Submit sends a serialized signed transaction and returns its signature.
func (c *Client) Submit(ctx context.Context, tx *Transaction) (string, error) {
	params := map[string]string{
		"transaction": base64.StdEncoding.EncodeToString(tx.Serialize()),
	}
	var result struct {
		Signature string `json:"signature"`
	}
	if err := c.call(ctx, "tx.submit", params, &result); err != nil {
		return "", err
	}
	return result.Signature, nil
}

// Status returns the submission status, or nil while the node has not yet
// observed the signature.
func (c *Client) Status(ctx context.Context, signature string) (*SubmissionStatus, error) {
	var result struct {
		Status *SubmissionStatus `json:"status"`
	}
	if err := c.call(ctx, "tx.status", map[string]string{"signature": signature}, &result); err != nil {
		return nil, err
	}
	return result.Status, nil
}

// Height returns the current ledger height.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	var result struct {
		Height uint64 `json:"height"`
	}
	if err := c.call(ctx, "ledger.height", nil, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}
