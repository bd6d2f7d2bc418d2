package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pocket-keeper/pkg/types"
)

// SubmissionStatus reports how far a submitted transaction has progressed.
type SubmissionStatus struct {
	Signature string         `json:"signature"`
	Height    uint64         `json:"height"`
	Finality  types.Finality `json:"finality"`
	Err       string         `json:"err,omitempty"` // non-empty when execution failed
}

// Ledger is the narrow boundary to the underlying substrate. It provides
// reference-state checkpoints, atomic batch submission, and status polling;
// nothing else is assumed.
type Ledger interface {
	LatestCheckpoint(ctx context.Context) (types.Checkpoint, error)
	Submit(ctx context.Context, tx *Transaction) (string, error)
	Status(ctx context.Context, signature string) (*SubmissionStatus, error)
	Height(ctx context.Context) (uint64, error)
}

// Assembler compiles, signs, submits, and confirms batches. It performs no
// automatic retry: on checkpoint expiry the caller must rebuild a fresh
// batch, since the stale one can never land.
type Assembler struct {
	ledger       Ledger
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewAssembler creates an assembler polling at the given interval.
func NewAssembler(ledger Ledger, pollInterval time.Duration, logger *slog.Logger) *Assembler {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Assembler{
		ledger:       ledger,
		pollInterval: pollInterval,
		logger:       logger.With("component", "assembler"),
	}
}

// SendAndConfirm fetches a fresh checkpoint, compiles the batch into one
// versioned message, signs it with every signer, submits, and polls until
// the requested finality is observed. Returns the submission signature.
//
// Fails with ErrExpiredCheckpoint once the ledger height passes the
// checkpoint's validity bound without confirmation; the batch is then
// considered not-applied.
func (a *Assembler) SendAndConfirm(ctx context.Context, b *Batch) (string, error) {
	if len(b.signers) == 0 {
		return "", fmt.Errorf("batch has no signers")
	}
	payer := b.signers[0].Address()

	cp, err := a.ledger.LatestCheckpoint(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch checkpoint: %w", err)
	}

	msg, err := CompileMessage(payer, cp, b.Instructions(), b.table)
	if err != nil {
		return "", err
	}

	digest := msg.Digest()
	tx := &Transaction{Message: msg}
	for _, s := range b.signers {
		sig, err := s.Sign(digest)
		if err != nil {
			return "", err
		}
		tx.Signatures = append(tx.Signatures, sig)
	}

	signature, err := a.ledger.Submit(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrSubmissionFailed, err)
	}
	a.logger.Debug("batch submitted",
		"signature", signature,
		"instructions", len(msg.Instructions),
		"static_keys", len(msg.StaticKeys),
		"finality", b.finality,
	)

	return signature, a.await(ctx, signature, cp, b.finality)
}

// await polls the submission status until the requested finality, an
// execution error, or checkpoint expiry.
func (a *Assembler) await(ctx context.Context, signature string, cp types.Checkpoint, want types.Finality) error {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		status, err := a.ledger.Status(ctx, signature)
		if err != nil {
			return fmt.Errorf("poll status: %w", err)
		}
		if status != nil {
			if status.Err != "" {
				return fmt.Errorf("%w: %s", classifyExecError(status.Err), status.Err)
			}
			if finalityReached(status.Finality, want) {
				return nil
			}
		}

		height, err := a.ledger.Height(ctx)
		if err != nil {
			return fmt.Errorf("poll height: %w", err)
		}
		if height > cp.LastValidHeight {
			return fmt.Errorf("height %d past %d: %w", height, cp.LastValidHeight, types.ErrExpiredCheckpoint)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// classifyExecError maps the venue's execution-error strings onto the
// sentinels callers test with errors.Is. The status carries free text, so
// the match is on the rejection vocabulary the venue documents.
func classifyExecError(s string) error {
	msg := strings.ToLower(s)
	switch {
	case strings.Contains(msg, "slippage"), strings.Contains(msg, "limit price"):
		return types.ErrSlippageExceeded
	case strings.Contains(msg, "insufficient"):
		return types.ErrInsufficientFunds
	default:
		return types.ErrSubmissionFailed
	}
}

// finalityReached reports whether got satisfies the requested depth.
func finalityReached(got, want types.Finality) bool {
	return finalityRank(got) >= finalityRank(want)
}

func finalityRank(f types.Finality) int {
	switch f {
	case types.FinalityProcessed:
		return 1
	case types.FinalityConfirmed:
		return 2
	case types.FinalityFinalized:
		return 3
	default:
		return 0
	}
}
