package types

import "errors"

// Failure taxonomy. Every rejected operation wraps exactly one of these so
// callers can classify with errors.Is; there is no generic catch-all.
var (
	// State violations: the operation is incompatible with current entity
	// state. No mutation occurs; the caller must correct and retry.
	ErrAlreadyInitialized = errors.New("registry already initialized")
	ErrNotInitialized     = errors.New("registry not initialized")
	ErrNoOpStatusChange   = errors.New("status unchanged")
	ErrInvalidStatusInput = errors.New("status not settable directly")
	ErrNotActive          = errors.New("pocket not active")
	ErrNotPaused          = errors.New("pocket not paused")
	ErrNotClosed          = errors.New("pocket not closed")
	ErrNotWithdrawn       = errors.New("pocket not withdrawn")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrInvalidCondition   = errors.New("invalid condition")
	ErrSameMint           = errors.New("base and quote mints must differ")
	ErrMintNotAllowed     = errors.New("mint not whitelisted")

	// Authorization failures: never downgraded to a no-op.
	ErrOnlyOwner    = errors.New("caller is not the owner")
	ErrOnlyOperator = errors.New("caller is not an authorized operator")

	// Resource conflicts.
	ErrDuplicateID    = errors.New("pocket id already exists")
	ErrPocketNotFound = errors.New("pocket not found")

	// Submission failures.
	ErrExpiredCheckpoint = errors.New("reference-state checkpoint expired")
	ErrSubmissionFailed  = errors.New("batch submission failed")

	// Exchange-side rejections, surfaced through a failed submission.
	ErrZeroSwap          = errors.New("no tokens received when swapping")
	ErrSlippageExceeded  = errors.New("slippage tolerance exceeded")
	ErrInsufficientFunds = errors.New("insufficient vault balance")
)
