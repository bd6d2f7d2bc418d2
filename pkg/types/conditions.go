package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceOp is the comparator of a price condition.
type PriceOp string

const (
	PriceGT  PriceOp = "GT"
	PriceGTE PriceOp = "GTE"
	PriceLT  PriceOp = "LT"
	PriceLTE PriceOp = "LTE"
	PriceEQ  PriceOp = "EQ"
	PriceNEQ PriceOp = "NEQ"
	PriceBW  PriceOp = "BW"  // between [Value, ToValue], inclusive
	PriceNBW PriceOp = "NBW" // outside [Value, ToValue]
)

// PriceCondition gates swap execution on the current market price.
type PriceCondition struct {
	Op      PriceOp         `json:"op"`
	Value   decimal.Decimal `json:"value"`
	ToValue decimal.Decimal `json:"to_value,omitempty"` // BW / NBW only
}

// Satisfied evaluates the condition against a market price.
// Unknown operators evaluate false rather than blocking execution forever;
// Validate rejects them at creation time.
func (c PriceCondition) Satisfied(price decimal.Decimal) bool {
	switch c.Op {
	case PriceGT:
		return price.GreaterThan(c.Value)
	case PriceGTE:
		return price.GreaterThanOrEqual(c.Value)
	case PriceLT:
		return price.LessThan(c.Value)
	case PriceLTE:
		return price.LessThanOrEqual(c.Value)
	case PriceEQ:
		return price.Equal(c.Value)
	case PriceNEQ:
		return !price.Equal(c.Value)
	case PriceBW:
		return price.GreaterThanOrEqual(c.Value) && price.LessThanOrEqual(c.ToValue)
	case PriceNBW:
		return price.LessThan(c.Value) || price.GreaterThan(c.ToValue)
	default:
		return false
	}
}

// Validate checks the comparator and range shape.
func (c PriceCondition) Validate() error {
	switch c.Op {
	case PriceGT, PriceGTE, PriceLT, PriceLTE, PriceEQ, PriceNEQ:
		return nil
	case PriceBW, PriceNBW:
		if c.ToValue.LessThan(c.Value) {
			return ErrInvalidCondition
		}
		return nil
	default:
		return ErrInvalidCondition
	}
}

// BuyCondition pairs a price condition with the token the price refers to.
type BuyCondition struct {
	PricedToken Address        `json:"priced_token"`
	Condition   PriceCondition `json:"condition"`
}

// StopKind identifies a stop-condition variant.
type StopKind string

const (
	StopEndTime     StopKind = "END_TIME"     // close once now >= Time
	StopBaseAmount  StopKind = "BASE_AMOUNT"  // close once cumulative base traded >= Amount
	StopQuoteAmount StopKind = "QUOTE_AMOUNT" // close once cumulative quote traded >= Amount
	StopBatchCount  StopKind = "BATCH_COUNT"  // close once executed batches >= Amount
)

// StopCondition bounds a pocket's lifetime. A pocket auto-closes when any
// condition marked Primary is satisfied.
type StopCondition struct {
	Kind    StopKind  `json:"kind"`
	Time    time.Time `json:"time,omitempty"`
	Amount  uint64    `json:"amount,omitempty"`
	Primary bool      `json:"primary"`
}

// Progress is the accumulated execution state a stop condition is
// evaluated against.
type Progress struct {
	BaseTraded      uint64
	QuoteTraded     uint64
	ExecutedBatches uint64
}

// Satisfied evaluates the stop condition at the given time and progress.
func (c StopCondition) Satisfied(now time.Time, p Progress) bool {
	switch c.Kind {
	case StopEndTime:
		return !now.Before(c.Time)
	case StopBaseAmount:
		return p.BaseTraded >= c.Amount
	case StopQuoteAmount:
		return p.QuoteTraded >= c.Amount
	case StopBatchCount:
		return p.ExecutedBatches >= c.Amount
	default:
		return false
	}
}

// Validate checks the variant shape.
func (c StopCondition) Validate() error {
	switch c.Kind {
	case StopEndTime:
		if c.Time.IsZero() {
			return ErrInvalidCondition
		}
	case StopBaseAmount, StopQuoteAmount, StopBatchCount:
		if c.Amount == 0 {
			return ErrInvalidCondition
		}
	default:
		return ErrInvalidCondition
	}
	return nil
}
