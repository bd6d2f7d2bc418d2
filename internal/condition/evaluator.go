// Package condition decides whether a pocket may execute a swap right now.
//
// Evaluate is a pure function of the pocket, the clock, and the current
// market price. The precedence is fixed: lifecycle and schedule gates first,
// then stop conditions, then the price gate. Stop conditions dominate the
// price gate, so a pocket whose budget is exhausted closes even if the
// price would allow one more trade.
package condition

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pocket-keeper/internal/pocket"
	"pocket-keeper/pkg/types"
)

// Verdict classifies the evaluation outcome.
type Verdict int

const (
	// Proceed means the swap may execute now.
	Proceed Verdict = iota
	// Skip means nothing should happen this cycle; the trigger is an
	// idempotent no-op, not an error.
	Skip
	// ForceClose means a primary stop condition fired and the pocket must
	// transition to Closed before anything else.
	ForceClose
)

// Reason names why a trigger was skipped or force-closed.
type Reason string

const (
	ReasonNotActive           Reason = "not_active"
	ReasonNotStarted          Reason = "not_started"
	ReasonTooSoon             Reason = "too_soon"
	ReasonStopConditionMet    Reason = "stop_condition_met"
	ReasonPriceGateNotMet     Reason = "price_gate_not_met"
	ReasonInsufficientBalance Reason = "insufficient_balance"
)

// Decision is the evaluator's verdict plus its reason. Detail carries the
// satisfied stop condition's kind on ForceClose.
type Decision struct {
	Verdict Verdict
	Reason  Reason
	Detail  string
}

func (d Decision) String() string {
	switch d.Verdict {
	case Proceed:
		return "proceed"
	case ForceClose:
		return fmt.Sprintf("force-close (%s)", d.Detail)
	default:
		return fmt.Sprintf("skip (%s)", d.Reason)
	}
}

// Evaluate decides whether p may execute at now given the market price.
func Evaluate(p *pocket.Pocket, now time.Time, marketPrice decimal.Decimal) Decision {
	if p.Status != types.StatusActive {
		return Decision{Verdict: Skip, Reason: ReasonNotActive}
	}
	if now.Before(p.StartAt) {
		return Decision{Verdict: Skip, Reason: ReasonNotStarted}
	}
	if !p.LastExecutionAt.IsZero() && now.Sub(p.LastExecutionAt) < p.Frequency {
		return Decision{Verdict: Skip, Reason: ReasonTooSoon}
	}

	// Stop conditions take priority over the price gate.
	progress := p.Progress()
	for _, sc := range p.StopConditions {
		if sc.Primary && sc.Satisfied(now, progress) {
			return Decision{
				Verdict: ForceClose,
				Reason:  ReasonStopConditionMet,
				Detail:  string(sc.Kind),
			}
		}
	}

	if p.BuyCondition != nil && !p.BuyCondition.Condition.Satisfied(marketPrice) {
		return Decision{Verdict: Skip, Reason: ReasonPriceGateNotMet}
	}

	// A batch that cannot be funded would fail at the exchange anyway;
	// skip instead of submitting a doomed batch.
	if _, _, balance := p.SpendingVault(); balance < p.BatchVolume {
		return Decision{Verdict: Skip, Reason: ReasonInsufficientBalance}
	}

	return Decision{Verdict: Proceed}
}
