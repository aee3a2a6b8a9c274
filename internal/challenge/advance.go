package challenge

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CapitalPolicy decides the baseline of the phase being entered.
type CapitalPolicy string

const (
	// CapitalReset starts the new phase at its configured account size.
	CapitalReset CapitalPolicy = "reset"
	// CapitalCarry starts the new phase at the balance the trader ended with.
	CapitalCarry CapitalPolicy = "carry"
)

func ParseCapitalPolicy(s string) (CapitalPolicy, error) {
	switch CapitalPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CapitalReset:
		return CapitalReset, nil
	case CapitalCarry:
		return CapitalCarry, nil
	}
	return "", fmt.Errorf("unknown capital policy %q", s)
}

// AdvancePhase moves the account to the next phase once the current phase's
// profit target and trade count are met, resetting per-phase counters.
func AdvancePhase(acc *Account, catalog Catalog, policy CapitalPolicy, now time.Time) (Phase, error) {
	if acc.Breached() {
		return acc.Phase, fmt.Errorf("%w: %s", ErrAccountBreached, acc.BreachReason)
	}
	next, ok := acc.Phase.Next()
	if !ok {
		return acc.Phase, ErrAlreadyAtFinalPhase
	}
	rules, err := catalog.For(acc.Phase)
	if err != nil {
		return acc.Phase, err
	}
	if acc.ProfitRatio().LessThan(rules.ProfitTarget) {
		return acc.Phase, fmt.Errorf("%w: %s%% of %s%%", ErrProfitTargetNotMet,
			acc.ProfitRatio().Mul(hundred).StringFixed(2), rules.ProfitTarget.Mul(hundred).StringFixed(2))
	}
	if len(acc.Trades) < rules.MinTrades {
		return acc.Phase, fmt.Errorf("%w: %d of %d", ErrMinTradesNotMet, len(acc.Trades), rules.MinTrades)
	}
	nextRules, err := catalog.For(next)
	if err != nil {
		return acc.Phase, err
	}

	var initial decimal.Decimal
	switch policy {
	case CapitalCarry:
		initial = acc.Balance()
	default:
		initial = nextRules.AccountSize
	}
	acc.Phase = next
	if next == PhaseFunded {
		acc.Status = StatusFundedLive
	}
	acc.resetPhase(initial)
	acc.UpdatedAt = now.UTC()
	return next, nil
}
