package challenge

import "github.com/shopspring/decimal"

const BreachReasonLossLimit = "Loss limit exceeded"

type BreachResult struct {
	Breached bool            `json:"breached"`
	Reason   string          `json:"reason,omitempty"`
	Drawdown decimal.Decimal `json:"drawdown"`
	Limit    decimal.Decimal `json:"limit"`
	// DailyLimitExceeded is reported only; the daily limit does not breach.
	DailyLimitExceeded bool `json:"daily_limit_exceeded"`
}

func TotalDrawdownLimit(acc *Account, rules RuleSet) decimal.Decimal {
	return acc.InitialAmount.Mul(rules.MaxTotalDrawdown)
}

func DailyDrawdownLimit(acc *Account, rules RuleSet) decimal.Decimal {
	return acc.InitialAmount.Mul(rules.MaxDailyDrawdown)
}

// DailyLimitExceeded reports whether today's intraday low crossed the daily
// limit. Accounts are not breached on it.
func DailyLimitExceeded(acc *Account, rules RuleSet) bool {
	limit := DailyDrawdownLimit(acc, rules)
	if !limit.IsPositive() {
		return false
	}
	return acc.DayLow.Abs().GreaterThanOrEqual(limit)
}

// CheckBreach flips the account to breached once the worst cumulative loss of
// the phase reaches the total drawdown limit. Breached is terminal; calling it
// again reports the stored reason without touching the account.
func CheckBreach(acc *Account, rules RuleSet) BreachResult {
	res := BreachResult{
		Drawdown:           acc.PeakDrawdown.Abs(),
		Limit:              TotalDrawdownLimit(acc, rules),
		DailyLimitExceeded: DailyLimitExceeded(acc, rules),
	}
	if acc.Breached() {
		res.Breached = true
		res.Reason = acc.BreachReason
		return res
	}
	// A zero limit disables the check.
	if res.Limit.IsPositive() && res.Drawdown.GreaterThanOrEqual(res.Limit) {
		acc.Status = StatusBreached
		acc.BreachReason = BreachReasonLossLimit
		res.Breached = true
		res.Reason = acc.BreachReason
	}
	return res
}
