package challenge

import "github.com/shopspring/decimal"

// Progress is the read model behind the trader dashboard.
type Progress struct {
	Phase              Phase           `json:"phase"`
	PhaseName          string          `json:"phase_name"`
	Status             Status          `json:"status"`
	BreachReason       string          `json:"breach_reason,omitempty"`
	InitialAmount      decimal.Decimal `json:"initial_amount"`
	Balance            decimal.Decimal `json:"account_balance"`
	CumulativePnL      decimal.Decimal `json:"cumulative_pnl"`
	ProfitPercent      decimal.Decimal `json:"profit_percent"`
	ProfitTargetPct    decimal.Decimal `json:"profit_target_percent"`
	PeakDrawdown       decimal.Decimal `json:"peak_drawdown"`
	DrawdownLimit      decimal.Decimal `json:"drawdown_limit"`
	DailyLow           decimal.Decimal `json:"daily_low"`
	DailyLimit         decimal.Decimal `json:"daily_limit"`
	DailyLimitExceeded bool            `json:"daily_limit_exceeded"`
	Trades             int             `json:"trades"`
	MinTrades          int             `json:"min_trades"`
	TradingDays        int             `json:"trading_days"`
	MinTradingDays     int             `json:"min_trading_days"`
	CanAdvance         bool            `json:"can_advance"`
}

func Evaluate(acc *Account, rules RuleSet) Progress {
	p := Progress{
		Phase:              acc.Phase,
		PhaseName:          rules.Name,
		Status:             acc.Status,
		BreachReason:       acc.BreachReason,
		InitialAmount:      acc.InitialAmount,
		Balance:            acc.Balance(),
		CumulativePnL:      acc.CumulativePnL,
		ProfitPercent:      acc.ProfitRatio().Mul(hundred),
		ProfitTargetPct:    rules.ProfitTarget.Mul(hundred),
		PeakDrawdown:       acc.PeakDrawdown,
		DrawdownLimit:      TotalDrawdownLimit(acc, rules),
		DailyLow:           acc.DayLow,
		DailyLimit:         DailyDrawdownLimit(acc, rules),
		DailyLimitExceeded: DailyLimitExceeded(acc, rules),
		Trades:             len(acc.Trades),
		MinTrades:          rules.MinTrades,
		TradingDays:        len(acc.TradingDays),
		MinTradingDays:     rules.MinTradingDays,
	}
	_, hasNext := acc.Phase.Next()
	p.CanAdvance = hasNext && !acc.Breached() &&
		acc.ProfitRatio().GreaterThanOrEqual(rules.ProfitTarget) &&
		len(acc.Trades) >= rules.MinTrades
	return p
}
