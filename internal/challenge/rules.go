package challenge

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RuleSet holds the thresholds of one phase. ProfitTarget and the drawdown
// limits are fractions of AccountSize (0.10 = 10%). ProfitSharePct is a whole
// percent and only meaningful on the funded phase.
type RuleSet struct {
	Name             string          `json:"name" yaml:"name"`
	AccountSize      decimal.Decimal `json:"account_size" yaml:"account_size"`
	ProfitTarget     decimal.Decimal `json:"profit_target" yaml:"profit_target"`
	MaxDailyDrawdown decimal.Decimal `json:"max_daily_drawdown" yaml:"max_daily_drawdown"`
	MaxTotalDrawdown decimal.Decimal `json:"max_total_drawdown" yaml:"max_total_drawdown"`
	MinTrades        int             `json:"min_trades" yaml:"min_trades"`
	MinTradingDays   int             `json:"min_trading_days" yaml:"min_trading_days"`
	ProfitSharePct   decimal.Decimal `json:"profit_share_pct,omitempty" yaml:"profit_share_pct,omitempty"`
}

func (r RuleSet) Validate() error {
	if !r.AccountSize.IsPositive() {
		return fmt.Errorf("%w: account_size must be > 0", ErrInvalidRules)
	}
	for name, v := range map[string]decimal.Decimal{
		"profit_target":      r.ProfitTarget,
		"max_daily_drawdown": r.MaxDailyDrawdown,
		"max_total_drawdown": r.MaxTotalDrawdown,
		"profit_share_pct":   r.ProfitSharePct,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidRules, name)
		}
	}
	if r.MinTrades < 0 || r.MinTradingDays < 0 {
		return fmt.Errorf("%w: activity thresholds must be >= 0", ErrInvalidRules)
	}
	return nil
}

// Catalog is the rule set of every phase. Values are copied by assignment so a
// Catalog can be shared between goroutines once built.
type Catalog struct {
	Eval1  RuleSet `json:"eval1" yaml:"eval1"`
	Eval2  RuleSet `json:"eval2" yaml:"eval2"`
	Funded RuleSet `json:"funded" yaml:"funded"`
}

func (c Catalog) For(p Phase) (RuleSet, error) {
	switch p {
	case PhaseEval1:
		return c.Eval1, nil
	case PhaseEval2:
		return c.Eval2, nil
	case PhaseFunded:
		return c.Funded, nil
	}
	return RuleSet{}, fmt.Errorf("%w: unknown phase %q", ErrInvalidRules, p)
}

func (c Catalog) Validate() error {
	for _, p := range phaseOrder {
		rs, _ := c.For(p)
		if err := rs.Validate(); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if c.Funded.ProfitSharePct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("funded: %w: profit_share_pct must be <= 100", ErrInvalidRules)
	}
	return nil
}

func DefaultCatalog() Catalog {
	return Catalog{
		Eval1: RuleSet{
			Name:             "Evaluation Phase 1",
			AccountSize:      decimal.NewFromInt(50000),
			ProfitTarget:     decimal.RequireFromString("0.10"),
			MaxDailyDrawdown: decimal.RequireFromString("0.05"),
			MaxTotalDrawdown: decimal.RequireFromString("0.10"),
			MinTrades:        5,
			MinTradingDays:   10,
		},
		Eval2: RuleSet{
			Name:             "Verification Phase",
			AccountSize:      decimal.NewFromInt(50000),
			ProfitTarget:     decimal.RequireFromString("0.10"),
			MaxDailyDrawdown: decimal.RequireFromString("0.05"),
			MaxTotalDrawdown: decimal.RequireFromString("0.10"),
			MinTrades:        5,
			MinTradingDays:   10,
		},
		Funded: RuleSet{
			Name:             "Live Funded Trading",
			AccountSize:      decimal.NewFromInt(100000),
			ProfitTarget:     decimal.RequireFromString("0.15"),
			MaxDailyDrawdown: decimal.RequireFromString("0.03"),
			MaxTotalDrawdown: decimal.RequireFromString("0.15"),
			MinTradingDays:   20,
			ProfitSharePct:   decimal.NewFromInt(80),
		},
	}
}
