// Package settings keeps the rule catalog and payout settings as an immutable
// snapshot. Admin updates build a new snapshot and swap it in, so evaluations
// already holding the old one keep a consistent view.
package settings

import (
	"fmt"
	"sync"
	"sync/atomic"

	"instafund/internal/challenge"

	"github.com/shopspring/decimal"
)

type Snapshot struct {
	Rules         challenge.Catalog       `json:"rules"`
	Admin         challenge.AdminSettings `json:"settings"`
	CapitalPolicy challenge.CapitalPolicy `json:"capital_policy"`
}

func (s Snapshot) Validate() error {
	if err := s.Rules.Validate(); err != nil {
		return err
	}
	return s.Admin.Validate()
}

type Store struct {
	// writers serialize among themselves; readers never block.
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

func NewStore(initial Snapshot) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if initial.CapitalPolicy == "" {
		initial.CapitalPolicy = challenge.CapitalReset
	}
	s := &Store{}
	s.cur.Store(&initial)
	return s, nil
}

// Current returns the active snapshot. The value must be treated as read only.
func (s *Store) Current() Snapshot {
	return *s.cur.Load()
}

// RulesPatch carries a partial update per phase; nil phases are left as is.
type RulesPatch struct {
	Eval1  *RuleSetPatch `json:"eval1"`
	Eval2  *RuleSetPatch `json:"eval2"`
	Funded *RuleSetPatch `json:"funded"`
}

type RuleSetPatch struct {
	Name             *string          `json:"name"`
	AccountSize      *decimal.Decimal `json:"account_size"`
	ProfitTarget     *decimal.Decimal `json:"profit_target"`
	MaxDailyDrawdown *decimal.Decimal `json:"max_daily_drawdown"`
	MaxTotalDrawdown *decimal.Decimal `json:"max_total_drawdown"`
	MinTrades        *int             `json:"min_trades"`
	MinTradingDays   *int             `json:"min_trading_days"`
	ProfitSharePct   *decimal.Decimal `json:"profit_share_pct"`
}

func (p *RuleSetPatch) apply(rs challenge.RuleSet) challenge.RuleSet {
	if p == nil {
		return rs
	}
	if p.Name != nil {
		rs.Name = *p.Name
	}
	if p.AccountSize != nil {
		rs.AccountSize = *p.AccountSize
	}
	if p.ProfitTarget != nil {
		rs.ProfitTarget = *p.ProfitTarget
	}
	if p.MaxDailyDrawdown != nil {
		rs.MaxDailyDrawdown = *p.MaxDailyDrawdown
	}
	if p.MaxTotalDrawdown != nil {
		rs.MaxTotalDrawdown = *p.MaxTotalDrawdown
	}
	if p.MinTrades != nil {
		rs.MinTrades = *p.MinTrades
	}
	if p.MinTradingDays != nil {
		rs.MinTradingDays = *p.MinTradingDays
	}
	if p.ProfitSharePct != nil {
		rs.ProfitSharePct = *p.ProfitSharePct
	}
	return rs
}

type AdminPatch struct {
	CompanyName    *string          `json:"company_name"`
	CommissionPct  *decimal.Decimal `json:"company_commission"`
	MinWithdrawal  *decimal.Decimal `json:"min_withdrawal"`
	ProcessingDays *int             `json:"processing_days"`
}

func (s *Store) UpdateRules(p RulesPatch) (Snapshot, error) {
	return s.swap(func(next *Snapshot) {
		next.Rules.Eval1 = p.Eval1.apply(next.Rules.Eval1)
		next.Rules.Eval2 = p.Eval2.apply(next.Rules.Eval2)
		next.Rules.Funded = p.Funded.apply(next.Rules.Funded)
	})
}

func (s *Store) UpdateAdmin(p AdminPatch) (Snapshot, error) {
	return s.swap(func(next *Snapshot) {
		if p.CompanyName != nil {
			next.Admin.CompanyName = *p.CompanyName
		}
		if p.CommissionPct != nil {
			next.Admin.CommissionPct = *p.CommissionPct
		}
		if p.MinWithdrawal != nil {
			next.Admin.MinWithdrawal = *p.MinWithdrawal
		}
		if p.ProcessingDays != nil {
			next.Admin.ProcessingDays = *p.ProcessingDays
		}
	})
}

func (s *Store) swap(mutate func(*Snapshot)) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cur.Load()
	mutate(&next)
	if err := next.Validate(); err != nil {
		return s.Current(), fmt.Errorf("settings not updated: %w", err)
	}
	s.cur.Store(&next)
	return next, nil
}
