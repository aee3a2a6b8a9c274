package challenge

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const dayLayout = "2006-01-02"

// Account is one trader's progress through the challenge. It is mutated only
// by RecordTrade, CheckBreach, AdvancePhase and Reset; callers serialize
// access per trader.
type Account struct {
	TraderID      string          `json:"trader_id"`
	Phase         Phase           `json:"phase"`
	Status        Status          `json:"status"`
	InitialAmount decimal.Decimal `json:"initial_amount"`
	CumulativePnL decimal.Decimal `json:"cumulative_pnl"`
	PeakDrawdown  decimal.Decimal `json:"peak_drawdown"`
	Trades        []Trade         `json:"trades"`
	BreachReason  string          `json:"breach_reason,omitempty"`
	TradingDays   []string        `json:"trading_days"`
	Day           string          `json:"day,omitempty"`
	DayPnL        decimal.Decimal `json:"day_pnl"`
	DayLow        decimal.Decimal `json:"day_low"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func NewAccount(traderID string, catalog Catalog, now time.Time) (*Account, error) {
	if traderID == "" {
		return nil, errors.New("trader_id is required")
	}
	acc := &Account{TraderID: traderID, CreatedAt: now.UTC()}
	acc.Reset(catalog, now)
	return acc, nil
}

// Reset starts the challenge over from Eval1. It is the only way out of the
// breached state and is driven by a fresh payment confirmation.
func (a *Account) Reset(catalog Catalog, now time.Time) {
	a.Phase = PhaseEval1
	a.Status = StatusActive
	a.BreachReason = ""
	a.resetPhase(catalog.Eval1.AccountSize)
	a.UpdatedAt = now.UTC()
}

func (a *Account) resetPhase(initial decimal.Decimal) {
	a.InitialAmount = initial
	a.CumulativePnL = decimal.Zero
	a.PeakDrawdown = decimal.Zero
	a.Trades = []Trade{}
	a.TradingDays = []string{}
	a.Day = ""
	a.DayPnL = decimal.Zero
	a.DayLow = decimal.Zero
}

func (a *Account) Balance() decimal.Decimal {
	return a.InitialAmount.Add(a.CumulativePnL)
}

func (a *Account) Breached() bool {
	return a.Status == StatusBreached
}

// ProfitRatio is cumulative P&L as a fraction of the phase baseline.
func (a *Account) ProfitRatio() decimal.Decimal {
	if !a.InitialAmount.IsPositive() {
		return decimal.Zero
	}
	return a.CumulativePnL.Div(a.InitialAmount)
}

func (a *Account) markTradingDay(now time.Time) string {
	day := now.UTC().Format(dayLayout)
	for _, d := range a.TradingDays {
		if d == day {
			return day
		}
	}
	a.TradingDays = append(a.TradingDays, day)
	return day
}

func (a *Account) applyDaily(day string, pnl decimal.Decimal) {
	if a.Day != day {
		a.Day = day
		a.DayPnL = decimal.Zero
		a.DayLow = decimal.Zero
	}
	a.DayPnL = a.DayPnL.Add(pnl)
	a.DayLow = decimal.Min(a.DayLow, a.DayPnL)
}
