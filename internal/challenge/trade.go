package challenge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type TradeInput struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Broker     string          `json:"broker"`
}

func (in TradeInput) Validate() error {
	if strings.TrimSpace(in.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidTradeInput)
	}
	if !in.Side.Valid() {
		return fmt.Errorf("%w: side must be buy or sell", ErrInvalidTradeInput)
	}
	if !in.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be > 0", ErrInvalidTradeInput)
	}
	if !in.EntryPrice.IsPositive() || !in.ExitPrice.IsPositive() {
		return fmt.Errorf("%w: prices must be > 0", ErrInvalidTradeInput)
	}
	return nil
}

// Trade is immutable once recorded.
type Trade struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Broker     string          `json:"broker,omitempty"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPercent decimal.Decimal `json:"pnl_percent"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// NewTrade derives P&L from the price move. Side does not change the sign:
// a sell with exit above entry is booked as a gain, same as a buy.
func NewTrade(in TradeInput, now time.Time) (Trade, error) {
	if err := in.Validate(); err != nil {
		return Trade{}, err
	}
	move := in.ExitPrice.Sub(in.EntryPrice)
	return Trade{
		ID:         uuid.NewString(),
		Symbol:     strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Side:       in.Side,
		Quantity:   in.Quantity,
		EntryPrice: in.EntryPrice,
		ExitPrice:  in.ExitPrice,
		Broker:     strings.TrimSpace(in.Broker),
		PnL:        move.Mul(in.Quantity),
		PnLPercent: move.Div(in.EntryPrice).Mul(hundred),
		ExecutedAt: now.UTC(),
	}, nil
}

// RecordTrade appends a trade, updates running P&L and drawdown, then runs
// the breach check. Nothing is mutated when an error is returned.
func RecordTrade(acc *Account, rules RuleSet, in TradeInput, now time.Time) (Trade, error) {
	if !acc.Status.CanTrade() {
		return Trade{}, fmt.Errorf("%w: %s", ErrAccountBreached, acc.BreachReason)
	}
	t, err := NewTrade(in, now)
	if err != nil {
		return Trade{}, err
	}

	acc.Trades = append(acc.Trades, t)
	acc.CumulativePnL = acc.CumulativePnL.Add(t.PnL)
	acc.PeakDrawdown = decimal.Min(acc.PeakDrawdown, acc.CumulativePnL)
	day := acc.markTradingDay(now)
	acc.applyDaily(day, t.PnL)
	acc.UpdatedAt = now.UTC()

	CheckBreach(acc, rules)
	return t, nil
}
