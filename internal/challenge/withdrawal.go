package challenge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdminSettings are the platform-wide payout parameters. CommissionPct is a
// whole percent kept by the company.
type AdminSettings struct {
	CompanyName    string          `json:"company_name" yaml:"company_name"`
	CommissionPct  decimal.Decimal `json:"company_commission" yaml:"company_commission"`
	MinWithdrawal  decimal.Decimal `json:"min_withdrawal" yaml:"min_withdrawal"`
	ProcessingDays int             `json:"processing_days" yaml:"processing_days"`
}

func DefaultAdminSettings() AdminSettings {
	return AdminSettings{
		CompanyName:    "Instafund",
		CommissionPct:  decimal.NewFromInt(20),
		MinWithdrawal:  decimal.NewFromInt(1000),
		ProcessingDays: 3,
	}
}

func (s AdminSettings) Validate() error {
	if strings.TrimSpace(s.CompanyName) == "" {
		return fmt.Errorf("%w: company_name is required", ErrInvalidRules)
	}
	if s.CommissionPct.IsNegative() || s.CommissionPct.GreaterThan(hundred) {
		return fmt.Errorf("%w: company_commission must be between 0 and 100", ErrInvalidRules)
	}
	if s.MinWithdrawal.IsNegative() {
		return fmt.Errorf("%w: min_withdrawal must be >= 0", ErrInvalidRules)
	}
	if s.ProcessingDays < 0 {
		return fmt.Errorf("%w: processing_days must be >= 0", ErrInvalidRules)
	}
	return nil
}

type WithdrawalStatus string

const (
	WithdrawalRequested  WithdrawalStatus = "requested"
	WithdrawalProcessing WithdrawalStatus = "processing"
)

type Withdrawal struct {
	ID             string           `json:"id"`
	TraderID       string           `json:"trader_id"`
	GrossProfit    decimal.Decimal  `json:"gross_profit"`
	CommissionPct  decimal.Decimal  `json:"commission_pct"`
	TraderShare    decimal.Decimal  `json:"trader_share"`
	Status         WithdrawalStatus `json:"status"`
	ProcessingDays int              `json:"processing_days"`
	RequestedAt    time.Time        `json:"requested_at"`
}

func TraderShare(profit, commissionPct decimal.Decimal) decimal.Decimal {
	return profit.Mul(hundred.Sub(commissionPct)).Div(hundred)
}

// RequestWithdrawal computes the trader's payout on a funded account. The
// account is read only: profit stays on the account after the request.
func RequestWithdrawal(acc *Account, settings AdminSettings, now time.Time) (Withdrawal, error) {
	if acc.Phase != PhaseFunded || acc.Breached() {
		return Withdrawal{}, ErrNotEligible
	}
	share := TraderShare(acc.CumulativePnL, settings.CommissionPct)
	if share.LessThan(settings.MinWithdrawal) {
		return Withdrawal{}, fmt.Errorf("%w: minimum is %s, available %s", ErrBelowMinimumWithdrawal,
			settings.MinWithdrawal.StringFixed(2), share.StringFixed(2))
	}
	return Withdrawal{
		ID:             uuid.NewString(),
		TraderID:       acc.TraderID,
		GrossProfit:    acc.CumulativePnL,
		CommissionPct:  settings.CommissionPct,
		TraderShare:    share,
		Status:         WithdrawalProcessing,
		ProcessingDays: settings.ProcessingDays,
		RequestedAt:    now.UTC(),
	}, nil
}
