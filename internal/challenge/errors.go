package challenge

import "errors"

var (
	ErrInvalidTradeInput      = errors.New("invalid trade input")
	ErrAccountBreached        = errors.New("account breached")
	ErrProfitTargetNotMet     = errors.New("profit target not met")
	ErrMinTradesNotMet        = errors.New("minimum trades not met")
	ErrAlreadyAtFinalPhase    = errors.New("already at final phase")
	ErrNotEligible            = errors.New("not eligible for withdrawal")
	ErrBelowMinimumWithdrawal = errors.New("below minimum withdrawal")
	ErrInvalidRules           = errors.New("invalid rules")
)
