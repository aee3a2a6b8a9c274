package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"instafund/internal/challenge"
	"instafund/internal/events"
	"instafund/internal/lock"
	"instafund/internal/settings"

	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyActive     = errors.New("challenge already active")
	ErrKYCRequired       = errors.New("kyc verification required")
	ErrInvalidPayout     = errors.New("invalid payout details")
	ErrMissingPaymentRef = errors.New("payment reference is required")
	errMissingTraderID   = errors.New("trader id is required")
)

var ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

// KYCChecker reports whether a trader passed identity verification.
type KYCChecker interface {
	IsVerified(ctx context.Context, traderID string) (bool, error)
}

// PayoutDetails is where an approved withdrawal is sent.
type PayoutDetails struct {
	AccountHolder string `json:"account_holder"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
	BankName      string `json:"bank_name"`
}

func (p PayoutDetails) Validate() error {
	if strings.TrimSpace(p.AccountHolder) == "" {
		return fmt.Errorf("%w: account_holder is required", ErrInvalidPayout)
	}
	digits := strings.TrimSpace(p.AccountNumber)
	if len(digits) < 6 || len(digits) > 20 || strings.Trim(digits, "0123456789") != "" {
		return fmt.Errorf("%w: account_number must be 6-20 digits", ErrInvalidPayout)
	}
	if !ifscPattern.MatchString(strings.ToUpper(strings.TrimSpace(p.IFSC))) {
		return fmt.Errorf("%w: ifsc is malformed", ErrInvalidPayout)
	}
	if strings.TrimSpace(p.BankName) == "" {
		return fmt.Errorf("%w: bank_name is required", ErrInvalidPayout)
	}
	return nil
}

func (p PayoutDetails) masked() PayoutDetails {
	out := p
	out.IFSC = strings.ToUpper(strings.TrimSpace(p.IFSC))
	n := strings.TrimSpace(p.AccountNumber)
	if len(n) > 4 {
		out.AccountNumber = strings.Repeat("*", len(n)-4) + n[len(n)-4:]
	}
	return out
}

// WithdrawalRecord is a withdrawal request as stored in the log.
type WithdrawalRecord struct {
	challenge.Withdrawal
	Payout PayoutDetails `json:"payout"`
}

// TradeResult is what a trader sees after submitting a trade.
type TradeResult struct {
	Trade   challenge.Trade        `json:"trade"`
	Breach  challenge.BreachResult `json:"breach"`
	Account *challenge.Account     `json:"account"`
}

type AdvanceResult struct {
	Phase   challenge.Phase    `json:"phase"`
	Account *challenge.Account `json:"account"`
}

type Service struct {
	repo     Repository
	locker   lock.Locker
	settings *settings.Store
	bus      *events.Bus
	kyc      KYCChecker
	now      func() time.Time
}

func NewService(repo Repository, locker lock.Locker, store *settings.Store, bus *events.Bus) *Service {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		settings: store,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetKYCChecker gates Activate on identity verification. A nil checker
// disables the gate.
func (s *Service) SetKYCChecker(k KYCChecker) {
	s.kyc = k
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) publish(typ, traderID string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: typ, TraderID: traderID, Data: data, TS: s.now()})
}

// withAccount loads the trader's account under its lock, runs fn and saves the
// result. Nothing is written when fn fails.
func (s *Service) withAccount(ctx context.Context, traderID string, fn func(acc *challenge.Account, snap settings.Snapshot) error) (*challenge.Account, error) {
	if strings.TrimSpace(traderID) == "" {
		return nil, errMissingTraderID
	}
	unlock, err := s.locker.Lock(ctx, traderID)
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", traderID, err)
	}
	defer unlock()

	acc, err := s.repo.Get(ctx, traderID)
	if err != nil {
		return nil, err
	}
	if err := fn(acc, s.settings.Current()); err != nil {
		return nil, err
	}
	acc.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Activate applies a confirmed payment. A first payment opens Eval1 and a new
// payment after a breach resets the trader to a fresh Eval1. Each payment
// reference is applied once; replays fail with ErrPaymentApplied.
func (s *Service) Activate(ctx context.Context, traderID, paymentRef string) (*challenge.Account, error) {
	if strings.TrimSpace(traderID) == "" {
		return nil, errMissingTraderID
	}
	if strings.TrimSpace(paymentRef) == "" {
		return nil, ErrMissingPaymentRef
	}
	if s.kyc != nil {
		ok, err := s.kyc.IsVerified(ctx, traderID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrKYCRequired
		}
	}

	unlock, err := s.locker.Lock(ctx, traderID)
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", traderID, err)
	}
	defer unlock()

	applied, err := s.repo.PaymentApplied(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	if applied {
		return nil, fmt.Errorf("%w: %s", ErrPaymentApplied, paymentRef)
	}

	snap := s.settings.Current()
	now := s.now()
	payment := PaymentRecord{Reference: paymentRef, TraderID: traderID, AppliedAt: now}
	acc, err := s.repo.Get(ctx, traderID)
	switch {
	case errors.Is(err, ErrNotFound):
		acc, err = challenge.NewAccount(traderID, snap.Rules, now)
		if err != nil {
			return nil, err
		}
		payment.Outcome = PaymentActivated
		if err := s.repo.ApplyPayment(ctx, payment, acc, true); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case !acc.Breached():
		// The reference is still consumed so it cannot reset a later breach.
		payment.Outcome = PaymentUnused
		if err := s.repo.ApplyPayment(ctx, payment, nil, false); err != nil {
			return nil, err
		}
		log.Warn().Str("trader_id", traderID).Str("reference", paymentRef).Msg("payment received for a running challenge")
		return nil, ErrAlreadyActive
	default:
		acc.Reset(snap.Rules, now)
		payment.Outcome = PaymentReset
		if err := s.repo.ApplyPayment(ctx, payment, acc, false); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("trader_id", traderID).
		Str("reference", paymentRef).
		Str("outcome", string(payment.Outcome)).
		Str("phase", string(acc.Phase)).
		Msg("challenge activated")
	s.publish(events.TypeAccountActivated, traderID, acc)
	return acc, nil
}

func (s *Service) Get(ctx context.Context, traderID string) (*challenge.Account, error) {
	return s.repo.Get(ctx, traderID)
}

func (s *Service) List(ctx context.Context) ([]*challenge.Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) Progress(ctx context.Context, traderID string) (challenge.Progress, error) {
	acc, err := s.repo.Get(ctx, traderID)
	if err != nil {
		return challenge.Progress{}, err
	}
	rules, err := s.settings.Current().Rules.For(acc.Phase)
	if err != nil {
		return challenge.Progress{}, err
	}
	return challenge.Evaluate(acc, rules), nil
}

func (s *Service) RecordTrade(ctx context.Context, traderID string, in challenge.TradeInput) (TradeResult, error) {
	var res TradeResult
	var wasDailyExceeded bool
	acc, err := s.withAccount(ctx, traderID, func(acc *challenge.Account, snap settings.Snapshot) error {
		rules, err := snap.Rules.For(acc.Phase)
		if err != nil {
			return err
		}
		wasDailyExceeded = challenge.DailyLimitExceeded(acc, rules)
		trade, err := challenge.RecordTrade(acc, rules, in, s.now())
		if err != nil {
			return err
		}
		res.Trade = trade
		res.Breach = challenge.CheckBreach(acc, rules)
		return nil
	})
	if err != nil {
		return TradeResult{}, err
	}
	res.Account = acc

	log.Info().
		Str("trader_id", traderID).
		Str("trade_id", res.Trade.ID).
		Str("pnl", res.Trade.PnL.String()).
		Msg("trade recorded")
	s.publish(events.TypeTradeRecorded, traderID, res.Trade)
	if res.Breach.Breached {
		log.Warn().Str("trader_id", traderID).Str("reason", res.Breach.Reason).Msg("account breached")
		s.publish(events.TypeBreached, traderID, res.Breach)
	}
	if res.Breach.DailyLimitExceeded && !wasDailyExceeded {
		s.publish(events.TypeDailyLimitExceeded, traderID, res.Breach)
	}
	return res, nil
}

// CheckBreach re-evaluates the stored account against the current rules.
func (s *Service) CheckBreach(ctx context.Context, traderID string) (challenge.BreachResult, error) {
	var res challenge.BreachResult
	var flipped bool
	_, err := s.withAccount(ctx, traderID, func(acc *challenge.Account, snap settings.Snapshot) error {
		rules, err := snap.Rules.For(acc.Phase)
		if err != nil {
			return err
		}
		before := acc.Breached()
		res = challenge.CheckBreach(acc, rules)
		flipped = !before && res.Breached
		return nil
	})
	if err != nil {
		return challenge.BreachResult{}, err
	}
	if flipped {
		log.Warn().Str("trader_id", traderID).Str("reason", res.Reason).Msg("account breached")
		s.publish(events.TypeBreached, traderID, res)
	}
	return res, nil
}

func (s *Service) Advance(ctx context.Context, traderID string) (AdvanceResult, error) {
	var next challenge.Phase
	acc, err := s.withAccount(ctx, traderID, func(acc *challenge.Account, snap settings.Snapshot) error {
		p, err := challenge.AdvancePhase(acc, snap.Rules, snap.CapitalPolicy, s.now())
		if err != nil {
			return err
		}
		next = p
		return nil
	})
	if err != nil {
		return AdvanceResult{}, err
	}
	log.Info().Str("trader_id", traderID).Str("phase", string(next)).Msg("phase advanced")
	res := AdvanceResult{Phase: next, Account: acc}
	s.publish(events.TypePhaseAdvanced, traderID, res)
	return res, nil
}

// RequestWithdrawal computes the payout and appends it to the withdrawal log.
// The account itself is not changed.
func (s *Service) RequestWithdrawal(ctx context.Context, traderID string, payout PayoutDetails) (WithdrawalRecord, error) {
	if err := payout.Validate(); err != nil {
		return WithdrawalRecord{}, err
	}
	if strings.TrimSpace(traderID) == "" {
		return WithdrawalRecord{}, errMissingTraderID
	}
	unlock, err := s.locker.Lock(ctx, traderID)
	if err != nil {
		return WithdrawalRecord{}, fmt.Errorf("lock account %s: %w", traderID, err)
	}
	defer unlock()

	acc, err := s.repo.Get(ctx, traderID)
	if err != nil {
		return WithdrawalRecord{}, err
	}
	w, err := challenge.RequestWithdrawal(acc, s.settings.Current().Admin, s.now())
	if err != nil {
		return WithdrawalRecord{}, err
	}
	rec := WithdrawalRecord{Withdrawal: w, Payout: payout.masked()}
	if err := s.repo.SaveWithdrawal(ctx, rec); err != nil {
		return WithdrawalRecord{}, err
	}
	log.Info().
		Str("trader_id", traderID).
		Str("withdrawal_id", w.ID).
		Str("trader_share", w.TraderShare.String()).
		Msg("withdrawal requested")
	s.publish(events.TypeWithdrawal, traderID, rec)
	return rec, nil
}

func (s *Service) Withdrawals(ctx context.Context, traderID string) ([]WithdrawalRecord, error) {
	return s.repo.ListWithdrawals(ctx, traderID)
}
