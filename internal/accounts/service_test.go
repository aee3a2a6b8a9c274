package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"instafund/internal/challenge"
	"instafund/internal/events"
	"instafund/internal/lock"
	"instafund/internal/settings"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type stubKYC struct {
	verified map[string]bool
}

func (s stubKYC) IsVerified(_ context.Context, traderID string) (bool, error) {
	return s.verified[traderID], nil
}

func newTestService(t *testing.T) (*Service, *MemoryRepository, *events.Bus) {
	t.Helper()
	store, err := settings.NewStore(settings.Snapshot{
		Rules: challenge.DefaultCatalog(),
		Admin: challenge.DefaultAdminSettings(),
	})
	require.NoError(t, err)
	repo := NewMemoryRepository()
	bus := events.NewBus()
	svc := NewService(repo, lock.NewKeyedMutex(), store, bus)
	svc.SetClock(func() time.Time { return testNow })
	return svc, repo, bus
}

func tradeWithPnL(pnl int64) challenge.TradeInput {
	entry := decimal.NewFromInt(100000)
	return challenge.TradeInput{
		Symbol:     "NIFTY",
		Side:       challenge.SideBuy,
		Quantity:   decimal.NewFromInt(1),
		EntryPrice: entry,
		ExitPrice:  entry.Add(decimal.NewFromInt(pnl)),
	}
}

func validPayout() PayoutDetails {
	return PayoutDetails{
		AccountHolder: "Asha Rao",
		AccountNumber: "123456789012",
		IFSC:          "hdfc0001234",
		BankName:      "HDFC Bank",
	}
}

func TestService_ActivateCreatesEval1(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Activate(ctx, "t1", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, challenge.PhaseEval1, acc.Phase)
	assert.Equal(t, challenge.StatusActive, acc.Status)
	assert.True(t, acc.InitialAmount.Equal(decimal.NewFromInt(50000)))

	_, err = svc.Activate(ctx, "t1", "pay_2")
	assert.ErrorIs(t, err, ErrAlreadyActive)

	_, err = svc.Activate(ctx, "t1", " ")
	assert.ErrorIs(t, err, ErrMissingPaymentRef)
}

func TestService_ActivateRequiresKYC(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.SetKYCChecker(stubKYC{verified: map[string]bool{"ok": true}})

	_, err := svc.Activate(context.Background(), "nope", "pay_1")
	assert.ErrorIs(t, err, ErrKYCRequired)

	_, err = svc.Activate(context.Background(), "ok", "pay_1")
	assert.NoError(t, err)
}

func TestService_ActivateResetsBreachedAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "t1", "pay_1")
	require.NoError(t, err)

	res, err := svc.RecordTrade(ctx, "t1", tradeWithPnL(-5000))
	require.NoError(t, err)
	require.True(t, res.Breach.Breached)

	acc, err := svc.Activate(ctx, "t1", "pay_2")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusActive, acc.Status)
	assert.Empty(t, acc.Trades)
	assert.Empty(t, acc.BreachReason)
}

func TestService_ReplayedPaymentKeepsBreach(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "t1", "pi_1")
	require.NoError(t, err)

	res, err := svc.RecordTrade(ctx, "t1", tradeWithPnL(-6000))
	require.NoError(t, err)
	require.True(t, res.Breach.Breached)

	_, err = svc.Activate(ctx, "t1", "pi_1")
	assert.ErrorIs(t, err, ErrPaymentApplied)

	stored, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusBreached, stored.Status)
	assert.Len(t, stored.Trades, 1)
}

func TestService_PaymentWhileActiveIsConsumed(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "t1", "pi_1")
	require.NoError(t, err)

	_, err = svc.Activate(ctx, "t1", "pi_2")
	require.ErrorIs(t, err, ErrAlreadyActive)
	applied, err := repo.PaymentApplied(ctx, "pi_2")
	require.NoError(t, err)
	assert.True(t, applied)

	_, err = svc.RecordTrade(ctx, "t1", tradeWithPnL(-6000))
	require.NoError(t, err)

	_, err = svc.Activate(ctx, "t1", "pi_2")
	assert.ErrorIs(t, err, ErrPaymentApplied)
	stored, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusBreached, stored.Status)
}

func TestService_FundedAccountBreachBlocksWithdrawal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	fundedTrader(t, svc, "t1")

	res, err := svc.RecordTrade(ctx, "t1", tradeWithPnL(-14999))
	require.NoError(t, err)
	assert.False(t, res.Breach.Breached)
	assert.Equal(t, challenge.StatusFundedLive, res.Account.Status)

	res, err = svc.RecordTrade(ctx, "t1", tradeWithPnL(-1))
	require.NoError(t, err)
	assert.True(t, res.Breach.Breached)

	stored, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, challenge.PhaseFunded, stored.Phase)
	assert.Equal(t, challenge.StatusBreached, stored.Status)

	_, err = svc.RequestWithdrawal(ctx, "t1", validPayout())
	assert.ErrorIs(t, err, challenge.ErrNotEligible)
}

func TestService_RecordTradeBreachPersistsAndPublishes(t *testing.T) {
	svc, repo, bus := newTestService(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "t1", "pay_1")
	require.NoError(t, err)

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	res, err := svc.RecordTrade(ctx, "t1", tradeWithPnL(-2000))
	require.NoError(t, err)
	assert.False(t, res.Breach.Breached)

	res, err = svc.RecordTrade(ctx, "t1", tradeWithPnL(-3000))
	require.NoError(t, err)
	assert.True(t, res.Breach.Breached)
	assert.Equal(t, challenge.BreachReasonLossLimit, res.Breach.Reason)

	stored, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusBreached, stored.Status)
	assert.Len(t, stored.Trades, 2)

	_, err = svc.RecordTrade(ctx, "t1", tradeWithPnL(100))
	assert.ErrorIs(t, err, challenge.ErrAccountBreached)

	stored, err = repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, stored.Trades, 2, "rejected trade must not be stored")

	var types []string
	for len(sub) > 0 {
		types = append(types, (<-sub).Type)
	}
	assert.Contains(t, types, events.TypeTradeRecorded)
	assert.Contains(t, types, events.TypeBreached)
}

func TestService_InvalidTradeLeavesAccountUntouched(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "t1", "pay_1")
	require.NoError(t, err)

	bad := tradeWithPnL(100)
	bad.Quantity = decimal.Zero
	_, err = svc.RecordTrade(ctx, "t1", bad)
	assert.ErrorIs(t, err, challenge.ErrInvalidTradeInput)

	stored, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, stored.Trades)
	assert.True(t, stored.CumulativePnL.IsZero())
}

func TestService_RecordTradeUnknownTrader(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.RecordTrade(context.Background(), "ghost", tradeWithPnL(10))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_AdvanceThroughFunded(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "t1", "pay_1")
	require.NoError(t, err)

	_, err = svc.Advance(ctx, "t1")
	assert.ErrorIs(t, err, challenge.ErrProfitTargetNotMet)

	for i := 0; i < 5; i++ {
		_, err := svc.RecordTrade(ctx, "t1", tradeWithPnL(1000))
		require.NoError(t, err)
	}
	p, err := svc.Progress(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, p.CanAdvance)

	res, err := svc.Advance(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, challenge.PhaseEval2, res.Phase)
	assert.True(t, res.Account.CumulativePnL.IsZero())
	assert.Empty(t, res.Account.Trades)

	for i := 0; i < 5; i++ {
		_, err := svc.RecordTrade(ctx, "t1", tradeWithPnL(1000))
		require.NoError(t, err)
	}
	res, err = svc.Advance(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, challenge.PhaseFunded, res.Phase)
	assert.Equal(t, challenge.StatusFundedLive, res.Account.Status)
	assert.True(t, res.Account.InitialAmount.Equal(decimal.NewFromInt(100000)))

	_, err = svc.Advance(ctx, "t1")
	assert.ErrorIs(t, err, challenge.ErrAlreadyAtFinalPhase)
}

func fundedTrader(t *testing.T, svc *Service, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Activate(ctx, id, "pay_"+id)
	require.NoError(t, err)
	for phase := 0; phase < 2; phase++ {
		for i := 0; i < 5; i++ {
			_, err := svc.RecordTrade(ctx, id, tradeWithPnL(1000))
			require.NoError(t, err)
		}
		_, err := svc.Advance(ctx, id)
		require.NoError(t, err)
	}
}

func TestService_RequestWithdrawal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	fundedTrader(t, svc, "t1")

	_, err := svc.RecordTrade(ctx, "t1", tradeWithPnL(10000))
	require.NoError(t, err)

	before, err := repo.Get(ctx, "t1")
	require.NoError(t, err)

	rec, err := svc.RequestWithdrawal(ctx, "t1", validPayout())
	require.NoError(t, err)
	assert.True(t, rec.TraderShare.Equal(decimal.NewFromInt(8000)))
	assert.Equal(t, challenge.WithdrawalProcessing, rec.Status)
	assert.Equal(t, "********9012", rec.Payout.AccountNumber)
	assert.Equal(t, "HDFC0001234", rec.Payout.IFSC)

	after, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, before.CumulativePnL.Equal(after.CumulativePnL), "withdrawal does not touch the account")

	list, err := svc.Withdrawals(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
}

func TestService_RequestWithdrawalErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "eval", "pay_1")
	require.NoError(t, err)

	_, err = svc.RequestWithdrawal(ctx, "eval", validPayout())
	assert.ErrorIs(t, err, challenge.ErrNotEligible)

	fundedTrader(t, svc, "small")
	_, err = svc.RecordTrade(ctx, "small", tradeWithPnL(500))
	require.NoError(t, err)
	_, err = svc.RequestWithdrawal(ctx, "small", validPayout())
	assert.ErrorIs(t, err, challenge.ErrBelowMinimumWithdrawal)

	bad := validPayout()
	bad.IFSC = "1234"
	_, err = svc.RequestWithdrawal(ctx, "small", bad)
	assert.ErrorIs(t, err, ErrInvalidPayout)
}

func TestService_CheckBreachAfterRuleTightening(t *testing.T) {
	svc, _, bus := newTestService(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "t1", "pay_1")
	require.NoError(t, err)
	_, err = svc.RecordTrade(ctx, "t1", tradeWithPnL(-2000))
	require.NoError(t, err)

	res, err := svc.CheckBreach(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, res.Breached)

	tight := decimal.RequireFromString("0.03")
	_, err = svc.settings.UpdateRules(settings.RulesPatch{
		Eval1: &settings.RuleSetPatch{MaxTotalDrawdown: &tight},
	})
	require.NoError(t, err)

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	res, err = svc.CheckBreach(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, res.Breached)
	assert.Equal(t, events.TypeBreached, (<-sub).Type)

	again, err := svc.CheckBreach(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, res.Reason, again.Reason)
	assert.Len(t, sub, 0, "repeat checks do not re-announce")
}

func TestService_ConcurrentTradesAreSerialized(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "t1", "pay_1")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordTrade(ctx, "t1", tradeWithPnL(10))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, acc.Trades, n)
	assert.True(t, acc.CumulativePnL.Equal(decimal.NewFromInt(10*n)))
}
