package settings

import (
	"sync"
	"testing"

	"instafund/internal/challenge"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSnapshot() Snapshot {
	return Snapshot{
		Rules: challenge.DefaultCatalog(),
		Admin: challenge.DefaultAdminSettings(),
	}
}

func TestNewStore_DefaultsPolicy(t *testing.T) {
	s, err := NewStore(defaultSnapshot())
	require.NoError(t, err)
	assert.Equal(t, challenge.CapitalReset, s.Current().CapitalPolicy)
}

func TestNewStore_RejectsInvalid(t *testing.T) {
	snap := defaultSnapshot()
	snap.Rules.Eval1.AccountSize = decimal.Zero
	_, err := NewStore(snap)
	assert.ErrorIs(t, err, challenge.ErrInvalidRules)
}

func TestStore_UpdateRulesMerges(t *testing.T) {
	s, err := NewStore(defaultSnapshot())
	require.NoError(t, err)
	before := s.Current()

	target := decimal.RequireFromString("0.08")
	trades := 7
	after, err := s.UpdateRules(RulesPatch{Eval1: &RuleSetPatch{ProfitTarget: &target, MinTrades: &trades}})
	require.NoError(t, err)

	assert.True(t, after.Rules.Eval1.ProfitTarget.Equal(target))
	assert.Equal(t, 7, after.Rules.Eval1.MinTrades)
	assert.Equal(t, before.Rules.Eval1.Name, after.Rules.Eval1.Name)
	assert.Equal(t, before.Rules.Eval2, after.Rules.Eval2)

	// the snapshot handed out earlier is untouched
	assert.Equal(t, 5, before.Rules.Eval1.MinTrades)
	assert.Equal(t, 7, s.Current().Rules.Eval1.MinTrades)
}

func TestStore_InvalidUpdateKeepsSnapshot(t *testing.T) {
	s, err := NewStore(defaultSnapshot())
	require.NoError(t, err)

	neg := decimal.NewFromInt(-1)
	_, err = s.UpdateAdmin(AdminPatch{MinWithdrawal: &neg})
	assert.Error(t, err)
	assert.True(t, s.Current().Admin.MinWithdrawal.Equal(decimal.NewFromInt(1000)))
}

func TestStore_UpdateAdmin(t *testing.T) {
	s, err := NewStore(defaultSnapshot())
	require.NoError(t, err)

	name := "Acme Funding"
	commission := decimal.NewFromInt(25)
	days := 5
	after, err := s.UpdateAdmin(AdminPatch{CompanyName: &name, CommissionPct: &commission, ProcessingDays: &days})
	require.NoError(t, err)
	assert.Equal(t, "Acme Funding", after.Admin.CompanyName)
	assert.True(t, after.Admin.CommissionPct.Equal(commission))
	assert.Equal(t, 5, after.Admin.ProcessingDays)
	assert.True(t, after.Admin.MinWithdrawal.Equal(decimal.NewFromInt(1000)))
}

func TestStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s, err := NewStore(defaultSnapshot())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					n := j%10 + 1
					_, _ = s.UpdateRules(RulesPatch{Eval1: &RuleSetPatch{MinTrades: &n, MinTradingDays: &n}})
					continue
				}
				snap := s.Current()
				assert.Equal(t, snap.Rules.Eval1.MinTrades, snap.Rules.Eval1.MinTradingDays)
			}
		}(i)
	}
	wg.Wait()
}
