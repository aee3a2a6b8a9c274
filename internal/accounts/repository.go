package accounts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"instafund/internal/challenge"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrAlreadyExists  = errors.New("account already exists")
	ErrPaymentApplied = errors.New("payment already applied")
)

// PaymentOutcome records what a confirmed payment did to the account.
type PaymentOutcome string

const (
	PaymentActivated PaymentOutcome = "activated"
	PaymentReset     PaymentOutcome = "reset"
	// PaymentUnused marks a payment that arrived while the challenge was running.
	PaymentUnused PaymentOutcome = "unused"
)

// PaymentRecord is one applied payment confirmation. Reference is unique.
type PaymentRecord struct {
	Reference string         `json:"reference"`
	TraderID  string         `json:"trader_id"`
	Outcome   PaymentOutcome `json:"outcome"`
	AppliedAt time.Time      `json:"applied_at"`
}

// Repository persists one document per trader.
type Repository interface {
	Get(ctx context.Context, traderID string) (*challenge.Account, error)
	Create(ctx context.Context, acc *challenge.Account) error
	Save(ctx context.Context, acc *challenge.Account) error
	List(ctx context.Context) ([]*challenge.Account, error)
	SaveWithdrawal(ctx context.Context, w WithdrawalRecord) error
	ListWithdrawals(ctx context.Context, traderID string) ([]WithdrawalRecord, error)
	PaymentApplied(ctx context.Context, reference string) (bool, error)
	// ApplyPayment stores the payment and, when acc is non-nil, creates or
	// saves the account in the same unit of work. A reused reference fails
	// with ErrPaymentApplied and leaves everything untouched.
	ApplyPayment(ctx context.Context, p PaymentRecord, acc *challenge.Account, create bool) error
}

// MemoryRepository keeps accounts in process. Values are copied in and out so
// callers never share state with the store.
type MemoryRepository struct {
	mu          sync.RWMutex
	accounts    map[string]*challenge.Account
	withdrawals map[string][]WithdrawalRecord
	payments    map[string]PaymentRecord
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:    make(map[string]*challenge.Account),
		withdrawals: make(map[string][]WithdrawalRecord),
		payments:    make(map[string]PaymentRecord),
	}
}

func cloneAccount(a *challenge.Account) *challenge.Account {
	c := *a
	c.Trades = append([]challenge.Trade{}, a.Trades...)
	c.TradingDays = append([]string{}, a.TradingDays...)
	return &c
}

func (r *MemoryRepository) Get(_ context.Context, traderID string) (*challenge.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[traderID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(a), nil
}

func (r *MemoryRepository) Create(_ context.Context, acc *challenge.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[acc.TraderID]; ok {
		return ErrAlreadyExists
	}
	r.accounts[acc.TraderID] = cloneAccount(acc)
	return nil
}

func (r *MemoryRepository) Save(_ context.Context, acc *challenge.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[acc.TraderID]; !ok {
		return ErrNotFound
	}
	r.accounts[acc.TraderID] = cloneAccount(acc)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*challenge.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*challenge.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) SaveWithdrawal(_ context.Context, w WithdrawalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawals[w.TraderID] = append(r.withdrawals[w.TraderID], w)
	return nil
}

func (r *MemoryRepository) ListWithdrawals(_ context.Context, traderID string) ([]WithdrawalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.withdrawals[traderID]
	out := make([]WithdrawalRecord, len(src))
	for i := range src {
		out[len(src)-1-i] = src[i]
	}
	return out, nil
}

func (r *MemoryRepository) PaymentApplied(_ context.Context, reference string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.payments[reference]
	return ok, nil
}

func (r *MemoryRepository) ApplyPayment(_ context.Context, p PaymentRecord, acc *challenge.Account, create bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.Reference]; ok {
		return ErrPaymentApplied
	}
	if acc != nil {
		_, exists := r.accounts[acc.TraderID]
		switch {
		case create && exists:
			return ErrAlreadyExists
		case !create && !exists:
			return ErrNotFound
		}
		r.accounts[acc.TraderID] = cloneAccount(acc)
	}
	r.payments[p.Reference] = p
	return nil
}
