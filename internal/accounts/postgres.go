package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"instafund/internal/challenge"
	"instafund/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository stores each account as a JSONB document keyed by trader.
// phase and status are duplicated into columns for admin listing.
type PostgresRepository struct {
	pool db.DB
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(pool db.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, traderID string) (*challenge.Account, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, "SELECT document FROM challenge_accounts WHERE trader_id = $1", traderID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var acc challenge.Account
	if err := json.Unmarshal(doc, &acc); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", traderID, err)
	}
	return &acc, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *PostgresRepository) Create(ctx context.Context, acc *challenge.Account) error {
	return insertAccount(ctx, r.pool, acc)
}

func (r *PostgresRepository) Save(ctx context.Context, acc *challenge.Account) error {
	return updateAccount(ctx, r.pool, acc)
}

func insertAccount(ctx context.Context, ex execer, acc *challenge.Account) error {
	doc, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `
		INSERT INTO challenge_accounts (trader_id, phase, status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trader_id) DO NOTHING
	`, acc.TraderID, string(acc.Phase), string(acc.Status), doc, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func updateAccount(ctx context.Context, ex execer, acc *challenge.Account) error {
	doc, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `
		UPDATE challenge_accounts
		SET phase = $2, status = $3, document = $4, updated_at = $5
		WHERE trader_id = $1
	`, acc.TraderID, string(acc.Phase), string(acc.Status), doc, acc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*challenge.Account, error) {
	rows, err := r.pool.Query(ctx, "SELECT document FROM challenge_accounts ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*challenge.Account, 0, 16)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var acc challenge.Account
		if err := json.Unmarshal(doc, &acc); err != nil {
			return nil, err
		}
		out = append(out, &acc)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SaveWithdrawal(ctx context.Context, w WithdrawalRecord) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO withdrawals (id, trader_id, document, requested_at)
		VALUES ($1, $2, $3, $4)
	`, w.ID, w.TraderID, doc, w.RequestedAt)
	return err
}

func (r *PostgresRepository) ListWithdrawals(ctx context.Context, traderID string) ([]WithdrawalRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT document FROM withdrawals
		WHERE trader_id = $1
		ORDER BY requested_at DESC
	`, traderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WithdrawalRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var w WithdrawalRecord
		if err := json.Unmarshal(doc, &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) PaymentApplied(ctx context.Context, reference string) (bool, error) {
	var applied bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM payments WHERE reference = $1)", reference).Scan(&applied)
	return applied, err
}

// ApplyPayment records the payment reference and the account change in one
// transaction. The reference insert runs first so a duplicate aborts both.
func (r *PostgresRepository) ApplyPayment(ctx context.Context, p PaymentRecord, acc *challenge.Account, create bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO payments (reference, trader_id, outcome, applied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reference) DO NOTHING
	`, p.Reference, p.TraderID, string(p.Outcome), p.AppliedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentApplied
	}

	switch {
	case acc == nil:
	case create:
		err = insertAccount(ctx, tx, acc)
	default:
		err = updateAccount(ctx, tx, acc)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
