package kyc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"instafund/internal/db"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	Get(ctx context.Context, traderID string) (Record, error)
	Save(ctx context.Context, rec Record) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, traderID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[traderID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	s.records[rec.TraderID] = rec
	s.mu.Unlock()
	return nil
}

type PostgresStore struct {
	pool db.DB
}

func NewPostgresStore(pool db.DB) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, traderID string) (Record, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, "SELECT document FROM kyc_records WHERE trader_id = $1", traderID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return Record{}, fmt.Errorf("decode kyc record %s: %w", traderID, err)
	}
	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO kyc_records (trader_id, status, document, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trader_id) DO UPDATE SET
			status = EXCLUDED.status,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`, rec.TraderID, string(rec.Status), doc, rec.UpdatedAt)
	return err
}
