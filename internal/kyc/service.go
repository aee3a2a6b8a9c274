package kyc

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Status returns the trader's record, or a not_started record when none exists.
func (s *Service) Status(ctx context.Context, traderID string) (Record, error) {
	rec, err := s.store.Get(ctx, traderID)
	if errors.Is(err, ErrNotFound) {
		return Record{TraderID: traderID, Status: StatusNotStarted}, nil
	}
	return rec, err
}

// Start stores identity details and moves the record to pending. Rejected
// traders may start again; verified ones may not.
func (s *Service) Start(ctx context.Context, traderID string, details Details) (Record, error) {
	d, err := details.normalize()
	if err != nil {
		return Record{}, err
	}
	cur, err := s.Status(ctx, traderID)
	if err != nil {
		return Record{}, err
	}
	if cur.Status == StatusVerified {
		return Record{}, ErrAlreadyVerified
	}
	rec := Record{
		TraderID:  traderID,
		Status:    StatusPending,
		Details:   d,
		UpdatedAt: s.now(),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Submit runs verification on a pending record. A failed check is recorded
// as rejected with a reason rather than returned as an error.
func (s *Service) Submit(ctx context.Context, traderID string) (Record, error) {
	rec, err := s.Status(ctx, traderID)
	if err != nil {
		return Record{}, err
	}
	switch rec.Status {
	case StatusVerified:
		return rec, nil
	case StatusNotStarted, StatusRejected:
		return Record{}, ErrNotStarted
	}

	now := s.now()
	rec.SubmittedAt = &now
	rec.UpdatedAt = now
	if reason := verify(rec.Details, now); reason != "" {
		rec.Status = StatusRejected
		rec.Reason = reason
	} else {
		rec.Status = StatusVerified
		rec.Reason = ""
		rec.VerifiedAt = &now
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return Record{}, err
	}
	log.Info().Str("trader_id", traderID).Str("status", string(rec.Status)).Str("reason", rec.Reason).Msg("kyc submitted")
	return rec, nil
}

func (s *Service) IsVerified(ctx context.Context, traderID string) (bool, error) {
	rec, err := s.Status(ctx, traderID)
	if err != nil {
		return false, err
	}
	return rec.Status == StatusVerified, nil
}
