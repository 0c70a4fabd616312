package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	quotadomain "github.com/vylinhq/vylin/internal/quota/domain"
	pkgdb "github.com/vylinhq/vylin/pkg/db"
	"gorm.io/gorm"
)

// GormStore is the remote store adapter. Conditional insert relies on the
// (identity, date) primary key; conditional update is a guarded UPDATE
// checked via RowsAffected. Any driver or transport error maps to
// ErrUnavailable so the ledger can degrade.
type GormStore struct {
	db      *gorm.DB
	timeout time.Duration
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, timeout time.Duration) *GormStore {
	return &GormStore{db: db, timeout: timeout}
}

func (s *GormStore) ReadSnapshot(ctx context.Context, identity, date string) (Snapshot, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	var rec quotadomain.UsageRecord
	err := s.db.WithContext(ctx).
		Where("identity = ? AND date = ?", identity, date).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read snapshot: %v", ErrUnavailable, err)
	}
	return Snapshot{Exists: true, Used: rec.Used, LastChargeAt: rec.LastChargeAt}, nil
}

func (s *GormStore) InsertIfAbsent(ctx context.Context, identity, date string, used int, lastChargeAt time.Time) (bool, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	rec := quotadomain.UsageRecord{
		Identity:     identity,
		Date:         date,
		Used:         used,
		LastChargeAt: &lastChargeAt,
	}
	err := s.db.WithContext(ctx).Create(&rec).Error
	if pkgdb.IsDuplicateKeyErr(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: insert: %v", ErrUnavailable, err)
	}
	return true, nil
}

func (s *GormStore) ConditionalUpdate(ctx context.Context, identity, date string, expected Snapshot, newUsed int, newLastChargeAt time.Time) (bool, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	tx := s.db.WithContext(ctx).
		Model(&quotadomain.UsageRecord{}).
		Where("identity = ? AND date = ? AND used = ?", identity, date, expected.Used)
	if expected.LastChargeAt == nil {
		tx = tx.Where("last_charge_at IS NULL")
	} else {
		tx = tx.Where("last_charge_at = ?", *expected.LastChargeAt)
	}

	result := tx.Updates(map[string]any{
		"used":           newUsed,
		"last_charge_at": newLastChargeAt,
	})
	if result.Error != nil {
		return false, fmt.Errorf("%w: conditional update: %v", ErrUnavailable, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
