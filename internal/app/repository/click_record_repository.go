package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clickwise/attributor/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrNoUnmatchedClick signals that no unmatched click exists in the store.
	ErrNoUnmatchedClick = errors.New("no unmatched click record")
)

// WriteError wraps a storage failure while appending or mutating a click
// record. Click logging is best-effort overall but the failure must still be
// visible to the caller.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("click store: %s: %v", e.Op, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a storage failure while querying click records.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("click store: %s: %v", e.Op, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// ClickRecordRepository defines the data access contract for the click log.
type ClickRecordRepository interface {
	Create(ctx context.Context, record *model.ClickRecord) error
	LatestUnmatched(ctx context.Context) (*model.ClickRecord, error)
	MarkMatched(ctx context.Context, id uint) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type clickRecordRepository struct {
	db *gorm.DB
}

// NewClickRecordRepository returns a GORM-backed ClickRecordRepository.
func NewClickRecordRepository(db *gorm.DB) ClickRecordRepository {
	return &clickRecordRepository{db: db}
}

func (r *clickRecordRepository) Create(ctx context.Context, record *model.ClickRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return &WriteError{Op: "create", Err: err}
	}
	return nil
}

// LatestUnmatched returns the single most recently created unmatched record.
// Ordering by expires_at is equivalent to ordering by created_at because
// expiry is a fixed offset of creation. The query is bounded to one row; the
// table may hold many in-flight clicks.
func (r *clickRecordRepository) LatestUnmatched(ctx context.Context) (*model.ClickRecord, error) {
	var record model.ClickRecord
	err := r.db.WithContext(ctx).
		Where("stream_key = ? AND matched = ?", model.ClickStreamKey, false).
		Order("expires_at DESC").
		Limit(1).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoUnmatchedClick
		}
		return nil, &ReadError{Op: "latest unmatched", Err: err}
	}
	return &record, nil
}

// MarkMatched flips matched on exactly one record, and only if it was still
// unmatched. The conditional write is the serialization point for concurrent
// lead events racing for the same click: the returned bool reports whether
// this caller won. Re-marking an already matched record is a no-op, not an
// error.
func (r *clickRecordRepository) MarkMatched(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.ClickRecord{}).
		Where("id = ? AND matched = ?", id, false).
		Update("matched", true)
	if result.Error != nil {
		return false, &WriteError{Op: "mark matched", Err: result.Error}
	}
	return result.RowsAffected == 1, nil
}

// DeleteExpired drops every record whose window has elapsed, matched or not.
// Postgres has no native row TTL, so the sweeper calls this periodically.
func (r *clickRecordRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now.Unix()).
		Delete(&model.ClickRecord{})
	if result.Error != nil {
		return 0, &WriteError{Op: "delete expired", Err: result.Error}
	}
	return result.RowsAffected, nil
}
