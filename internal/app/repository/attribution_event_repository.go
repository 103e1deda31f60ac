package repository

import (
	"context"

	"github.com/clickwise/attributor/internal/app/model"
	"gorm.io/gorm"
)

// AttributionEventRepository persists attribution audit events consumed from
// the event stream.
type AttributionEventRepository interface {
	Create(ctx context.Context, event *model.AttributionEvent) error
}

type attributionEventRepository struct {
	db *gorm.DB
}

// NewAttributionEventRepository returns a GORM-backed AttributionEventRepository.
func NewAttributionEventRepository(db *gorm.DB) AttributionEventRepository {
	return &attributionEventRepository{db: db}
}

func (r *attributionEventRepository) Create(ctx context.Context, event *model.AttributionEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
