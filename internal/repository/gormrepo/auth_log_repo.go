package gormrepo

import (
	"context"
	"time"

	"github.com/dom/neighbor-group/internal/domain"
	"gorm.io/gorm"
)

type authLogRepository struct {
	db *gorm.DB
}

func NewAuthLogRepository(db *gorm.DB) *authLogRepository {
	return &authLogRepository{db: db}
}

func (r *authLogRepository) Create(ctx context.Context, event *domain.AuthEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListSince returns rows for ip and event created at or after since,
// newest first. Ties on timestamp fall back to insertion order.
func (r *authLogRepository) ListSince(ctx context.Context, ip, event string, since time.Time) ([]*domain.AuthEvent, error) {
	var events []*domain.AuthEvent
	err := r.db.WithContext(ctx).
		Where("ip_address = ? AND event = ? AND created_at >= ?", ip, event, since).
		Order("created_at DESC").
		Order("id DESC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
