package gormrepo

import (
	"context"
	"errors"
	"time"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.UserSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error) {
	var session domain.UserSession
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.UserSession{}, "id = ?", id).Error
}

func (r *sessionRepository) DeleteByUserID(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.UserSession{}, "user_id = ?", userID).Error
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&domain.UserSession{}, "expires_at < ?", now)
	return result.RowsAffected, result.Error
}

type optionRepository struct {
	db *gorm.DB
}

func NewOptionRepository(db *gorm.DB) *optionRepository {
	return &optionRepository{db: db}
}

func (r *optionRepository) Get(ctx context.Context, key string) (string, error) {
	var opt domain.Option
	err := r.db.WithContext(ctx).First(&opt, "name = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return opt.Value, nil
}

func (r *optionRepository) Set(ctx context.Context, key, value string) error {
	opt := &domain.Option{Key: key, Value: value}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(opt).Error
}
