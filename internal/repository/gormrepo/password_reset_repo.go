package gormrepo

import (
	"context"

	"github.com/dom/neighbor-group/internal/domain"
	"gorm.io/gorm"
)

type passwordResetRepository struct {
	db *gorm.DB
}

func NewPasswordResetRepository(db *gorm.DB) *passwordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(ctx context.Context, reset *domain.PasswordReset) error {
	return r.db.WithContext(ctx).Create(reset).Error
}

func (r *passwordResetRepository) GetByID(ctx context.Context, id string) (*domain.PasswordReset, error) {
	var reset domain.PasswordReset
	err := r.db.WithContext(ctx).First(&reset, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &reset, nil
}

// Claim is a single conditional update; concurrent callers for the same
// ticket see exactly one true.
func (r *passwordResetRepository) Claim(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.PasswordReset{}).
		Where("id = ? AND status = ?", id, domain.ResetUnclaimed).
		Updates(map[string]interface{}{
			"status":     domain.ResetClaimed,
			"updated_at": r.db.NowFunc(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
