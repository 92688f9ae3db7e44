package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/dom/neighbor-group/internal/domain"
	"gorm.io/gorm"
)

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *userRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("create user %s: %w", user.Email, r.conflict(ctx, user.Email, 0))
	}
	return err
}

// conflict tells which unique index rejected a write to user self.
func (r *userRepository) conflict(ctx context.Context, email string, self int64) error {
	if taken, err := r.exists(ctx, "email = ? AND active = ? AND id <> ?", email, true, self); err == nil && taken {
		return domain.ErrDuplicateEmail
	}
	return domain.ErrSlugTaken
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ? AND active = ?", id, true).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "email = ? AND active = ?", email, true).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) GetBySlug(ctx context.Context, slug string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "slug = ? AND active = ?", slug, true).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) ActiveEmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ? AND active = ?", email, true)
}

func (r *userRepository) ActiveSlugExists(ctx context.Context, slug string) (bool, error) {
	return r.exists(ctx, "slug = ? AND active = ?", slug, true)
}

func (r *userRepository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).Where(query, args...).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update writes every mutable column of an active user.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	result := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND active = ?", user.ID, true).
		Updates(map[string]interface{}{
			"name":          user.Name,
			"email":         user.Email,
			"slug":          user.Slug,
			"password_hash": user.PasswordHash,
			"updated_at":    r.db.NowFunc(),
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("update user %d: %w", user.ID, r.conflict(ctx, user.Email, user.ID))
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepository) Deactivate(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": r.db.NowFunc(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
