package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/dom/neighbor-group/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type groupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *groupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) Create(ctx context.Context, group *domain.Group) error {
	err := r.db.WithContext(ctx).Create(group).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("create group %s: %w", group.Slug, domain.ErrSlugTaken)
	}
	return err
}

func (r *groupRepository) GetByID(ctx context.Context, id int64) (*domain.Group, error) {
	var group domain.Group
	err := r.db.WithContext(ctx).First(&group, "id = ? AND active = ?", id, true).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &group, nil
}

func (r *groupRepository) GetBySlug(ctx context.Context, slug string) (*domain.Group, error) {
	var group domain.Group
	err := r.db.WithContext(ctx).First(&group, "slug = ? AND active = ?", slug, true).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &group, nil
}

func (r *groupRepository) List(ctx context.Context) ([]*domain.Group, error) {
	var groups []*domain.Group
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&groups).Error
	return groups, err
}

type groupMemberRepository struct {
	db *gorm.DB
}

func NewGroupMemberRepository(db *gorm.DB) *groupMemberRepository {
	return &groupMemberRepository{db: db}
}

func (r *groupMemberRepository) Add(ctx context.Context, groupID, userID int64) error {
	member := &domain.GroupMember{GroupID: groupID, UserID: userID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(member).Error
}

func (r *groupMemberRepository) Remove(ctx context.Context, groupID, userID int64) error {
	return r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&domain.GroupMember{}).Error
}

func (r *groupMemberRepository) Exists(ctx context.Context, groupID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *groupMemberRepository) CountByGroup(ctx context.Context, groupID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ?", groupID).
		Count(&count).Error
	return count, err
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *messageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// ListByGroup returns the newest active messages first.
func (r *messageRepository) ListByGroup(ctx context.Context, groupID int64, limit int) ([]*domain.Message, error) {
	var messages []*domain.Message
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND active = ?", groupID, true).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
