package repository

import (
	"context"
	"time"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/google/uuid"
)

// Lookups return domain.ErrNotFound when no active row matches.

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetBySlug(ctx context.Context, slug string) (*domain.User, error)
	ActiveEmailExists(ctx context.Context, email string) (bool, error)
	ActiveSlugExists(ctx context.Context, slug string) (bool, error)
	Update(ctx context.Context, user *domain.User) error
	Deactivate(ctx context.Context, id int64) error
}

type AuthLogRepository interface {
	Create(ctx context.Context, event *domain.AuthEvent) error
	ListSince(ctx context.Context, ip, event string, since time.Time) ([]*domain.AuthEvent, error)
}

type PasswordResetRepository interface {
	Create(ctx context.Context, reset *domain.PasswordReset) error
	GetByID(ctx context.Context, id string) (*domain.PasswordReset, error)
	// Claim moves an unclaimed ticket to claimed and reports whether this
	// call performed the transition.
	Claim(ctx context.Context, id string) (bool, error)
}

type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) error
	GetByID(ctx context.Context, id int64) (*domain.Group, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Group, error)
	List(ctx context.Context) ([]*domain.Group, error)
}

type GroupMemberRepository interface {
	// Add is a no-op when the edge already exists.
	Add(ctx context.Context, groupID, userID int64) error
	// Remove is a no-op when the edge does not exist.
	Remove(ctx context.Context, groupID, userID int64) error
	Exists(ctx context.Context, groupID, userID int64) (bool, error)
	CountByGroup(ctx context.Context, groupID int64) (int64, error)
}

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	ListByGroup(ctx context.Context, groupID int64, limit int) ([]*domain.Message, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.UserSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type OptionRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type Repositories struct {
	User          UserRepository
	AuthLog       AuthLogRepository
	PasswordReset PasswordResetRepository
	Group         GroupRepository
	GroupMember   GroupMemberRepository
	Message       MessageRepository
	Session       SessionRepository
	Option        OptionRepository
}
