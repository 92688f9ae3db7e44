package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an account on the site. Email and slug are unique among active
// users only; inactive rows are kept for audit and release both.
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name         string    `json:"name" gorm:"not null"`
	Email        string    `json:"email" gorm:"not null;uniqueIndex:idx_users_active_email,where:active = true"`
	Slug         string    `json:"slug" gorm:"not null;uniqueIndex:idx_users_active_slug,where:active = true"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;not null"`
	Active       bool      `json:"-" gorm:"not null;default:true;index"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserSession backs a signed session token. Deleting the row revokes every
// token minted for it.
type UserSession struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    int64     `json:"userId" gorm:"not null;index"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
	CreatedAt time.Time `json:"createdAt"`
}

// Option is a persisted site setting.
type Option struct {
	Key       string `gorm:"column:name;primaryKey;size:128"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}
