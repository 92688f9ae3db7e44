package domain

import "time"

// ReservedGroupSlugs collide with top-level site routes.
var ReservedGroupSlugs = []string{"home", "new", "signup", "register", "login", "logout", "password"}

type Group struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"not null"`
	Slug        string    `json:"slug" gorm:"not null;uniqueIndex:idx_groups_active_slug,where:active = true"`
	Description string    `json:"description"`
	Active      bool      `json:"-" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GroupMember is an authorization edge between a user and a group.
type GroupMember struct {
	GroupID   int64     `json:"groupId" gorm:"primaryKey;autoIncrement:false"`
	UserID    int64     `json:"userId" gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	GroupID   int64     `json:"groupId" gorm:"not null;index"`
	UserID    int64     `json:"userId" gorm:"not null"`
	Body      string    `json:"body" gorm:"not null"`
	Active    bool      `json:"-" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
