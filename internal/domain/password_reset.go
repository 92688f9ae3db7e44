package domain

import "time"

type ResetStatus string

const (
	ResetUnclaimed ResetStatus = "unclaimed"
	ResetClaimed   ResetStatus = "claimed"
)

// PasswordReset is a single-use ticket. Rows are never deleted.
type PasswordReset struct {
	ID        string      `json:"id" gorm:"primaryKey;size:40"`
	UserID    int64       `json:"userId" gorm:"not null;index"`
	Code      string      `json:"-" gorm:"size:6;not null"`
	Status    ResetStatus `json:"status" gorm:"size:16;not null"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
