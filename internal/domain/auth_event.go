package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Base event kinds that carry a daily error budget.
const (
	EventSignup        = "signup"
	EventLogin         = "login"
	EventPasswordReset = "password reset"
)

// Event kinds recorded without a budget.
const (
	EventLogout                    = "logout"
	EventPasswordResetStart        = "password reset start"
	EventPasswordResetCodeVerified = "password reset code verified"
	EventPasswordResetSuccess      = "password reset success"
)

// ErrorKind returns the kind used to record a failed attempt of base.
func ErrorKind(base string) string {
	return base + " error"
}

// DailyLimitKind is the base kind whose error rows mark a budget breach.
// A breach marker is therefore stored as "<base> error daily limit error".
func DailyLimitKind(base string) string {
	return base + " error daily limit"
}

// AuthEvent is an append-only audit row.
type AuthEvent struct {
	ID          int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	IPAddress   string            `json:"ipAddress" gorm:"column:ip_address;not null;index:idx_auth_logs_ip_event,priority:1"`
	Event       string            `json:"event" gorm:"not null;index:idx_auth_logs_ip_event,priority:2"`
	Description string            `json:"description"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt" gorm:"not null;index"`
}

func (AuthEvent) TableName() string {
	return "auth_logs"
}
