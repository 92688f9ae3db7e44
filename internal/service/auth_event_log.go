package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/observability"
	"github.com/dom/neighbor-group/internal/repository"
	"gorm.io/datatypes"
)

// AuthEventLog appends audit rows and answers "how many errors today".
type AuthEventLog struct {
	logs    repository.AuthLogRepository
	metrics *observability.Metrics
	now     func() time.Time
}

func NewAuthEventLog(logs repository.AuthLogRepository, metrics *observability.Metrics) *AuthEventLog {
	return &AuthEventLog{
		logs:    logs,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests that cross midnight.
func (l *AuthEventLog) WithClock(now func() time.Time) *AuthEventLog {
	l.now = now
	return l
}

func (l *AuthEventLog) Record(ctx context.Context, ip, kind, description string, metadata map[string]interface{}) error {
	if ip == "" {
		return domain.NewValidationError("ip", "auth event requires an ip address")
	}
	if kind == "" {
		return domain.NewValidationError("event", "auth event requires an event kind")
	}

	event := &domain.AuthEvent{
		IPAddress:   ip,
		Event:       kind,
		Description: description,
		CreatedAt:   l.now().UTC(),
	}
	if len(metadata) > 0 {
		event.Metadata = datatypes.JSONMap(metadata)
	}

	if err := l.logs.Create(ctx, event); err != nil {
		return fmt.Errorf("record %q event: %w", kind, err)
	}
	l.metrics.AuthEvent(kind)
	return nil
}

// RecentErrorsToday returns "<base> error" rows for ip since 00:00 UTC,
// newest first.
func (l *AuthEventLog) RecentErrorsToday(ctx context.Context, ip, base string) ([]*domain.AuthEvent, error) {
	events, err := l.logs.ListSince(ctx, ip, domain.ErrorKind(base), StartOfUTCDay(l.now()))
	if err != nil {
		return nil, fmt.Errorf("list %q errors: %w", base, err)
	}
	return events, nil
}

func StartOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
