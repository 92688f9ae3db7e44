package service

import (
	"context"
	"fmt"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/observability"
	"github.com/sirupsen/logrus"
)

// DailyErrorBudgets is the number of failed attempts an IP may make per
// UTC day before the event kind is refused.
var DailyErrorBudgets = map[string]int{
	domain.EventSignup:        5,
	domain.EventLogin:         5,
	domain.EventPasswordReset: 5,
}

// RateLimiter enforces DailyErrorBudgets from the auth event log.
//
// Counting and recording are separate statements, so N requests failing
// concurrently at the boundary can all pass the check: at most
// budget + in-flight failures are admitted per day.
type RateLimiter struct {
	events  *AuthEventLog
	budgets map[string]int
	metrics *observability.Metrics
	log     *logrus.Logger
}

func NewRateLimiter(events *AuthEventLog, metrics *observability.Metrics, log *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		events:  events,
		budgets: DailyErrorBudgets,
		metrics: metrics,
		log:     log,
	}
}

// CheckBudget must run before the guarded operation. On a breach it
// records one "<kind> error daily limit error" marker per IP and day.
func (l *RateLimiter) CheckBudget(ctx context.Context, ip, kind string) error {
	budget, ok := l.budgets[kind]
	if !ok {
		return fmt.Errorf("no daily error budget for %q", kind)
	}

	errs, err := l.events.RecentErrorsToday(ctx, ip, kind)
	if err != nil {
		return err
	}
	if len(errs) < budget {
		return nil
	}

	l.metrics.RateLimited(kind)

	limitKind := domain.DailyLimitKind(kind)
	markers, err := l.events.RecentErrorsToday(ctx, ip, limitKind)
	if err != nil {
		return err
	}
	if len(markers) == 0 {
		description := fmt.Sprintf("%s reached the daily %s error limit of %d", ip, kind, budget)
		if err := l.events.Record(ctx, ip, domain.ErrorKind(limitKind), description, nil); err != nil {
			l.log.WithError(err).WithField("ip", ip).Errorf("[RateLimiter.CheckBudget] record %s limit marker", kind)
		} else {
			l.log.WithFields(logrus.Fields{"ip": ip, "event": kind}).Warn("daily error limit reached")
		}
	}

	return &domain.RateLimitError{Event: kind}
}
