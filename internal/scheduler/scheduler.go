package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dom/neighbor-group/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const jobTimeout = time.Minute

type SessionPruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// Scheduler runs the site's background maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	metrics *observability.Metrics
	log     *logrus.Logger
}

func New(metrics *observability.Metrics, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		metrics: metrics,
		log:     log,
	}
}

// AddSessionPruning deletes expired sessions on spec.
func (s *Scheduler) AddSessionPruning(spec string, pruner SessionPruner) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.pruneSessions(pruner)
	})
	if err != nil {
		return fmt.Errorf("schedule session pruning %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) pruneSessions(pruner SessionPruner) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := pruner.PruneExpired(ctx)
	if err != nil {
		s.log.WithError(err).Error("[Scheduler.pruneSessions] prune expired sessions")
		return
	}
	s.metrics.SessionsRemoved(n)
	if n > 0 {
		s.log.WithField("removed", n).Info("pruned expired sessions")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
