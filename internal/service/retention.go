// Package service holds the background jobs that run alongside caption
// ingestion.
package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/live-caption-history/pkg/icron"
	"github.com/MimeLyc/live-caption-history/pkg/log"
)

// Pruner is the part of the history manager the retention job needs.
type Pruner interface {
	PruneBefore(cutoff time.Time) int
	SaveToStorage()
}

type RetentionService struct {
	pruner    Pruner
	retention time.Duration
	cronExpr  string
	cron      *cron.Cron
	now       func() time.Time

	group singleflight.Group
}

func NewRetentionService(pruner Pruner, retention time.Duration, cronExpr string, c *cron.Cron) *RetentionService {
	return &RetentionService{
		pruner:    pruner,
		retention: retention,
		cronExpr:  cronExpr,
		cron:      c,
		now:       time.Now,
	}
}

// Enabled reports whether entries ever expire.
func (s *RetentionService) Enabled() bool {
	return s.retention > 0
}

// Schedule registers the prune job. It is a no-op when retention is disabled.
func (s *RetentionService) Schedule(ctx context.Context) error {
	if !s.Enabled() {
		log.Info("History retention disabled")
		return nil
	}

	info, err := icron.GetTriggerInfo(s.cronExpr, s.now())
	if err != nil {
		return err
	}
	log.Info("History retention %s, next prune at %s (in %s)", s.retention, info.Next.Format(time.RFC3339), info.TimeUntilNext.Round(time.Second))

	_, err = s.cron.AddFunc(s.cronExpr, func() {
		if ctx.Err() != nil {
			return
		}
		s.RunOnce()
	})
	return err
}

// RunOnce prunes entries older than the retention window and persists the
// result. Overlapping calls share one run.
func (s *RetentionService) RunOnce() int {
	if !s.Enabled() {
		return 0
	}
	v, _, _ := s.group.Do("prune", func() (any, error) {
		cutoff := s.now().Add(-s.retention)
		removed := s.pruner.PruneBefore(cutoff)
		if removed > 0 {
			s.pruner.SaveToStorage()
		} else {
			log.Debug("No history entries older than %s", cutoff.Format(time.RFC3339))
		}
		return removed, nil
	})
	return v.(int)
}
