package workflowengine

import (
	"context"
	"time"

	"github.com/cordum/mediaflow/core/infra/locks"
	"github.com/cordum/mediaflow/core/infra/logging"
	wf "github.com/cordum/mediaflow/core/workflow"
)

const schedulerLockKey = "mediaflow:workflow-engine:scheduler"

type scheduleSource interface {
	DueSchedules(ctx context.Context, now time.Time) ([]string, error)
}

// scheduler fires schedule triggers whose interval has elapsed. Only the
// replica holding the scheduler lock scans on a given tick.
type scheduler struct {
	source       scheduleSource
	locks        locks.Store
	dispatch     func(wf.TriggerRequest)
	owner        string
	pollInterval time.Duration
	lockTTL      time.Duration
	now          func() time.Time
}

func newScheduler(source scheduleSource, lockStore locks.Store, dispatch func(wf.TriggerRequest), owner string, pollInterval time.Duration) *scheduler {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if owner == "" {
		owner = "workflow-engine"
	}
	return &scheduler{
		source:       source,
		locks:        lockStore,
		dispatch:     dispatch,
		owner:        owner,
		pollInterval: pollInterval,
		lockTTL:      pollInterval * 2,
		now:          time.Now,
	}
}

func (s *scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.source == nil || s.dispatch == nil {
				continue
			}
			if s.locks != nil {
				ok, err := s.locks.Acquire(ctx, schedulerLockKey, s.owner, s.lockTTL)
				if err != nil {
					logging.Error(component, "scheduler lock acquisition failed", "error", err)
					continue
				}
				if !ok {
					continue
				}
			}
			s.tick(ctx)
			if s.locks != nil {
				_, _ = s.locks.Release(ctx, schedulerLockKey, s.owner)
			}
		}
	}
}

func (s *scheduler) tick(ctx context.Context) {
	now := s.now().UTC()
	ids, err := s.source.DueSchedules(ctx, now)
	if err != nil {
		logging.Error(component, "list due schedules", "error", err)
	}
	for _, id := range ids {
		logging.Info(component, "schedule due", "workflow_id", id)
		s.dispatch(wf.TriggerRequest{
			Type:       wf.TriggerSchedule,
			WorkflowID: id,
			Data:       map[string]any{"scheduledAt": now.Format(time.RFC3339)},
		})
	}
}
