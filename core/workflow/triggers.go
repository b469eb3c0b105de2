package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cordum/mediaflow/core/infra/logging"
)

// TriggerRequest is an inbound request to start workflows. WorkflowID targets
// one instance; otherwise every active instance declaring Type is started.
type TriggerRequest struct {
	Type       TriggerType
	WorkflowID string
	OwnerID    string
	Data       map[string]any
}

// LoadTriggers rebuilds the trigger index from the store.
func (s *Service) LoadTriggers(ctx context.Context) error {
	workflows, err := s.store.List(ctx, "")
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}
	for _, wf := range workflows {
		if wf.IsActive {
			s.registerTriggers(wf)
		}
	}
	logging.Info(serviceComponent, "trigger index loaded", "workflows", len(workflows))
	return nil
}

func (s *Service) registerTriggers(wf *Workflow) {
	s.trigMu.Lock()
	defer s.trigMu.Unlock()
	s.dropTriggersLocked(wf.ID)
	for _, trig := range wf.Triggers {
		ids, ok := s.triggers[trig.Type]
		if !ok {
			ids = make(map[string]struct{})
			s.triggers[trig.Type] = ids
		}
		ids[wf.ID] = struct{}{}
	}
}

func (s *Service) unregisterTriggers(id string) {
	s.trigMu.Lock()
	defer s.trigMu.Unlock()
	s.dropTriggersLocked(id)
}

func (s *Service) dropTriggersLocked(id string) {
	for t, ids := range s.triggers {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.triggers, t)
		}
	}
}

func (s *Service) subscribers(t TriggerType) []string {
	s.trigMu.RLock()
	defer s.trigMu.RUnlock()
	out := make([]string, 0, len(s.triggers[t]))
	for id := range s.triggers[t] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HandleTrigger starts every workflow the event applies to. Busy fan-out
// targets are skipped; a busy targeted workflow returns ErrAlreadyRunning so
// the caller can redeliver.
func (s *Service) HandleTrigger(ctx context.Context, evt TriggerRequest) ([]ExecutionResult, error) {
	if evt.Type == "" {
		evt.Type = TriggerManual
	}
	ids := []string{evt.WorkflowID}
	if evt.WorkflowID == "" {
		ids = s.subscribers(evt.Type)
	}
	results := make([]ExecutionResult, 0, len(ids))
	var errs []error
	for _, id := range ids {
		wf, err := s.store.Get(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("trigger %s: %w", id, err))
			continue
		}
		if evt.OwnerID != "" && wf.OwnerID != evt.OwnerID {
			continue
		}
		if !s.accepts(wf, evt) {
			logging.Debug(serviceComponent, "trigger filtered", "workflow_id", id, "type", evt.Type)
			continue
		}
		opts := map[string]any{"triggerType": string(evt.Type)}
		res, err := s.ExecuteWorkflow(ctx, id, evt.Data, opts)
		if err != nil {
			if evt.WorkflowID == "" && (errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrPaused) || errors.Is(err, ErrInactive)) {
				logging.Info(serviceComponent, "trigger skipped", "workflow_id", id, "type", evt.Type, "reason", err)
				continue
			}
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// accepts reports whether wf declares evt's trigger type and the trigger's
// conditions hold for the event data. Manual events need no declaration.
func (s *Service) accepts(wf *Workflow, evt TriggerRequest) bool {
	declared := false
	for _, trig := range wf.Triggers {
		if trig.Type != evt.Type {
			continue
		}
		declared = true
		if s.rules.Evaluate(trig.Conditions, evt.Data) {
			return true
		}
	}
	return !declared && evt.Type == TriggerManual && evt.WorkflowID != ""
}

// DueSchedules returns the ids of active schedule-triggered workflows whose
// interval has elapsed at now, and marks them fired.
func (s *Service) DueSchedules(ctx context.Context, now time.Time) ([]string, error) {
	var due []string
	for _, id := range s.subscribers(TriggerSchedule) {
		wf, err := s.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.unregisterTriggers(id)
				continue
			}
			return due, fmt.Errorf("load %s: %w", id, err)
		}
		if !wf.IsActive || wf.Status == StatusPaused || wf.Status == StatusRunning {
			continue
		}
		interval := scheduleInterval(wf)
		if interval <= 0 {
			continue
		}
		if now.Sub(s.lastRun(wf)) < interval {
			continue
		}
		s.trigMu.Lock()
		s.lastFired[id] = now
		s.trigMu.Unlock()
		due = append(due, id)
	}
	return due, nil
}

// scheduleInterval is the shortest valid interval among the schedule triggers.
func scheduleInterval(wf *Workflow) time.Duration {
	var best time.Duration
	for _, trig := range wf.Triggers {
		if trig.Type != TriggerSchedule {
			continue
		}
		d, ok, err := durationValue(trig.Config["interval"])
		if err != nil || !ok || d <= 0 {
			continue
		}
		if best == 0 || d < best {
			best = d
		}
	}
	return best
}

func (s *Service) lastRun(wf *Workflow) time.Time {
	s.trigMu.RLock()
	last, ok := s.lastFired[wf.ID]
	s.trigMu.RUnlock()
	if n := len(wf.State.History); n > 0 && wf.State.History[n-1].StartTime.After(last) {
		return wf.State.History[n-1].StartTime
	}
	if !ok {
		return wf.CreatedAt
	}
	return last
}
