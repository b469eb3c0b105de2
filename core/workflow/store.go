package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists workflow instances. Implementations return copies so callers
// never share state with the store.
type Store interface {
	Get(ctx context.Context, id string) (*Workflow, error)
	Put(ctx context.Context, wf *Workflow) error
	// List returns workflows newest first, scoped to ownerID when set.
	List(ctx context.Context, ownerID string) ([]*Workflow, error)
}

// MemoryStore keeps workflows in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]*Workflow)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWorkflow(wf), nil
}

func (s *MemoryStore) Put(_ context.Context, wf *Workflow) error {
	if wf == nil || wf.ID == "" {
		return fmt.Errorf("workflow id required")
	}
	s.mu.Lock()
	s.workflows[wf.ID] = cloneWorkflow(wf)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]*Workflow, error) {
	s.mu.RLock()
	out := make([]*Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if ownerID != "" && wf.OwnerID != ownerID {
			continue
		}
		out = append(out, cloneWorkflow(wf))
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func cloneWorkflow(wf *Workflow) *Workflow {
	if wf == nil {
		return nil
	}
	out := *wf
	out.Definition = cloneDefinition(wf.Definition)
	out.Triggers = cloneTriggers(wf.Triggers)
	out.State.Variables = cloneMap(wf.State.Variables)
	if wf.State.History != nil {
		out.State.History = make([]Execution, len(wf.State.History))
		for i, exec := range wf.State.History {
			out.State.History[i] = cloneExecution(exec)
		}
	}
	return &out
}

func cloneExecution(exec Execution) Execution {
	out := exec
	if exec.EndTime != nil {
		end := *exec.EndTime
		out.EndTime = &end
	}
	if exec.FailedStepIndex != nil {
		idx := *exec.FailedStepIndex
		out.FailedStepIndex = &idx
	}
	out.TriggerData = cloneMap(exec.TriggerData)
	if exec.Steps != nil {
		out.Steps = make([]StepRecord, len(exec.Steps))
		for i, rec := range exec.Steps {
			rec.Result = cloneMap(rec.Result)
			out.Steps[i] = rec
		}
	}
	return out
}

func cloneDefinition(def Definition) Definition {
	out := def
	out.Variables = cloneMap(def.Variables)
	out.Conditions = cloneConditions(def.Conditions)
	out.Triggers = cloneTriggers(def.Triggers)
	if def.Steps != nil {
		out.Steps = make([]StepDef, len(def.Steps))
		for i, step := range def.Steps {
			step.Config = cloneMap(step.Config)
			step.Conditions = cloneConditions(step.Conditions)
			out.Steps[i] = step
		}
	}
	if def.Notifications != nil {
		out.Notifications = make([]NotificationTarget, len(def.Notifications))
		for i, n := range def.Notifications {
			n.Events = append([]string(nil), n.Events...)
			out.Notifications[i] = n
		}
	}
	return out
}

func cloneTriggers(in []Trigger) []Trigger {
	if in == nil {
		return nil
	}
	out := make([]Trigger, len(in))
	for i, t := range in {
		t.Config = cloneMap(t.Config)
		t.Conditions = cloneConditions(t.Conditions)
		out[i] = t
	}
	return out
}

func cloneConditions(in []Condition) []Condition {
	if in == nil {
		return nil
	}
	out := make([]Condition, len(in))
	for i, c := range in {
		c.Value = cloneValue(c.Value)
		c.NestedConditions = cloneConditions(c.NestedConditions)
		out[i] = c
	}
	return out
}
