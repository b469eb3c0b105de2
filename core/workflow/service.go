package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cordum/mediaflow/core/infra/bus"
	"github.com/cordum/mediaflow/core/infra/locks"
	"github.com/cordum/mediaflow/core/infra/logging"
	"github.com/cordum/mediaflow/core/infra/metrics"
	"github.com/cordum/mediaflow/core/infra/secrets"
	"github.com/google/uuid"
)

const (
	defaultLockTTL   = 60 * time.Second
	recentExecutions = 5
	serviceComponent = "workflow-service"
)

// ExecutionResult is what a caller of ExecuteWorkflow gets back for every
// run that started, failed or not.
type ExecutionResult struct {
	ExecutionID     string                    `json:"executionId"`
	WorkflowID      string                    `json:"workflowId"`
	Status          ExecutionStatus           `json:"status"`
	Success         bool                      `json:"success"`
	Result          map[string]map[string]any `json:"result"`
	Variables       map[string]any            `json:"variables,omitempty"`
	Steps           []StepRecord              `json:"steps"`
	Error           string                    `json:"error,omitempty"`
	FailedStepIndex *int                      `json:"failedStepIndex,omitempty"`
	FilesProcessed  int                       `json:"filesProcessed"`
	Duration        time.Duration             `json:"duration"`
}

// StatusView is the read-only projection returned by GetWorkflowStatus.
type StatusView struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	OwnerID          string      `json:"ownerId"`
	Status           Status      `json:"status"`
	IsActive         bool        `json:"isActive"`
	CurrentStepIndex int         `json:"currentStepIndex"`
	TotalSteps       int         `json:"totalSteps"`
	Metrics          Metrics     `json:"metrics"`
	RecentExecutions []Execution `json:"recentExecutions"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Service owns workflow instances: creation, execution and read models.
type Service struct {
	store    Store
	exec     *Executor
	runner   *Runner
	rules    *RulesEngine
	catalog  *Catalog
	notifier Notifier
	metrics  metrics.WorkflowMetrics
	events   bus.Publisher
	locks    locks.Store
	lockTTL  time.Duration
	pool     *Pool
	now      func() time.Time

	guard    *keyedMutex
	activeMu sync.Mutex
	active   map[string]string
	inFlight atomic.Int64

	trigMu    sync.RWMutex
	triggers  map[TriggerType]map[string]struct{}
	lastFired map[string]time.Time
}

// NewService wires a service over store with the given step executor.
func NewService(store Store, exec *Executor) *Service {
	catalog, err := DefaultCatalog()
	if err != nil {
		logging.Error(serviceComponent, "load template catalog", "error", err)
	}
	return &Service{
		store:     store,
		exec:      exec,
		runner:    NewRunner(exec),
		rules:     exec.Rules(),
		catalog:   catalog,
		notifier:  exec.collab.Notifier,
		metrics:   metrics.Noop{},
		events:    bus.Nop{},
		lockTTL:   defaultLockTTL,
		pool:      NewPool(0),
		now:       time.Now,
		guard:     newKeyedMutex(),
		active:    make(map[string]string),
		triggers:  make(map[TriggerType]map[string]struct{}),
		lastFired: make(map[string]time.Time),
	}
}

// WithLocks adds a cross-process run lock per workflow.
func (s *Service) WithLocks(store locks.Store, ttl time.Duration) *Service {
	s.locks = store
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

func (s *Service) WithMetrics(m metrics.WorkflowMetrics) *Service {
	if m != nil {
		s.metrics = m
		s.runner.WithMetrics(m)
	}
	return s
}

// WithEvents publishes completion events to pub.
func (s *Service) WithEvents(pub bus.Publisher) *Service {
	if pub != nil {
		s.events = pub
	}
	return s
}

// WithPool bounds concurrent executions across all workflows.
func (s *Service) WithPool(p *Pool) *Service {
	if p != nil {
		s.pool = p
	}
	return s
}

// WithNotifier overrides where definition notifications go. Webhook steps
// keep using the executor's notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	if n != nil {
		s.notifier = n
	}
	return s
}

func (s *Service) WithCatalog(c *Catalog) *Service {
	if c != nil {
		s.catalog = c
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
		s.runner.now = now
	}
	return s
}

// CreateWorkflow validates def and stores a new active instance in the
// created state.
func (s *Service) CreateWorkflow(ctx context.Context, def Definition, ownerID string) (*Workflow, error) {
	if err := ValidateDefinition(def).Err(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	wf := &Workflow{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Status:     StatusCreated,
		Definition: cloneDefinition(def),
		State: State{
			Variables: cloneMap(def.Variables),
			History:   []Execution{},
		},
		IsActive:  true,
		Triggers:  cloneTriggers(def.Triggers),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if wf.State.Variables == nil {
		wf.State.Variables = map[string]any{}
	}
	if err := s.store.Put(ctx, wf); err != nil {
		return nil, fmt.Errorf("store workflow: %w", err)
	}
	s.registerTriggers(wf)
	logging.Info(serviceComponent, "workflow created", "workflow_id", wf.ID, "name", def.Name, "owner", ownerID, "steps", len(def.Steps))
	return cloneWorkflow(wf), nil
}

// CreateFromTemplate instantiates a catalog template. vars override the
// template's default variables.
func (s *Service) CreateFromTemplate(ctx context.Context, templateID, ownerID string, vars map[string]any) (*Workflow, error) {
	tpl, err := s.catalog.Get(templateID)
	if err != nil {
		return nil, err
	}
	def := tpl.Definition
	if len(vars) > 0 {
		if def.Variables == nil {
			def.Variables = map[string]any{}
		}
		for k, v := range vars {
			def.Variables[k] = cloneValue(v)
		}
	}
	return s.CreateWorkflow(ctx, def, ownerID)
}

func (s *Service) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListWorkflows(ctx context.Context, ownerID string) ([]*Workflow, error) {
	return s.store.List(ctx, ownerID)
}

// ValidateDefinition reports errors, warnings and suggestions for def.
func (s *Service) ValidateDefinition(def Definition) ValidationResult {
	return ValidateDefinition(def)
}

// GetWorkflowTemplates lists the template catalog.
func (s *Service) GetWorkflowTemplates() []Template {
	return s.catalog.List()
}

// GetWorkflowStatus projects an instance with its most recent executions.
func (s *Service) GetWorkflowStatus(ctx context.Context, id string) (StatusView, error) {
	wf, err := s.store.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	history := wf.State.History
	if len(history) > recentExecutions {
		history = history[len(history)-recentExecutions:]
	}
	return StatusView{
		ID:               wf.ID,
		Name:             wf.Definition.Name,
		OwnerID:          wf.OwnerID,
		Status:           wf.Status,
		IsActive:         wf.IsActive,
		CurrentStepIndex: wf.State.CurrentStepIndex,
		TotalSteps:       len(wf.Definition.Steps),
		Metrics:          wf.State.Metrics,
		RecentExecutions: append([]Execution{}, history...),
		UpdatedAt:        wf.UpdatedAt,
	}, nil
}

// GetWorkflowStatistics aggregates executions that started inside r.
func (s *Service) GetWorkflowStatistics(ctx context.Context, r TimeRange) (Statistics, error) {
	workflows, err := s.store.List(ctx, r.OwnerID)
	if err != nil {
		return Statistics{}, fmt.Errorf("list workflows: %w", err)
	}
	return computeStatistics(workflows, r), nil
}

// SetActive toggles whether the workflow may be executed.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Workflow, error) {
	wf, err := s.mutate(ctx, id, func(wf *Workflow) error {
		wf.IsActive = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	if active {
		s.registerTriggers(wf)
	} else {
		s.unregisterTriggers(wf.ID)
	}
	return wf, nil
}

// Pause stops new executions until Resume. A running workflow cannot be
// paused.
func (s *Service) Pause(ctx context.Context, id string) (*Workflow, error) {
	return s.mutate(ctx, id, func(wf *Workflow) error {
		if wf.Status == StatusRunning || s.isActive(id) {
			return ErrAlreadyRunning
		}
		wf.Status = StatusPaused
		return nil
	})
}

// Resume lifts a pause, restoring the status implied by the last execution.
func (s *Service) Resume(ctx context.Context, id string) (*Workflow, error) {
	return s.mutate(ctx, id, func(wf *Workflow) error {
		if wf.Status != StatusPaused {
			return nil
		}
		wf.Status = settledStatus(wf.State.History)
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*Workflow) error) (*Workflow, error) {
	unlock := s.guard.Lock(id)
	defer unlock()
	wf, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(wf); err != nil {
		return nil, err
	}
	wf.UpdatedAt = s.now().UTC()
	if err := s.store.Put(ctx, wf); err != nil {
		return nil, fmt.Errorf("store workflow: %w", err)
	}
	return wf, nil
}

// settledStatus is the status an idle instance has given its history.
func settledStatus(history []Execution) Status {
	for i := len(history) - 1; i >= 0; i-- {
		switch history[i].Status {
		case ExecutionCompleted:
			return StatusCompleted
		case ExecutionFailed:
			return StatusFailed
		}
	}
	return StatusCreated
}

type runHandle struct {
	wf          *Workflow
	executionID string
	prevStatus  Status
	startedAt   time.Time
	stopRenew   func()

	// ctx is cancelled with ErrRunLockLost when the run lock cannot be kept.
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// ExecuteWorkflow runs the instance once. Errors are returned only when the
// run could not start (not found, inactive, paused, already running) or its
// outcome could not be stored; step failures come back in the result.
func (s *Service) ExecuteWorkflow(ctx context.Context, id string, triggerData, options map[string]any) (ExecutionResult, error) {
	if err := s.pool.Acquire(ctx); err != nil {
		return ExecutionResult{}, fmt.Errorf("wait for run slot: %w", err)
	}
	defer s.pool.Release()

	h, err := s.begin(ctx, id, triggerData)
	if err != nil {
		return ExecutionResult{}, err
	}
	s.metrics.SetRunsInFlight(int(s.inFlight.Add(1)))
	defer func() { s.metrics.SetRunsInFlight(int(s.inFlight.Add(-1))) }()
	s.metrics.IncExecutionStarted(h.wf.Definition.Name)
	logging.Info(serviceComponent, "execution started", "workflow_id", id, "execution_id", h.executionID)

	vars := s.seedVariables(h, triggerData, options)
	var run RunResult
	if !s.rules.Evaluate(h.wf.Definition.Conditions, vars) {
		run = RunResult{Status: ExecutionSkipped, Steps: []StepRecord{}, Variables: vars, Outputs: map[string]map[string]any{}}
		logging.Info(serviceComponent, "workflow conditions not met, skipping", "workflow_id", id, "execution_id", h.executionID)
	} else {
		run = s.runner.Run(h.ctx, RunInput{
			WorkflowID:  id,
			OwnerID:     h.wf.OwnerID,
			ExecutionID: h.executionID,
			Steps:       h.wf.Definition.Steps,
			Variables:   vars,
			OnStep: func(p RunProgress) {
				s.checkpoint(ctx, id, h.executionID, p)
			},
		})
	}

	if cause := context.Cause(h.ctx); errors.Is(cause, ErrRunLockLost) {
		run.Status = ExecutionFailed
		if run.Error == "" {
			run.Error = cause.Error()
		} else {
			run.Error = cause.Error() + ": " + run.Error
		}
	}

	duration := s.now().Sub(h.startedAt)
	res := ExecutionResult{
		ExecutionID:     h.executionID,
		WorkflowID:      id,
		Status:          run.Status,
		Success:         run.Status != ExecutionFailed,
		Result:          run.Outputs,
		Variables:       run.Variables,
		Steps:           run.Steps,
		Error:           run.Error,
		FailedStepIndex: run.FailedStepIndex,
		FilesProcessed:  run.FilesProcessed,
		Duration:        duration,
	}
	finalErr := s.finish(ctx, h, run, duration)

	s.metrics.IncExecutionFinished(h.wf.Definition.Name, string(run.Status))
	s.metrics.ObserveExecutionDuration(h.wf.Definition.Name, duration.Seconds())
	s.metrics.AddFilesProcessed(h.wf.Definition.Name, run.FilesProcessed)
	if run.Status != ExecutionSkipped {
		s.notify(ctx, h, res, vars)
	}
	s.publish(h, res)

	logFn := logging.Info
	if run.Status == ExecutionFailed {
		logFn = logging.Warn
	}
	logFn(serviceComponent, "execution finished",
		"workflow_id", id, "execution_id", h.executionID, "status", run.Status,
		"steps", len(run.Steps), "duration_ms", duration.Milliseconds(), "error", run.Error)
	return res, finalErr
}

// begin performs the check-and-set into running for one execution.
func (s *Service) begin(ctx context.Context, id string, triggerData map[string]any) (*runHandle, error) {
	unlock := s.guard.Lock(id)
	defer unlock()

	wf, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case !wf.IsActive:
		return nil, fmt.Errorf("%w: %s", ErrInactive, id)
	case wf.Status == StatusPaused:
		return nil, fmt.Errorf("%w: %s", ErrPaused, id)
	case s.isActive(id):
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	case wf.Status == StatusRunning && s.locks == nil:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}

	h := &runHandle{executionID: uuid.NewString(), prevStatus: wf.Status, startedAt: s.now(), stopRenew: func() {}}
	h.ctx, h.cancel = context.WithCancelCause(ctx)
	if s.locks != nil {
		ok, err := s.locks.Acquire(ctx, runLockKey(id), h.executionID, s.lockTTL)
		if err != nil {
			h.cancel(nil)
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			h.cancel(nil)
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
		}
		h.stopRenew = s.keepLock(id, h.executionID, h.cancel)
	}

	if wf.Status == StatusRunning {
		s.abandonStale(wf)
	}
	wf.State.History = append(wf.State.History, Execution{
		ExecutionID: h.executionID,
		StartTime:   h.startedAt.UTC(),
		TriggerData: cloneMap(triggerData),
		Status:      ExecutionRunning,
		Steps:       []StepRecord{},
	})
	wf.Status = StatusRunning
	wf.State.CurrentStepIndex = 0
	wf.UpdatedAt = h.startedAt.UTC()
	if err := s.store.Put(ctx, wf); err != nil {
		h.stopRenew()
		h.cancel(nil)
		s.releaseLock(id, h.executionID)
		return nil, fmt.Errorf("store workflow: %w", err)
	}
	s.setActive(id, h.executionID)
	h.wf = wf
	return h, nil
}

// abandonStale closes executions left open by a process that died holding
// the run lock, keeping at most one open execution per instance.
func (s *Service) abandonStale(wf *Workflow) {
	now := s.now().UTC()
	for i := range wf.State.History {
		exec := &wf.State.History[i]
		if exec.EndTime != nil {
			continue
		}
		end := now
		exec.EndTime = &end
		exec.Status = ExecutionFailed
		exec.Error = "abandoned: engine stopped before the execution finished"
		wf.State.Metrics.FailureCount++
		logging.Warn(serviceComponent, "closing abandoned execution", "workflow_id", wf.ID, "execution_id", exec.ExecutionID)
	}
}

func (s *Service) seedVariables(h *runHandle, triggerData, options map[string]any) map[string]any {
	vars := cloneMap(h.wf.Definition.Variables)
	if vars == nil {
		vars = map[string]any{}
	}
	for k, v := range triggerData {
		vars[k] = cloneValue(v)
	}
	for k, v := range options {
		vars[k] = cloneValue(v)
	}
	vars["trigger"] = orEmpty(cloneMap(triggerData))
	vars["options"] = orEmpty(cloneMap(options))
	vars["workflow"] = map[string]any{
		"id":      h.wf.ID,
		"name":    h.wf.Definition.Name,
		"ownerId": h.wf.OwnerID,
	}
	vars["execution"] = map[string]any{
		"id":        h.executionID,
		"startTime": h.startedAt.UTC().Format(time.RFC3339Nano),
	}
	return vars
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// checkpoint stores progress after every step so status reads see it.
func (s *Service) checkpoint(ctx context.Context, id, executionID string, p RunProgress) {
	_, err := s.mutate(context.WithoutCancel(ctx), id, func(wf *Workflow) error {
		exec := findExecution(wf, executionID)
		if exec == nil {
			return fmt.Errorf("execution %s missing from history", executionID)
		}
		exec.Steps = append(exec.Steps, p.Record)
		exec.FilesProcessed = p.FilesProcessed
		wf.State.CurrentStepIndex = p.CurrentStepIndex
		wf.State.Variables = cloneMap(p.Variables)
		return nil
	})
	if err != nil {
		logging.Error(serviceComponent, "checkpoint failed", "workflow_id", id, "execution_id", executionID, "error", err)
	}
}

// finish closes the execution record and updates instance metrics.
func (s *Service) finish(ctx context.Context, h *runHandle, run RunResult, duration time.Duration) error {
	id := h.wf.ID
	defer func() {
		h.stopRenew()
		h.cancel(nil)
		s.releaseLock(id, h.executionID)
		s.clearActive(id, h.executionID)
	}()
	_, err := s.mutate(context.WithoutCancel(ctx), id, func(wf *Workflow) error {
		exec := findExecution(wf, h.executionID)
		if exec == nil {
			return fmt.Errorf("execution %s missing from history", h.executionID)
		}
		end := h.startedAt.Add(duration).UTC()
		exec.EndTime = &end
		exec.Status = run.Status
		exec.Steps = append([]StepRecord{}, run.Steps...)
		exec.Error = run.Error
		exec.FailedStepIndex = run.FailedStepIndex
		exec.FilesProcessed = run.FilesProcessed
		exec.DurationMs = duration.Milliseconds()

		wf.State.Variables = cloneMap(run.Variables)
		wf.State.CurrentStepIndex = run.CurrentStepIndex
		wf.State.Metrics.FilesProcessed += run.FilesProcessed
		wf.State.Metrics.TotalDurationMs += duration.Milliseconds()
		switch run.Status {
		case ExecutionCompleted:
			wf.State.Metrics.SuccessCount++
			wf.Status = StatusCompleted
		case ExecutionFailed:
			wf.State.Metrics.FailureCount++
			wf.Status = StatusFailed
		default:
			wf.Status = h.prevStatus
			if wf.Status == StatusRunning {
				wf.Status = settledStatus(wf.State.History)
			}
		}
		return nil
	})
	if err != nil {
		logging.Error(serviceComponent, "record execution outcome", "workflow_id", id, "execution_id", h.executionID, "error", err)
		return fmt.Errorf("record execution %s: %w", h.executionID, err)
	}
	return nil
}

func findExecution(wf *Workflow, executionID string) *Execution {
	for i := len(wf.State.History) - 1; i >= 0; i-- {
		if wf.State.History[i].ExecutionID == executionID {
			return &wf.State.History[i]
		}
	}
	return nil
}

// notify delivers the outcome to every definition target subscribed to it.
// Delivery failures are logged and never change the outcome.
func (s *Service) notify(ctx context.Context, h *runHandle, res ExecutionResult, vars map[string]any) {
	event := string(res.Status)
	for _, target := range h.wf.Definition.Notifications {
		if !subscribed(target, event) {
			continue
		}
		shown := target.Target
		if secrets.IsRef(target.Target) {
			resolved, err := secrets.ResolveString(target.Target, s.exec.collab.Secrets)
			if err != nil {
				logging.Warn(serviceComponent, "notification target unresolved", "workflow_id", h.wf.ID, "target", shown, "error", err)
				continue
			}
			target.Target = resolved
		} else {
			target.Target = ResolveTemplate(target.Target, vars)
			shown = target.Target
			if target.Target == "" || unresolved(target.Target) || secrets.IsRef(target.Target) {
				logging.Warn(serviceComponent, "notification target unresolved", "workflow_id", h.wf.ID, "target", target.Target)
				continue
			}
		}
		payload := map[string]any{
			"workflowId":     h.wf.ID,
			"workflowName":   h.wf.Definition.Name,
			"executionId":    res.ExecutionID,
			"status":         event,
			"error":          res.Error,
			"durationMs":     res.Duration.Milliseconds(),
			"filesProcessed": res.FilesProcessed,
		}
		delivery, err := s.notifier.Deliver(context.WithoutCancel(ctx), target, "workflow."+event, payload)
		if err == nil && !delivery.Success {
			err = errors.New(delivery.Error)
		}
		if err != nil {
			logging.Warn(serviceComponent, "notification failed", "workflow_id", h.wf.ID, "target", shown, "error", err)
		}
	}
}

func subscribed(target NotificationTarget, event string) bool {
	if len(target.Events) == 0 {
		return event == string(ExecutionCompleted) || event == string(ExecutionFailed)
	}
	for _, e := range target.Events {
		if e == event {
			return true
		}
	}
	return false
}

func (s *Service) publish(h *runHandle, res ExecutionResult) {
	evt := bus.Event{
		ID:          res.ExecutionID,
		WorkflowID:  h.wf.ID,
		ExecutionID: res.ExecutionID,
		OwnerID:     h.wf.OwnerID,
		Time:        s.now().UTC(),
		Data: map[string]any{
			"name":           h.wf.Definition.Name,
			"status":         string(res.Status),
			"error":          res.Error,
			"durationMs":     res.Duration.Milliseconds(),
			"filesProcessed": res.FilesProcessed,
			"steps":          len(res.Steps),
		},
	}
	if err := s.events.Publish(bus.WorkflowSubject(string(res.Status)), evt); err != nil {
		logging.Warn(serviceComponent, "publish execution event", "workflow_id", h.wf.ID, "execution_id", res.ExecutionID, "error", err)
	}
}

func runLockKey(id string) string {
	return "workflow:" + id
}

// keepLock renews the run lock at half its TTL until the returned func runs.
// When another owner holds the lock, or renewals keep failing until the TTL
// has passed, lost is called with ErrRunLockLost and renewal stops.
func (s *Service) keepLock(id, owner string, lost context.CancelCauseFunc) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(s.lockTTL / 2)
		defer ticker.Stop()
		renewed := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.lockTTL/2)
				ok, err := s.locks.Renew(ctx, runLockKey(id), owner, s.lockTTL)
				cancel()
				switch {
				case err == nil && ok:
					renewed = time.Now()
					continue
				case err != nil && time.Since(renewed) < s.lockTTL:
					logging.Warn(serviceComponent, "run lock renewal failed", "workflow_id", id, "execution_id", owner, "error", err)
					continue
				}
				logging.Error(serviceComponent, "run lock lost, cancelling execution", "workflow_id", id, "execution_id", owner, "error", err)
				if err != nil {
					lost(fmt.Errorf("%w: %v", ErrRunLockLost, err))
				} else {
					lost(fmt.Errorf("%w: held by another owner", ErrRunLockLost))
				}
				return
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (s *Service) releaseLock(id, owner string) {
	if s.locks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.locks.Release(ctx, runLockKey(id), owner); err != nil {
		logging.Warn(serviceComponent, "release run lock", "workflow_id", id, "error", err)
	}
}

func (s *Service) isActive(id string) bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	_, ok := s.active[id]
	return ok
}

func (s *Service) setActive(id, executionID string) {
	s.activeMu.Lock()
	s.active[id] = executionID
	s.activeMu.Unlock()
}

func (s *Service) clearActive(id, executionID string) {
	s.activeMu.Lock()
	if s.active[id] == executionID {
		delete(s.active, id)
	}
	s.activeMu.Unlock()
}
