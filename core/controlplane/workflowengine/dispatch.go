package workflowengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cordum/mediaflow/core/infra/bus"
	"github.com/cordum/mediaflow/core/infra/deadletter"
	"github.com/cordum/mediaflow/core/infra/logging"
	wf "github.com/cordum/mediaflow/core/workflow"
	"github.com/google/uuid"
)

const (
	busyRetryDelay    = 2 * time.Second
	deadLetterTimeout = 2 * time.Second
)

type triggerService interface {
	HandleTrigger(ctx context.Context, req wf.TriggerRequest) ([]wf.ExecutionResult, error)
	GetWorkflowStatus(ctx context.Context, id string) (wf.StatusView, error)
}

// dispatcher runs trigger requests in the background so a slow workflow
// never blocks the bus subscription or the scheduler.
type dispatcher struct {
	ctx  context.Context
	svc  triggerService
	dead deadletter.Store
	wg   sync.WaitGroup
}

func newDispatcher(ctx context.Context, svc triggerService) *dispatcher {
	return &dispatcher{ctx: ctx, svc: svc}
}

// WithDeadLetters records requests that fail to run.
func (d *dispatcher) WithDeadLetters(store deadletter.Store) *dispatcher {
	d.dead = store
	return d
}

// HandleEvent is the bus handler for mediaflow.trigger.<type>. A targeted
// trigger for a workflow that is mid-run is redelivered later.
func (d *dispatcher) HandleEvent(evt bus.Event) error {
	req := wf.TriggerRequest{
		Type:       wf.TriggerType(evt.Type),
		WorkflowID: evt.WorkflowID,
		OwnerID:    evt.OwnerID,
		Data:       evt.Data,
	}
	if req.Type == "" {
		req.Type = wf.TriggerManual
	}
	if req.WorkflowID != "" {
		status, err := d.svc.GetWorkflowStatus(d.ctx, req.WorkflowID)
		if errors.Is(err, wf.ErrNotFound) {
			logging.Warn(component, "trigger for unknown workflow dropped", "workflow_id", req.WorkflowID, "type", req.Type)
			return nil
		}
		if err != nil {
			return bus.RetryAfter(err, busyRetryDelay)
		}
		if status.Status == wf.StatusRunning {
			return bus.RetryAfter(wf.ErrAlreadyRunning, busyRetryDelay)
		}
	}
	d.Dispatch(req)
	return nil
}

// Dispatch starts req in the background.
func (d *dispatcher) Dispatch(req wf.TriggerRequest) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		results, err := d.svc.HandleTrigger(d.ctx, req)
		if err != nil {
			logging.Warn(component, "trigger failed", "type", req.Type, "workflow_id", req.WorkflowID, "error", err)
			d.deadLetter(req, err)
		}
		if len(results) > 0 {
			logging.Debug(component, "trigger handled", "type", req.Type, "executions", len(results))
		}
	}()
}

func (d *dispatcher) deadLetter(req wf.TriggerRequest, cause error) {
	if d.dead == nil || errors.Is(cause, context.Canceled) {
		return
	}
	entry := deadletter.Entry{
		ID:          uuid.NewString(),
		TriggerType: string(req.Type),
		WorkflowID:  req.WorkflowID,
		OwnerID:     req.OwnerID,
		Reason:      cause.Error(),
		Data:        req.Data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadLetterTimeout)
	defer cancel()
	if err := d.dead.Add(ctx, entry); err != nil {
		logging.Error(component, "dead letter write failed", "type", req.Type, "error", err)
	}
}

// Wait blocks until every dispatched request returns or timeout passes.
func (d *dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
