package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cordum/mediaflow/core/infra/logging"
	"github.com/cordum/mediaflow/core/infra/metrics"
)

var errStepUnsuccessful = errors.New("step reported failure")

// RunInput is one execution's worth of work for the Runner.
type RunInput struct {
	WorkflowID  string
	OwnerID     string
	ExecutionID string
	Steps       []StepDef
	Variables   map[string]any
	// OnStep is called after every step record is appended.
	OnStep func(RunProgress)
}

// RunProgress is a checkpoint emitted after each step.
type RunProgress struct {
	Record           StepRecord
	Variables        map[string]any
	CurrentStepIndex int
	FilesProcessed   int
}

// RunResult is the outcome of running every step of one execution.
type RunResult struct {
	Status           ExecutionStatus
	Steps            []StepRecord
	Variables        map[string]any
	Outputs          map[string]map[string]any
	Error            string
	FailedStepIndex  *int
	FilesProcessed   int
	CurrentStepIndex int
}

// Runner executes steps strictly in order, merging each step's outputs into
// the variable context before the next step starts.
type Runner struct {
	exec    *Executor
	rules   *RulesEngine
	metrics metrics.WorkflowMetrics
	now     func() time.Time
}

func NewRunner(exec *Executor) *Runner {
	return &Runner{exec: exec, rules: exec.Rules(), metrics: metrics.Noop{}, now: time.Now}
}

func (r *Runner) WithMetrics(m metrics.WorkflowMetrics) *Runner {
	if m != nil {
		r.metrics = m
	}
	return r
}

// Run executes in.Steps. A failed step stops the run unless it sets
// continueOnError; a successful step whose conditions evaluate false ends the
// run early without failing it. Conditions are not consulted for failed steps.
func (r *Runner) Run(ctx context.Context, in RunInput) RunResult {
	vars := cloneMap(in.Variables)
	if vars == nil {
		vars = map[string]any{}
	}
	res := RunResult{
		Status:    ExecutionCompleted,
		Steps:     make([]StepRecord, 0, len(in.Steps)),
		Variables: vars,
		Outputs:   map[string]map[string]any{},
	}

	for i, step := range in.Steps {
		res.CurrentStepIndex = i
		rec := StepRecord{StepIndex: i, StepName: step.Name, StepType: step.Type, StartTime: r.now().UTC()}
		out, err := r.execute(ctx, step, StepContext{
			WorkflowID:  in.WorkflowID,
			OwnerID:     in.OwnerID,
			ExecutionID: in.ExecutionID,
			StepIndex:   i,
			Variables:   vars,
			Previous:    res.Outputs,
		})
		if err == nil && !out.Success {
			err = errStepUnsuccessful
		}
		rec.EndTime = r.now().UTC()

		if err != nil {
			rec.Status = StepStatusFailed
			rec.Error = err.Error()
			res.Steps = append(res.Steps, rec)
			r.metrics.IncStepFinished(string(step.Type), string(StepStatusFailed))
			r.checkpoint(in, &res, rec)
			logging.Warn("workflow-runner", "step failed",
				"workflow_id", in.WorkflowID, "execution_id", in.ExecutionID,
				"step", step.Name, "index", i, "continue", step.ContinueOnError, "error", err)
			if step.ContinueOnError && ctx.Err() == nil {
				res.CurrentStepIndex = i + 1
				continue
			}
			idx := i
			res.FailedStepIndex = &idx
			res.Status = ExecutionFailed
			res.Error = fmt.Sprintf("step %d (%s): %v", i, step.Name, err)
			return res
		}

		for k, v := range out.Outputs {
			vars[k] = v
		}
		res.Outputs[step.Name] = cloneMap(out.Outputs)
		res.FilesProcessed += out.FilesProcessed
		rec.Status = StepStatusCompleted
		rec.Result = cloneMap(out.Outputs)
		res.Steps = append(res.Steps, rec)
		res.CurrentStepIndex = i + 1
		r.metrics.IncStepFinished(string(step.Type), string(StepStatusCompleted))
		r.checkpoint(in, &res, rec)

		if len(step.Conditions) > 0 && !r.rules.Evaluate(step.Conditions, vars) {
			logging.Info("workflow-runner", "step conditions not met, stopping",
				"workflow_id", in.WorkflowID, "execution_id", in.ExecutionID, "step", step.Name, "index", i)
			return res
		}
	}
	return res
}

func (r *Runner) execute(ctx context.Context, step StepDef, sc StepContext) (res StepResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step panicked: %v", p)
		}
	}()
	return r.exec.Execute(ctx, step, sc)
}

func (r *Runner) checkpoint(in RunInput, res *RunResult, rec StepRecord) {
	if in.OnStep == nil {
		return
	}
	in.OnStep(RunProgress{
		Record:           rec,
		Variables:        res.Variables,
		CurrentStepIndex: res.CurrentStepIndex,
		FilesProcessed:   res.FilesProcessed,
	})
}
