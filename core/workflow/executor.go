package workflow

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultBatchPollInterval = 5 * time.Second
	defaultBatchTimeout      = 30 * time.Minute
	defaultWebhookTimeout    = 10 * time.Second
	defaultMaxActionDepth    = 8
)

// StepContext is what a step sees of the running execution.
type StepContext struct {
	WorkflowID  string
	OwnerID     string
	ExecutionID string
	StepIndex   int
	// Variables is the merged execution context. Handlers must not mutate it.
	Variables map[string]any
	// Previous maps completed step names to their outputs.
	Previous map[string]map[string]any

	depth int
}

// StepResult is the outcome of a successful handler call.
type StepResult struct {
	Success        bool
	FilesProcessed int
	Outputs        map[string]any
}

// ExecutorOptions tunes handler timeouts. Zero values use defaults.
type ExecutorOptions struct {
	BatchPollInterval time.Duration
	BatchTimeout      time.Duration
	WebhookTimeout    time.Duration
	MaxActionDepth    int
}

func (o ExecutorOptions) withDefaults() ExecutorOptions {
	if o.BatchPollInterval <= 0 {
		o.BatchPollInterval = defaultBatchPollInterval
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = defaultBatchTimeout
	}
	if o.WebhookTimeout <= 0 {
		o.WebhookTimeout = defaultWebhookTimeout
	}
	if o.MaxActionDepth <= 0 {
		o.MaxActionDepth = defaultMaxActionDepth
	}
	return o
}

type stepHandler func(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error)

// Executor dispatches a step to the handler registered for its type.
type Executor struct {
	collab     Collaborators
	opts       ExecutorOptions
	rules      *RulesEngine
	classifier *ContentClassifier
	router     *SmartRouter
	handlers   map[StepType]stepHandler

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewExecutor(collab Collaborators, opts ExecutorOptions) *Executor {
	e := &Executor{
		collab:     collab.withDefaults(),
		opts:       opts.withDefaults(),
		rules:      NewRulesEngine(),
		classifier: NewContentClassifier(),
		router:     NewSmartRouter(),
		sleep:      sleepContext,
		now:        time.Now,
	}
	e.handlers = map[StepType]stepHandler{
		StepTypeTranscribe:   e.transcribe,
		StepTypeBatchProcess: e.batchProcess,
		StepTypeClassify:     e.classify,
		StepTypeRoute:        e.route,
		StepTypeExport:       e.export,
		StepTypeWebhook:      e.webhook,
		StepTypeCondition:    e.condition,
		StepTypeTransform:    e.transform,
		StepTypeDelay:        e.delay,
		StepTypeCustom:       e.custom,
	}
	for _, t := range AllStepTypes {
		if e.handlers[t] == nil {
			panic(fmt.Sprintf("workflow: no handler for step type %q", t))
		}
	}
	return e
}

// WithClassifier replaces the classifier used by classify steps.
func (e *Executor) WithClassifier(c *ContentClassifier) *Executor {
	if c != nil {
		e.classifier = c
	}
	return e
}

// WithRulesEngine replaces the engine used by condition steps.
func (e *Executor) WithRulesEngine(r *RulesEngine) *Executor {
	if r != nil {
		e.rules = r
	}
	return e
}

// Rules exposes the engine so callers share its regex cache.
func (e *Executor) Rules() *RulesEngine {
	return e.rules
}

// Execute runs one step. Templates in its config are resolved against the
// step context before the handler sees them.
func (e *Executor) Execute(ctx context.Context, step StepDef, sc StepContext) (StepResult, error) {
	handler, ok := e.handlers[step.Type]
	if !ok {
		return StepResult{}, fmt.Errorf("%w %q", ErrUnknownStepType, step.Type)
	}
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	cfg := resolveConfig(step.Config, templateVars(sc))
	res, err := handler(ctx, step, cfg, sc)
	if err != nil {
		return StepResult{}, err
	}
	if res.Outputs == nil {
		res.Outputs = map[string]any{}
	}
	return res, nil
}

// rawConfigKeys hold nested steps or expressions that are evaluated later,
// against the context at that point.
var rawConfigKeys = map[string]bool{
	"trueAction":  true,
	"falseAction": true,
	"conditions":  true,
	"rules":       true,
}

func resolveConfig(cfg map[string]any, vars map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if rawConfigKeys[k] {
			out[k] = cloneValue(v)
			continue
		}
		out[k] = ResolveValue(v, vars)
	}
	return out
}

// templateVars exposes prior step outputs under "steps" unless a variable
// already claims that name.
func templateVars(sc StepContext) map[string]any {
	if len(sc.Previous) == 0 {
		return sc.Variables
	}
	if _, taken := sc.Variables["steps"]; taken {
		return sc.Variables
	}
	out := make(map[string]any, len(sc.Variables)+1)
	for k, v := range sc.Variables {
		out[k] = v
	}
	steps := make(map[string]any, len(sc.Previous))
	for name, outputs := range sc.Previous {
		steps[name] = outputs
	}
	out["steps"] = steps
	return out
}
