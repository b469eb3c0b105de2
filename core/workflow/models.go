package workflow

import "time"

// StepType identifies the kind of step in a workflow definition.
type StepType string

const (
	StepTypeTranscribe   StepType = "transcribe"
	StepTypeBatchProcess StepType = "batch_process"
	StepTypeClassify     StepType = "classify"
	StepTypeRoute        StepType = "route"
	StepTypeExport       StepType = "export"
	StepTypeWebhook      StepType = "webhook"
	StepTypeCondition    StepType = "condition"
	StepTypeTransform    StepType = "transform"
	StepTypeDelay        StepType = "delay"
	StepTypeCustom       StepType = "custom"
)

// AllStepTypes lists every step type the executor must handle.
var AllStepTypes = []StepType{
	StepTypeTranscribe,
	StepTypeBatchProcess,
	StepTypeClassify,
	StepTypeRoute,
	StepTypeExport,
	StepTypeWebhook,
	StepTypeCondition,
	StepTypeTransform,
	StepTypeDelay,
	StepTypeCustom,
}

// Known reports whether t is one of AllStepTypes.
func (t StepType) Known() bool {
	for _, known := range AllStepTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Status captures the lifecycle of a workflow instance.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// ExecutionStatus captures the outcome of one run.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionSkipped   ExecutionStatus = "skipped"
)

// StepStatus captures the outcome of one step inside an execution.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// Operator is a leaf condition comparison.
type Operator string

const (
	OpEquals       Operator = "equals"
	OpNotEquals    Operator = "not_equals"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpGreaterThan  Operator = "greater_than"
	OpLessThan     Operator = "less_than"
	OpGreaterEqual Operator = "greater_equal"
	OpLessEqual    Operator = "less_equal"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpExists       Operator = "exists"
	OpNotExists    Operator = "not_exists"
	OpRegex        Operator = "regex"
)

var knownOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true, OpNotContains: true,
	OpGreaterThan: true, OpLessThan: true, OpGreaterEqual: true, OpLessEqual: true,
	OpIn: true, OpNotIn: true, OpExists: true, OpNotExists: true, OpRegex: true,
}

// LogicOperator combines nested conditions.
type LogicOperator string

const (
	LogicAnd LogicOperator = "and"
	LogicOr  LogicOperator = "or"
)

// TriggerType names an external event that can start an execution.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerWebhook  TriggerType = "webhook"
	TriggerUpload   TriggerType = "upload"
	TriggerEvent    TriggerType = "event"
)

var knownTriggers = map[TriggerType]bool{
	TriggerManual: true, TriggerSchedule: true, TriggerWebhook: true, TriggerUpload: true, TriggerEvent: true,
}

// Condition is a node in a boolean condition tree. A node with
// NestedConditions ignores its own Field/Operator/Value.
type Condition struct {
	Field            string        `json:"field,omitempty" yaml:"field,omitempty"`
	Operator         Operator      `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value            any           `json:"value" yaml:"value"`
	LogicOperator    LogicOperator `json:"logicOperator,omitempty" yaml:"logicOperator,omitempty"`
	NestedConditions []Condition   `json:"nestedConditions,omitempty" yaml:"nestedConditions,omitempty"`
}

// StepDef is one unit of work in a definition.
type StepDef struct {
	Name            string         `json:"name" yaml:"name"`
	Type            StepType       `json:"type" yaml:"type"`
	Config          map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Conditions      []Condition    `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	ContinueOnError bool           `json:"continueOnError,omitempty" yaml:"continueOnError,omitempty"`
}

// Trigger declares an event type that starts the workflow. Conditions filter
// the inbound trigger data.
type Trigger struct {
	Type       TriggerType    `json:"type" yaml:"type"`
	Config     map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Conditions []Condition    `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// NotificationTarget receives completion/failure notices. Empty Events means
// both.
type NotificationTarget struct {
	Type   string   `json:"type" yaml:"type"`
	Target string   `json:"target" yaml:"target"`
	Events []string `json:"events,omitempty" yaml:"events,omitempty"`
}

// Definition is the static template of an automation.
type Definition struct {
	Name          string               `json:"name" yaml:"name"`
	Description   string               `json:"description,omitempty" yaml:"description,omitempty"`
	Steps         []StepDef            `json:"steps" yaml:"steps"`
	Triggers      []Trigger            `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Conditions    []Condition          `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Notifications []NotificationTarget `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	Variables     map[string]any       `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Workflow is a live, stateful instance created from a definition.
type Workflow struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	Status     Status     `json:"status"`
	Definition Definition `json:"definition"`
	State      State      `json:"state"`
	IsActive   bool       `json:"isActive"`
	Triggers   []Trigger  `json:"triggers,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// State is the mutable part of an instance.
type State struct {
	CurrentStepIndex int            `json:"currentStepIndex"`
	Variables        map[string]any `json:"variables"`
	History          []Execution    `json:"history"`
	Metrics          Metrics        `json:"metrics"`
}

// Metrics aggregates outcomes across executions.
type Metrics struct {
	FilesProcessed  int   `json:"filesProcessed"`
	SuccessCount    int   `json:"successCount"`
	FailureCount    int   `json:"failureCount"`
	TotalDurationMs int64 `json:"totalDurationMs"`
}

// Execution is one entry in an instance's history.
type Execution struct {
	ExecutionID     string          `json:"executionId"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         *time.Time      `json:"endTime"`
	TriggerData     map[string]any  `json:"triggerData,omitempty"`
	Status          ExecutionStatus `json:"status"`
	Steps           []StepRecord    `json:"steps"`
	Error           string          `json:"error,omitempty"`
	FailedStepIndex *int            `json:"failedStepIndex,omitempty"`
	FilesProcessed  int             `json:"filesProcessed"`
	DurationMs      int64           `json:"durationMs"`
}

// StepRecord is the outcome of one step inside an execution.
type StepRecord struct {
	StepIndex int            `json:"stepIndex"`
	StepName  string         `json:"stepName"`
	StepType  StepType       `json:"stepType"`
	Status    StepStatus     `json:"status"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// RouteRule pairs a boolean expression with the action taken when it holds.
type RouteRule struct {
	Name      string         `json:"name" yaml:"name"`
	Condition string         `json:"condition" yaml:"condition"`
	Action    string         `json:"action" yaml:"action"`
	Config    map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Route is the action selected by the router. Index is -1 for the default.
type Route struct {
	Name   string         `json:"name"`
	Action string         `json:"action"`
	Config map[string]any `json:"config"`
	Index  int            `json:"index"`
}

// ClassificationRule scores text against a pattern.
type ClassificationRule struct {
	Name      string   `json:"name" yaml:"name"`
	Pattern   string   `json:"pattern" yaml:"pattern"`
	Category  string   `json:"category" yaml:"category"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// RuleScore is the per-rule classification detail.
type RuleScore struct {
	Rule       string  `json:"rule"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Matches    int     `json:"matches"`
}

// Classification is the result of classifying a piece of text.
type Classification struct {
	Category   string      `json:"category"`
	Confidence float64     `json:"confidence"`
	Rule       string      `json:"rule"`
	Tags       []string    `json:"tags"`
	Details    []RuleScore `json:"details"`
}
