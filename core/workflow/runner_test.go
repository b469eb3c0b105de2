package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/cordum/mediaflow/core/infra/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func transformStep(name, source, target string) StepDef {
	return StepDef{Name: name, Type: StepTypeTransform, Config: map[string]any{
		"operation": "format", "formatType": "string", "source": source, "case": "upper", "target": target,
	}}
}

func TestRunnerMergesOutputsBeforeNextStep(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	r := NewRunner(e)
	res := r.Run(context.Background(), RunInput{
		WorkflowID: "wf",
		Steps: []StepDef{
			{Name: "seed", Type: StepTypeTransform, Config: map[string]any{"operation": "combine", "sources": []any{"a", "b"}, "target": "joined"}},
			transformStep("shout", "joined", "loud"),
			{Name: "echo", Type: StepTypeCustom, Config: map[string]any{"seen": "{{loud}}"}},
		},
		Variables: map[string]any{"a": "hello", "b": "world"},
	})
	if res.Status != ExecutionCompleted {
		t.Fatalf("expected completed, got %+v", res)
	}
	if res.Variables["loud"] != "HELLO WORLD" {
		t.Fatalf("expected second step to read first step output, got %v", res.Variables["loud"])
	}
	if res.Outputs["echo"]["custom"].(map[string]any)["seen"] != "HELLO WORLD" {
		t.Fatalf("expected third step to see merged variables, got %#v", res.Outputs["echo"])
	}
	if len(res.Steps) != 3 || res.CurrentStepIndex != 3 {
		t.Fatalf("unexpected records: %+v", res.Steps)
	}
	for i, rec := range res.Steps {
		if rec.StepIndex != i || rec.Status != StepStatusCompleted {
			t.Fatalf("unexpected record %d: %+v", i, rec)
		}
	}
}

func TestRunnerStopsOnFailure(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	res := NewRunner(e).Run(context.Background(), RunInput{
		Steps: []StepDef{
			{Name: "ok", Type: StepTypeCustom},
			{Name: "broken", Type: StepTypeDelay, Config: map[string]any{"duration": "often"}},
			{Name: "never", Type: StepTypeCustom},
		},
	})
	if res.Status != ExecutionFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if len(res.Steps) != 2 || res.Steps[1].Status != StepStatusFailed || res.Steps[1].Error == "" {
		t.Fatalf("unexpected records: %+v", res.Steps)
	}
	if res.FailedStepIndex == nil || *res.FailedStepIndex != 1 {
		t.Fatalf("expected failed step index 1, got %v", res.FailedStepIndex)
	}
	if !strings.HasPrefix(res.Error, "step 1 (broken):") {
		t.Fatalf("unexpected error: %q", res.Error)
	}
	if _, ran := res.Outputs["never"]; ran {
		t.Fatalf("step after failure must not run")
	}
}

func TestRunnerContinueOnError(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	res := NewRunner(e).Run(context.Background(), RunInput{
		Steps: []StepDef{
			{Name: "broken", Type: "bogus", ContinueOnError: true},
			{Name: "after", Type: StepTypeCustom, Config: map[string]any{"ran": true}},
		},
	})
	if res.Status != ExecutionCompleted || res.FailedStepIndex != nil {
		t.Fatalf("expected completed after handled failure, got %+v", res)
	}
	if len(res.Steps) != 2 || res.Steps[0].Status != StepStatusFailed || res.Steps[1].Status != StepStatusCompleted {
		t.Fatalf("unexpected records: %+v", res.Steps)
	}
	if !strings.Contains(res.Steps[0].Error, "bogus") {
		t.Fatalf("expected error naming bogus, got %q", res.Steps[0].Error)
	}
}

func TestRunnerStepConditionsEarlyExit(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	res := NewRunner(e).Run(context.Background(), RunInput{
		Steps: []StepDef{
			{Name: "gate", Type: StepTypeCustom, Config: map[string]any{"go": false}, Conditions: []Condition{
				{Field: "custom.go", Operator: OpEquals, Value: true},
			}},
			{Name: "never", Type: StepTypeCustom},
		},
	})
	if res.Status != ExecutionCompleted || len(res.Steps) != 1 {
		t.Fatalf("expected clean early exit, got %+v", res)
	}
}

func TestRunnerFailureTakesPrecedenceOverConditions(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	res := NewRunner(e).Run(context.Background(), RunInput{
		Steps: []StepDef{
			{Name: "broken", Type: "bogus", ContinueOnError: true, Conditions: []Condition{
				{Field: "anything", Operator: OpExists},
			}},
			{Name: "after", Type: StepTypeCustom},
		},
	})
	if len(res.Steps) != 2 {
		t.Fatalf("conditions of a failed step must not stop the run: %+v", res.Steps)
	}
}

func TestRunnerRecoversPanics(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	e.handlers[StepTypeCustom] = func(context.Context, StepDef, map[string]any, StepContext) (StepResult, error) {
		panic("handler exploded")
	}
	res := NewRunner(e).Run(context.Background(), RunInput{Steps: []StepDef{{Name: "p", Type: StepTypeCustom}}})
	if res.Status != ExecutionFailed || !strings.Contains(res.Steps[0].Error, "handler exploded") {
		t.Fatalf("expected recovered panic, got %+v", res)
	}
}

func TestRunnerUnsuccessfulResultFails(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	e.handlers[StepTypeCustom] = func(context.Context, StepDef, map[string]any, StepContext) (StepResult, error) {
		return StepResult{Success: false}, nil
	}
	res := NewRunner(e).Run(context.Background(), RunInput{Steps: []StepDef{{Name: "p", Type: StepTypeCustom}}})
	if res.Status != ExecutionFailed {
		t.Fatalf("expected failure, got %+v", res)
	}
}

func TestRunnerCheckpointsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPromWith(reg, "mediaflow")
	e, _ := newTestExecutor(Collaborators{})
	var cursors []int
	res := NewRunner(e).WithMetrics(m).Run(context.Background(), RunInput{
		Steps: []StepDef{
			{Name: "a", Type: StepTypeCustom},
			{Name: "b", Type: "bogus", ContinueOnError: true},
		},
		OnStep: func(p RunProgress) { cursors = append(cursors, p.CurrentStepIndex) },
	})
	if res.Status != ExecutionCompleted {
		t.Fatalf("unexpected status %s", res.Status)
	}
	if len(cursors) != 2 || cursors[0] != 1 || cursors[1] != 1 {
		t.Fatalf("unexpected checkpoints: %v", cursors)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	total := 0.0
	for _, fam := range families {
		if fam.GetName() != "mediaflow_workflow_steps_finished_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	if total != 2 {
		t.Fatalf("expected 2 step observations, got %v", total)
	}
}
