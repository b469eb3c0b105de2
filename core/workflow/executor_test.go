package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubTranscriber struct {
	mu    sync.Mutex
	paths []string
	text  string
	err   error
}

func (s *stubTranscriber) Transcribe(_ context.Context, path string, _ map[string]any) (Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	if s.err != nil {
		return Transcription{}, s.err
	}
	return Transcription{ID: "tr-" + path, Text: s.text, Confidence: 0.9, Duration: 12}, nil
}

type stubBatch struct {
	statuses []BatchStatus
	polls    int
	files    []string
	owner    string
}

func (s *stubBatch) StartBatch(_ context.Context, files []string, ownerID string, _ map[string]any) (string, error) {
	s.files = files
	s.owner = ownerID
	return "batch-1", nil
}

func (s *stubBatch) GetBatchStatus(_ context.Context, id string) (BatchStatus, error) {
	idx := s.polls
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	s.polls++
	st := s.statuses[idx]
	st.ID = id
	return st, nil
}

type stubExporter struct {
	calls  []string
	format string
}

func (s *stubExporter) Export(_ context.Context, t Transcription, format string, _ map[string]any) (ExportResult, error) {
	s.calls = append(s.calls, t.Text)
	s.format = format
	return ExportResult{FilePath: "artifact://" + t.ID, Size: int64(len(t.Text)), Format: format}, nil
}

type stubNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	fail       bool
}

type delivery struct {
	target  NotificationTarget
	event   string
	payload map[string]any
}

func (s *stubNotifier) Deliver(_ context.Context, target NotificationTarget, event string, payload map[string]any) (DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, delivery{target: target, event: event, payload: payload})
	if s.fail {
		return DeliveryResult{Success: false, StatusCode: 500, Error: "boom"}, nil
	}
	return DeliveryResult{Success: true, StatusCode: 200}, nil
}

func (s *stubNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

type stubFiles map[string]string

func (s stubFiles) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, ok := s[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return []byte(data), nil
}

// fakeClock advances only when the executor sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func newTestExecutor(collab Collaborators) (*Executor, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	e := NewExecutor(collab, ExecutorOptions{BatchPollInterval: time.Second, BatchTimeout: 10 * time.Second})
	e.sleep = clock.Sleep
	e.now = clock.Now
	return e, clock
}

func TestExecutorHandlesEveryStepType(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	for _, st := range AllStepTypes {
		if e.handlers[st] == nil {
			t.Fatalf("missing handler for %s", st)
		}
	}
}

func TestExecutorUnknownStepType(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	_, err := e.Execute(context.Background(), StepDef{Name: "x", Type: "bogus"}, StepContext{})
	if !errors.Is(err, ErrUnknownStepType) || !strings.Contains(err.Error(), `"bogus"`) {
		t.Fatalf("expected unknown step type error naming bogus, got %v", err)
	}
}

func TestExecutorUnconfiguredCollaborator(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	step := StepDef{Name: "t", Type: StepTypeTranscribe, Config: map[string]any{"filePath": "a.wav"}}
	if _, err := e.Execute(context.Background(), step, StepContext{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTranscribeStepResolvesPath(t *testing.T) {
	tr := &stubTranscriber{text: "hello world"}
	e, _ := newTestExecutor(Collaborators{Transcriber: tr})
	res, err := e.Execute(context.Background(), StepDef{Name: "t", Type: StepTypeTranscribe}, StepContext{
		Variables: map[string]any{"filePath": "/media/a.wav"},
	})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(tr.paths) != 1 || tr.paths[0] != "/media/a.wav" {
		t.Fatalf("unexpected paths: %v", tr.paths)
	}
	if res.Outputs["transcriptionId"] != "tr-/media/a.wav" || res.FilesProcessed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if text, _ := lookupPath(res.Outputs, "transcription.text"); text != "hello world" {
		t.Fatalf("expected transcription text, got %v", text)
	}

	if _, err := e.Execute(context.Background(), StepDef{Name: "t", Type: StepTypeTranscribe}, StepContext{Variables: map[string]any{}}); err == nil {
		t.Fatalf("expected missing filePath error")
	}
}

func TestBatchStepPollsUntilTerminal(t *testing.T) {
	batch := &stubBatch{statuses: []BatchStatus{
		{Status: "processing", TotalFiles: 2},
		{Status: "processing", TotalFiles: 2, ProcessedFiles: 1},
		{Status: "completed", TotalFiles: 2, ProcessedFiles: 2},
	}}
	e, clock := newTestExecutor(Collaborators{Batch: batch})
	start := clock.Now()
	res, err := e.Execute(context.Background(), StepDef{Name: "b", Type: StepTypeBatchProcess, Config: map[string]any{
		"files":        "{{files}}",
		"pollInterval": "2s",
	}}, StepContext{OwnerID: "u-1", Variables: map[string]any{"files": []any{"a.wav", "b.wav"}}})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if batch.polls != 3 || batch.owner != "u-1" || len(batch.files) != 2 {
		t.Fatalf("unexpected batch calls: %+v", batch)
	}
	if res.FilesProcessed != 2 || res.Outputs["batchId"] != "batch-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if waited := clock.Now().Sub(start); waited != 4*time.Second {
		t.Fatalf("expected two 2s polls, waited %s", waited)
	}
}

func TestBatchStepTimeout(t *testing.T) {
	batch := &stubBatch{statuses: []BatchStatus{{Status: "processing"}}}
	e, _ := newTestExecutor(Collaborators{Batch: batch})
	_, err := e.Execute(context.Background(), StepDef{Name: "b", Type: StepTypeBatchProcess, Config: map[string]any{
		"files":   []any{"a.wav"},
		"timeout": 3000,
	}}, StepContext{})
	if !errors.Is(err, ErrStepTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestBatchStepFailedBatch(t *testing.T) {
	batch := &stubBatch{statuses: []BatchStatus{{Status: "failed", TotalFiles: 1, FailedFiles: 1}}}
	e, _ := newTestExecutor(Collaborators{Batch: batch})
	_, err := e.Execute(context.Background(), StepDef{Name: "b", Type: StepTypeBatchProcess, Config: map[string]any{"files": []any{"a.wav"}}}, StepContext{})
	if err == nil || !strings.Contains(err.Error(), "failed") {
		t.Fatalf("expected failed batch error, got %v", err)
	}
}

func TestClassifyStepContentSources(t *testing.T) {
	rules := []any{map[string]any{"pattern": "psalm", "category": "liturgical", "threshold": 0.2}}
	e, _ := newTestExecutor(Collaborators{Files: stubFiles{"/tmp/a.txt": "psalm psalm reading"}})

	res, err := e.Execute(context.Background(), StepDef{Name: "c", Type: StepTypeClassify, Config: map[string]any{"rules": rules}}, StepContext{
		Variables: map[string]any{"transcription": map[string]any{"text": "psalm one psalm two psalm three and more words here"}},
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Outputs["classification"] != "liturgical" || res.Outputs["confidence"] != 0.3 {
		t.Fatalf("unexpected classification: %+v", res.Outputs)
	}

	res, err = e.Execute(context.Background(), StepDef{Name: "c", Type: StepTypeClassify, Config: map[string]any{"rules": rules, "sourceStep": "tx"}}, StepContext{
		Variables: map[string]any{},
		Previous:  map[string]map[string]any{"tx": {"transcription": map[string]any{"text": "nothing relevant"}}},
	})
	if err != nil || res.Outputs["classification"] != "general" {
		t.Fatalf("expected fallback from named step, got %+v err=%v", res.Outputs, err)
	}

	res, err = e.Execute(context.Background(), StepDef{Name: "c", Type: StepTypeClassify, Config: map[string]any{"rules": rules, "filePath": "/tmp/a.txt"}}, StepContext{Variables: map[string]any{}})
	if err != nil || res.Outputs["classification"] != "liturgical" {
		t.Fatalf("expected file content classification, got %+v err=%v", res.Outputs, err)
	}

	if _, err := e.Execute(context.Background(), StepDef{Name: "c", Type: StepTypeClassify}, StepContext{Variables: map[string]any{}}); err == nil {
		t.Fatalf("expected error without content")
	}
}

func TestRouteStepSideEffects(t *testing.T) {
	exp := &stubExporter{}
	notif := &stubNotifier{}
	e, _ := newTestExecutor(Collaborators{Exporter: exp, Notifier: notif})
	rules := []any{
		map[string]any{"condition": "false", "action": "webhook"},
		map[string]any{"condition": "true", "action": "export", "config": map[string]any{"format": "txt"}},
	}
	vars := map[string]any{"transcription": map[string]any{"id": "t1", "text": "abc"}}
	res, err := e.Execute(context.Background(), StepDef{Name: "r", Type: StepTypeRoute, Config: map[string]any{"rules": rules}}, StepContext{Variables: vars})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if res.Outputs["routeAction"] != "export" || res.Outputs["routeIndex"] != 1 {
		t.Fatalf("unexpected route outputs: %+v", res.Outputs)
	}
	if len(exp.calls) != 1 || exp.format != "txt" || res.Outputs["exportPath"] != "artifact://t1" {
		t.Fatalf("expected export side effect, got %+v / %+v", exp, res.Outputs)
	}
	if notif.count() != 0 {
		t.Fatalf("webhook must not fire for the skipped rule")
	}

	hook := []any{map[string]any{"condition": "score > 1", "action": "webhook", "config": map[string]any{"url": "{{hook}}"}}}
	res, err = e.Execute(context.Background(), StepDef{Name: "r", Type: StepTypeRoute, Config: map[string]any{"rules": hook}}, StepContext{
		Variables: map[string]any{"score": 2, "hook": "https://hooks.local/a"},
	})
	if err != nil || notif.count() != 1 || notif.deliveries[0].target.Target != "https://hooks.local/a" {
		t.Fatalf("expected webhook delivery, got %+v err=%v", notif.deliveries, err)
	}
	if res.Outputs["route"] != "webhook" {
		t.Fatalf("unexpected route: %+v", res.Outputs)
	}
}

func TestExportStepRequiresTranscription(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{Exporter: &stubExporter{}})
	if _, err := e.Execute(context.Background(), StepDef{Name: "e", Type: StepTypeExport}, StepContext{Variables: map[string]any{}}); err == nil {
		t.Fatalf("expected missing transcription error")
	}
}

func TestWebhookStep(t *testing.T) {
	notif := &stubNotifier{}
	e, _ := newTestExecutor(Collaborators{Notifier: notif})
	step := StepDef{Name: "w", Type: StepTypeWebhook, Config: map[string]any{
		"url":     "https://hooks.local/{{workflow.id}}",
		"event":   "transcript.ready",
		"payload": map[string]any{"text": "{{transcription.text}}", "missing": "{{nope}}"},
	}}
	vars := map[string]any{"workflow": map[string]any{"id": "wf-9"}, "transcription": map[string]any{"text": "hi"}}
	if _, err := e.Execute(context.Background(), step, StepContext{Variables: vars}); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	d := notif.deliveries[0]
	if d.target.Target != "https://hooks.local/wf-9" || d.event != "transcript.ready" {
		t.Fatalf("unexpected delivery: %+v", d)
	}
	if d.payload["text"] != "hi" || d.payload["missing"] != "{{nope}}" {
		t.Fatalf("unexpected payload: %#v", d.payload)
	}

	notif.fail = true
	if _, err := e.Execute(context.Background(), step, StepContext{Variables: vars}); err == nil {
		t.Fatalf("expected failed delivery to fail the step")
	}
	if _, err := e.Execute(context.Background(), StepDef{Name: "w", Type: StepTypeWebhook}, StepContext{}); err == nil {
		t.Fatalf("expected missing url error")
	}
}

func TestConditionStepBranches(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	step := StepDef{Name: "check", Type: StepTypeCondition, Config: map[string]any{
		"conditions": []any{map[string]any{"field": "confidence", "operator": "greater_than", "value": 0.5}},
		"trueAction": map[string]any{"type": "transform", "config": map[string]any{
			"operation": "format", "formatType": "string", "source": "label", "case": "upper", "target": "label",
		}},
		"falseAction": map[string]any{"name": "noop", "type": "custom", "config": map[string]any{"reason": "{{confidence}}"}},
	}}
	res, err := e.Execute(context.Background(), step, StepContext{Variables: map[string]any{"confidence": 0.9, "label": "sermon"}})
	if err != nil {
		t.Fatalf("condition: %v", err)
	}
	if res.Outputs["branch"] != "true" || res.Outputs["conditionResult"] != true || res.Outputs["label"] != "SERMON" {
		t.Fatalf("unexpected true branch: %+v", res.Outputs)
	}
	if res.Outputs["action"] != "check.true" {
		t.Fatalf("expected default action name, got %v", res.Outputs["action"])
	}

	res, err = e.Execute(context.Background(), step, StepContext{Variables: map[string]any{"confidence": 0.1}})
	if err != nil || res.Outputs["branch"] != "false" || res.Outputs["action"] != "noop" {
		t.Fatalf("unexpected false branch: %+v err=%v", res.Outputs, err)
	}
	if custom := res.Outputs["custom"].(map[string]any); custom["reason"] != 0.1 {
		t.Fatalf("expected nested config resolved at run time, got %#v", custom)
	}
}

func TestConditionStepDepthBound(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	e.opts.MaxActionDepth = 3
	action := map[string]any{"type": "custom"}
	for i := 0; i < 5; i++ {
		action = map[string]any{"type": "condition", "config": map[string]any{"trueAction": action}}
	}
	var step StepDef
	if err := decodeInto(action, &step); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := e.Execute(context.Background(), step, StepContext{Variables: map[string]any{}}); err == nil || !strings.Contains(err.Error(), "deeper than 3") {
		t.Fatalf("expected depth error, got %v", err)
	}
}

func TestDelayStep(t *testing.T) {
	e, clock := newTestExecutor(Collaborators{})
	start := clock.Now()
	res, err := e.Execute(context.Background(), StepDef{Name: "d", Type: StepTypeDelay, Config: map[string]any{"duration": "1d"}}, StepContext{})
	if err != nil || res.Outputs["delayedMs"] != int64(86400000) {
		t.Fatalf("unexpected delay result: %+v err=%v", res, err)
	}
	if clock.Now().Sub(start) != 24*time.Hour {
		t.Fatalf("expected clock to advance a day")
	}
	if _, err := e.Execute(context.Background(), StepDef{Name: "d", Type: StepTypeDelay, Config: map[string]any{"duration": "soon"}}, StepContext{}); err == nil {
		t.Fatalf("expected malformed duration error")
	}
	if _, err := e.Execute(context.Background(), StepDef{Name: "d", Type: StepTypeDelay}, StepContext{}); err == nil {
		t.Fatalf("expected missing duration error")
	}
}

func TestDelayStepHonoursCancellation(t *testing.T) {
	e := NewExecutor(Collaborators{}, ExecutorOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err := e.Execute(ctx, StepDef{Name: "d", Type: StepTypeDelay, Config: map[string]any{"duration": "1h"}}, StepContext{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatalf("delay ignored cancellation")
	}
}

func TestCustomStepEchoes(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	res, err := e.Execute(context.Background(), StepDef{Name: "c", Type: StepTypeCustom, Config: map[string]any{"script": "rm -rf /", "who": "{{user}}"}}, StepContext{
		Variables: map[string]any{"user": "ana"},
	})
	if err != nil {
		t.Fatalf("custom: %v", err)
	}
	echo := res.Outputs["custom"].(map[string]any)
	if echo["script"] != "rm -rf /" || echo["who"] != "ana" {
		t.Fatalf("unexpected echo: %#v", echo)
	}
}

func TestTemplatesSeePreviousSteps(t *testing.T) {
	e, _ := newTestExecutor(Collaborators{})
	res, err := e.Execute(context.Background(), StepDef{Name: "c", Type: StepTypeCustom, Config: map[string]any{"from": "{{steps.first.value}}"}}, StepContext{
		Variables: map[string]any{},
		Previous:  map[string]map[string]any{"first": {"value": 7}},
	})
	if err != nil || res.Outputs["custom"].(map[string]any)["from"] != 7 {
		t.Fatalf("expected prior step output, got %+v err=%v", res.Outputs, err)
	}
}
