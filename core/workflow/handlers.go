package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cordum/mediaflow/core/infra/secrets"
)

const (
	defaultExportFormat = "txt"
	defaultWebhookEvent = "workflow.step"
)

func (e *Executor) transcribe(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	path := stringValue(cfg, "filePath")
	if _, set := cfg["filePath"]; !set {
		path = ResolveTemplate("{{filePath}}", sc.Variables)
	}
	if path == "" || unresolved(path) {
		return StepResult{}, errors.New("transcribe: filePath required")
	}
	t, err := e.collab.Transcriber.Transcribe(ctx, path, mapValue(cfg, "options"))
	if err != nil {
		return StepResult{}, fmt.Errorf("transcribe %s: %w", path, err)
	}
	if t.FilePath == "" {
		t.FilePath = path
	}
	return StepResult{
		Success:        true,
		FilesProcessed: 1,
		Outputs: map[string]any{
			"transcriptionId": t.ID,
			"transcription":   toMap(t),
		},
	}, nil
}

func (e *Executor) batchProcess(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	files := stringList(cfg["files"])
	if len(files) == 0 {
		if v, ok := lookupPath(sc.Variables, "files"); ok {
			files = stringList(v)
		}
	}
	if len(files) == 0 {
		return StepResult{}, errors.New("batch_process: files required")
	}
	poll, ok, err := durationValue(cfg["pollInterval"])
	if err != nil {
		return StepResult{}, fmt.Errorf("batch_process pollInterval: %w", err)
	}
	if !ok || poll <= 0 {
		poll = e.opts.BatchPollInterval
	}
	timeout, ok, err := durationValue(cfg["timeout"])
	if err != nil {
		return StepResult{}, fmt.Errorf("batch_process timeout: %w", err)
	}
	if !ok || timeout <= 0 {
		timeout = e.opts.BatchTimeout
	}

	batchID, err := e.collab.Batch.StartBatch(ctx, files, sc.OwnerID, mapValue(cfg, "options"))
	if err != nil {
		return StepResult{}, fmt.Errorf("batch_process start: %w", err)
	}
	deadline := e.now().Add(timeout)
	for {
		status, err := e.collab.Batch.GetBatchStatus(ctx, batchID)
		if err != nil {
			return StepResult{}, fmt.Errorf("batch_process status %s: %w", batchID, err)
		}
		if status.Terminal() {
			if status.Status != "completed" {
				return StepResult{}, fmt.Errorf("batch_process: batch %s %s (%d/%d files failed)", batchID, status.Status, status.FailedFiles, status.TotalFiles)
			}
			results := make([]any, 0, len(status.Results))
			for _, r := range status.Results {
				results = append(results, cloneMap(r))
			}
			return StepResult{
				Success:        true,
				FilesProcessed: status.ProcessedFiles,
				Outputs: map[string]any{
					"batchId":        batchID,
					"batchStatus":    status.Status,
					"totalFiles":     status.TotalFiles,
					"processedFiles": status.ProcessedFiles,
					"failedFiles":    status.FailedFiles,
					"batchResults":   results,
				},
			}, nil
		}
		if !e.now().Before(deadline) {
			return StepResult{}, fmt.Errorf("batch_process: batch %s not finished after %s: %w", batchID, timeout, ErrStepTimeout)
		}
		if err := e.sleep(ctx, poll); err != nil {
			return StepResult{}, err
		}
	}
}

func (e *Executor) classify(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	text, err := e.classifyContent(ctx, cfg, sc)
	if err != nil {
		return StepResult{}, err
	}
	var rules []ClassificationRule
	if raw, ok := cfg["rules"]; ok {
		if err := decodeInto(raw, &rules); err != nil {
			return StepResult{}, fmt.Errorf("classify rules: %w", err)
		}
	}
	if threshold, ok := toNumber(cfg["threshold"]); ok && isNumeric(cfg["threshold"]) {
		for i := range rules {
			if rules[i].Threshold == nil {
				t := threshold
				rules[i].Threshold = &t
			}
		}
	}
	c := e.classifier.Classify(text, rules)
	tags := make([]any, len(c.Tags))
	for i, tag := range c.Tags {
		tags[i] = tag
	}
	details, _ := plain(c.Details).([]any)
	return StepResult{
		Success: true,
		Outputs: map[string]any{
			"classification":        c.Category,
			"confidence":            c.Confidence,
			"tags":                  tags,
			"classificationRule":    c.Rule,
			"classificationDetails": details,
		},
	}, nil
}

// classifyContent picks explicit content, then a named step's transcription,
// then the transcription in context, then a file read.
func (e *Executor) classifyContent(ctx context.Context, cfg map[string]any, sc StepContext) (string, error) {
	if s, ok := cfg["content"].(string); ok && s != "" && !unresolved(s) {
		return s, nil
	}
	if name := stringValue(cfg, "sourceStep"); name != "" {
		if text, ok := lookupPath(map[string]any{"prev": sc.Previous[name]}, "prev.transcription.text"); ok {
			return stringify(text), nil
		}
		return "", fmt.Errorf("classify: step %q produced no transcription", name)
	}
	if text, ok := lookupPath(sc.Variables, "transcription.text"); ok && text != nil {
		return stringify(text), nil
	}
	path := stringValue(cfg, "filePath")
	if path == "" {
		if v, ok := lookupPath(sc.Variables, "filePath"); ok {
			path = strings.TrimSpace(stringify(v))
		}
	}
	if path == "" || unresolved(path) {
		return "", errors.New("classify: no content, transcription or filePath available")
	}
	data, err := e.collab.Files.ReadFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("classify read %s: %w", path, err)
	}
	return string(data), nil
}

func (e *Executor) route(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	var rules []RouteRule
	if raw, ok := cfg["rules"]; ok {
		if err := decodeInto(raw, &rules); err != nil {
			return StepResult{}, fmt.Errorf("route rules: %w", err)
		}
	}
	vars := templateVars(sc)
	r := e.router.DetermineRoute(vars, rules)
	routeCfg, _ := ResolveValue(r.Config, vars).(map[string]any)
	if routeCfg == nil {
		routeCfg = map[string]any{}
	}
	out := map[string]any{
		"route":       r.Name,
		"routeAction": r.Action,
		"routeConfig": routeCfg,
		"routeIndex":  r.Index,
	}
	switch r.Action {
	case "webhook":
		delivery, err := e.deliver(ctx, r.Config, routeCfg, sc)
		if err != nil {
			return StepResult{}, fmt.Errorf("route %s: %w", r.Name, err)
		}
		out["delivery"] = delivery
	case "export":
		t, err := transcriptionFrom(routeCfg, sc)
		if err != nil {
			return StepResult{}, fmt.Errorf("route %s: %w", r.Name, err)
		}
		res, err := e.doExport(ctx, t, routeCfg)
		if err != nil {
			return StepResult{}, fmt.Errorf("route %s: %w", r.Name, err)
		}
		for k, v := range res {
			out[k] = v
		}
	}
	return StepResult{Success: true, Outputs: out}, nil
}

func (e *Executor) export(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	t, err := transcriptionFrom(cfg, sc)
	if err != nil {
		return StepResult{}, err
	}
	out, err := e.doExport(ctx, t, cfg)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Success: true, FilesProcessed: 1, Outputs: out}, nil
}

func (e *Executor) doExport(ctx context.Context, t Transcription, cfg map[string]any) (map[string]any, error) {
	format := strings.ToLower(stringValue(cfg, "format"))
	if format == "" {
		format = defaultExportFormat
	}
	dest := mapValue(cfg, "destination")
	if dest == nil {
		dest = map[string]any{}
	}
	res, err := e.collab.Exporter.Export(ctx, t, format, dest)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}
	if res.Format == "" {
		res.Format = format
	}
	return map[string]any{
		"exportPath":   res.FilePath,
		"exportSize":   res.Size,
		"exportFormat": res.Format,
	}, nil
}

// transcriptionFrom reads the transcription of sourceStep, or the one in context.
func transcriptionFrom(cfg map[string]any, sc StepContext) (Transcription, error) {
	var raw any
	var ok bool
	if name := stringValue(cfg, "sourceStep"); name != "" {
		raw, ok = sc.Previous[name]["transcription"]
	} else {
		raw, ok = lookupPath(sc.Variables, "transcription")
	}
	if !ok || raw == nil {
		return Transcription{}, errors.New("export: no transcription in context")
	}
	var t Transcription
	if err := decodeInto(raw, &t); err != nil {
		return Transcription{}, fmt.Errorf("export: transcription: %w", err)
	}
	return t, nil
}

func (e *Executor) webhook(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	delivery, err := e.deliver(ctx, step.Config, cfg, sc)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Success: true, Outputs: map[string]any{"webhook": delivery}}, nil
}

// deliver posts to cfg's url. raw is the same config before templating;
// secret references are resolved from it so only the definition author can
// name a secret. Records and errors carry the unresolved url.
func (e *Executor) deliver(ctx context.Context, raw, cfg map[string]any, sc StepContext) (map[string]any, error) {
	url := stringValue(cfg, "url")
	if url == "" || unresolved(url) {
		return nil, errors.New("webhook: url required")
	}
	sendURL := url
	if rawURL, ok := raw["url"].(string); ok && secrets.IsRef(rawURL) {
		resolved, err := secrets.ResolveString(rawURL, e.collab.Secrets)
		if err != nil {
			return nil, fmt.Errorf("webhook url: %w", err)
		}
		sendURL = resolved
	} else if secrets.IsRef(url) {
		return nil, fmt.Errorf("webhook: url %q came from variables and cannot name a secret", url)
	}
	var payload map[string]any
	if rawPayload, ok := raw["payload"]; ok && rawPayload != nil {
		resolved, err := resolveAuthored(rawPayload, templateVars(sc), e.collab.Secrets)
		if err != nil {
			return nil, fmt.Errorf("webhook payload: %w", err)
		}
		payload, _ = resolved.(map[string]any)
	}
	if payload == nil {
		payload = map[string]any{
			"workflowId":  sc.WorkflowID,
			"executionId": sc.ExecutionID,
			"stepIndex":   sc.StepIndex,
		}
	}
	event := stringValue(cfg, "event")
	if event == "" {
		event = defaultWebhookEvent
	}
	timeout, ok, err := durationValue(cfg["timeout"])
	if err != nil {
		return nil, fmt.Errorf("webhook timeout: %w", err)
	}
	if !ok || timeout <= 0 {
		timeout = e.opts.WebhookTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := e.collab.Notifier.Deliver(dctx, NotificationTarget{Type: "webhook", Target: sendURL}, event, payload)
	if err != nil {
		return nil, fmt.Errorf("webhook %s: %w", url, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("webhook %s: delivery failed (status %d): %s", url, res.StatusCode, res.Error)
	}
	return map[string]any{
		"url":        url,
		"event":      event,
		"delivered":  true,
		"statusCode": res.StatusCode,
	}, nil
}

func (e *Executor) condition(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	var conds []Condition
	if raw, ok := cfg["conditions"]; ok {
		if err := decodeInto(raw, &conds); err != nil {
			return StepResult{}, fmt.Errorf("condition: %w", err)
		}
	}
	held := e.rules.Evaluate(conds, templateVars(sc))
	branch, key := "false", "falseAction"
	if held {
		branch, key = "true", "trueAction"
	}
	out := map[string]any{}
	res := StepResult{Success: true, Outputs: out}
	if raw, ok := cfg[key]; ok && raw != nil {
		if sc.depth+1 > e.opts.MaxActionDepth {
			return StepResult{}, fmt.Errorf("condition: nested actions deeper than %d", e.opts.MaxActionDepth)
		}
		var action StepDef
		if err := decodeInto(raw, &action); err != nil {
			return StepResult{}, fmt.Errorf("condition %s: %w", key, err)
		}
		if action.Name == "" {
			action.Name = step.Name + "." + branch
		}
		nested := sc
		nested.depth++
		inner, err := e.Execute(ctx, action, nested)
		if err != nil {
			return StepResult{}, fmt.Errorf("condition %s %q: %w", key, action.Name, err)
		}
		for k, v := range inner.Outputs {
			out[k] = v
		}
		res.Success = inner.Success
		res.FilesProcessed = inner.FilesProcessed
		out["action"] = action.Name
	}
	out["conditionResult"] = held
	out["branch"] = branch
	return res, nil
}

func (e *Executor) transform(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	target, val, err := transform(step.Config, cfg, templateVars(sc))
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Success: true, Outputs: map[string]any{target: val}}, nil
}

func (e *Executor) delay(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	raw, ok := cfg["duration"]
	if !ok {
		raw = cfg["delay"]
	}
	d, ok, err := durationValue(raw)
	if err != nil {
		return StepResult{}, fmt.Errorf("delay: %w", err)
	}
	if !ok {
		return StepResult{}, errors.New("delay: duration required")
	}
	if err := e.sleep(ctx, d); err != nil {
		return StepResult{}, fmt.Errorf("delay interrupted: %w", err)
	}
	return StepResult{Success: true, Outputs: map[string]any{"delayedMs": d.Milliseconds()}}, nil
}

// custom echoes its resolved parameters. Nothing from config is executed.
func (e *Executor) custom(ctx context.Context, step StepDef, cfg map[string]any, sc StepContext) (StepResult, error) {
	return StepResult{Success: true, Outputs: map[string]any{"custom": cloneMap(cfg)}}, nil
}
