package workflow

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/cordum/mediaflow/core/infra/schema"
	"github.com/cordum/mediaflow/core/infra/secrets"
	"gopkg.in/yaml.v3"
)

const (
	definitionSchemaFile = "schema/definition.schema.json"
	longWorkflowSteps    = 10
)

//go:embed schema/*.json
var definitionSchemaFS embed.FS

// ValidationResult reports blocking errors separately from advisory
// warnings and suggestions.
type ValidationResult struct {
	IsValid     bool     `json:"isValid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// Err returns a *ValidationError when the result is invalid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Errors: append([]string(nil), r.Errors...)}
}

var knownTransformOps = map[string]bool{"format": true, "extract": true, "calculate": true, "combine": true}

// ValidateDefinition checks a definition. Only missing names, missing steps
// and steps without a name or type make it invalid; everything else is
// advisory.
func ValidateDefinition(def Definition) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}, Suggestions: []string{}}
	if strings.TrimSpace(def.Name) == "" {
		res.Errors = append(res.Errors, "name is required")
	}
	if len(def.Steps) == 0 {
		res.Errors = append(res.Errors, "at least one step is required")
	}

	seen := make(map[string]int, len(def.Steps))
	for i, step := range def.Steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("step %d: name is required", i))
		} else if prev, dup := seen[name]; dup {
			res.Warnings = append(res.Warnings, fmt.Sprintf("step %d: name %q already used by step %d", i, name, prev))
		} else {
			seen[name] = i
		}
		if strings.TrimSpace(string(step.Type)) == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("step %d: type is required", i))
			continue
		}
		if !step.Type.Known() {
			res.Warnings = append(res.Warnings, fmt.Sprintf("step %d: unknown step type %q", i, step.Type))
			continue
		}
		res.Warnings = append(res.Warnings, stepWarnings(i, step)...)
		res.Warnings = append(res.Warnings, conditionWarnings(fmt.Sprintf("step %d conditions", i), step.Conditions, 1)...)
	}

	res.Warnings = append(res.Warnings, conditionWarnings("workflow conditions", def.Conditions, 1)...)
	for i, trig := range def.Triggers {
		if !knownTriggers[trig.Type] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("trigger %d: unknown trigger type %q", i, trig.Type))
		}
		if trig.Type == TriggerSchedule {
			if _, ok, err := durationValue(trig.Config["interval"]); err != nil || !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("trigger %d: schedule needs an interval such as \"15m\"", i))
			}
		}
		res.Warnings = append(res.Warnings, conditionWarnings(fmt.Sprintf("trigger %d conditions", i), trig.Conditions, 1)...)
	}
	for i, n := range def.Notifications {
		if strings.TrimSpace(n.Target) == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("notification %d: target is empty", i))
		}
		if n.Type != "" && n.Type != "webhook" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("notification %d: type %q is delivered as a webhook", i, n.Type))
		}
	}

	if len(def.Steps) > longWorkflowSteps {
		res.Suggestions = append(res.Suggestions, fmt.Sprintf("consider splitting workflows longer than %d steps", longWorkflowSteps))
	}
	if len(def.Triggers) == 0 {
		res.Suggestions = append(res.Suggestions, "add a trigger so the workflow can start without a manual call")
	}
	if len(def.Notifications) == 0 {
		res.Suggestions = append(res.Suggestions, "add a notification target to hear about failed executions")
	}
	for i, step := range def.Steps {
		if (step.Type == StepTypeWebhook || step.Type == StepTypeBatchProcess) && !step.ContinueOnError {
			res.Suggestions = append(res.Suggestions, fmt.Sprintf("step %d: external %s calls can set continueOnError", i, step.Type))
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func stepWarnings(i int, step StepDef) []string {
	var out []string
	cfg := step.Config
	switch step.Type {
	case StepTypeDelay:
		raw, ok := cfg["duration"]
		if !ok {
			raw = cfg["delay"]
		}
		if s, isString := raw.(string); isString && strings.Contains(s, "{{") {
			break
		}
		if _, ok, err := durationValue(raw); err != nil || !ok {
			out = append(out, fmt.Sprintf("step %d: delay duration must look like 10ms, 5s, 2m, 1h or 1d", i))
		}
	case StepTypeCondition:
		var conds []Condition
		if err := decodeInto(cfg["conditions"], &conds); err != nil || len(conds) == 0 {
			out = append(out, fmt.Sprintf("step %d: condition step has no conditions and always takes the true branch", i))
		}
		out = append(out, conditionWarnings(fmt.Sprintf("step %d config", i), conds, 1)...)
		if cfg["trueAction"] == nil && cfg["falseAction"] == nil {
			out = append(out, fmt.Sprintf("step %d: condition step has neither trueAction nor falseAction", i))
		}
	case StepTypeRoute:
		if rules, ok := toList(cfg["rules"]); !ok || len(rules) == 0 {
			out = append(out, fmt.Sprintf("step %d: route step has no rules and always takes the default route", i))
		}
	case StepTypeTransform:
		if op := stringValue(cfg, "operation"); !knownTransformOps[op] {
			out = append(out, fmt.Sprintf("step %d: unsupported transform operation %q", i, op))
		}
	case StepTypeWebhook:
		if stringValue(cfg, "url") == "" {
			out = append(out, fmt.Sprintf("step %d: webhook step has no url", i))
		}
	case StepTypeBatchProcess:
		if _, ok := cfg["files"]; !ok {
			out = append(out, fmt.Sprintf("step %d: batch_process reads files from the trigger data", i))
		}
	}
	switch step.Type {
	case StepTypeWebhook, StepTypeRoute, StepTypeCondition:
	default:
		if secrets.ContainsSecretRefs(cfg) {
			out = append(out, fmt.Sprintf("step %d: secret:// references are only resolved when a webhook is delivered", i))
		}
	}
	return out
}

func conditionWarnings(where string, conds []Condition, depth int) []string {
	var out []string
	if depth > maxConditionDepth {
		return []string{fmt.Sprintf("%s: nested deeper than %d levels", where, maxConditionDepth)}
	}
	for _, c := range conds {
		if len(c.NestedConditions) > 0 {
			out = append(out, conditionWarnings(where, c.NestedConditions, depth+1)...)
			continue
		}
		if !knownOperators[c.Operator] {
			out = append(out, fmt.Sprintf("%s: unknown operator %q on field %q", where, c.Operator, c.Field))
		}
		if c.Field == "" {
			out = append(out, fmt.Sprintf("%s: condition without a field", where))
		}
	}
	return out
}

// ParseDefinition decodes a JSON or YAML definition document, checks its
// shape against the definition schema and then validates it.
func ParseDefinition(data []byte) (Definition, ValidationResult, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Definition{}, ValidationResult{}, fmt.Errorf("parse definition: %w", err)
	}
	raw, err := definitionSchemaFS.ReadFile(definitionSchemaFile)
	if err != nil {
		return Definition{}, ValidationResult{}, fmt.Errorf("load definition schema: %w", err)
	}
	if err := schema.ValidateSchema("workflow-definition", raw, doc); err != nil {
		var schemaErr *schema.Error
		if errors.As(err, &schemaErr) {
			return Definition{}, ValidationResult{}, &ValidationError{Errors: schemaErr.Issues}
		}
		return Definition{}, ValidationResult{}, err
	}
	var def Definition
	if err := decodeInto(doc, &def); err != nil {
		return Definition{}, ValidationResult{}, fmt.Errorf("decode definition: %w", err)
	}
	res := ValidateDefinition(def)
	return def, res, res.Err()
}
