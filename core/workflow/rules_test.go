package workflow

import (
	"encoding/json"
	"testing"
)

func TestEvaluateEmptyConditionsHold(t *testing.T) {
	if !Evaluate(nil, nil) {
		t.Fatalf("expected nil conditions to hold")
	}
	if !NewRulesEngine().Evaluate([]Condition{}, map[string]any{"x": 1}) {
		t.Fatalf("expected empty conditions to hold")
	}
}

func TestEvaluateOperators(t *testing.T) {
	vars := map[string]any{
		"status": "ready",
		"count":  3,
		"score":  "0.75",
		"tags":   []any{"a", "b"},
		"meta": map[string]any{
			"lang":  "en",
			"empty": nil,
			"items": []any{map[string]any{"id": "x1"}},
		},
		"title": "Sunday Psalm 23",
	}
	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals string", Condition{Field: "status", Operator: OpEquals, Value: "ready"}, true},
		{"equals numeric across types", Condition{Field: "count", Operator: OpEquals, Value: 3.0}, true},
		{"equals strict type", Condition{Field: "count", Operator: OpEquals, Value: "3"}, false},
		{"equals missing", Condition{Field: "nope", Operator: OpEquals, Value: nil}, false},
		{"not equals", Condition{Field: "status", Operator: OpNotEquals, Value: "done"}, true},
		{"not equals missing", Condition{Field: "nope", Operator: OpNotEquals, Value: "x"}, true},
		{"equals composite", Condition{Field: "tags", Operator: OpEquals, Value: []string{"a", "b"}}, true},
		{"contains", Condition{Field: "title", Operator: OpContains, Value: "Psalm"}, true},
		{"contains non string field", Condition{Field: "count", Operator: OpContains, Value: "3"}, false},
		{"not contains", Condition{Field: "title", Operator: OpNotContains, Value: "Hymn"}, true},
		{"not contains non string", Condition{Field: "tags", Operator: OpNotContains, Value: "z"}, false},
		{"greater than coerces", Condition{Field: "score", Operator: OpGreaterThan, Value: 0.5}, true},
		{"less than", Condition{Field: "count", Operator: OpLessThan, Value: "10"}, true},
		{"greater equal", Condition{Field: "count", Operator: OpGreaterEqual, Value: 3}, true},
		{"less equal false", Condition{Field: "count", Operator: OpLessEqual, Value: 2}, false},
		{"ordering non numeric", Condition{Field: "status", Operator: OpGreaterThan, Value: 1}, false},
		{"in", Condition{Field: "status", Operator: OpIn, Value: []any{"new", "ready"}}, true},
		{"in non list", Condition{Field: "status", Operator: OpIn, Value: "ready"}, false},
		{"not in", Condition{Field: "status", Operator: OpNotIn, Value: []string{"new"}}, true},
		{"not in non list", Condition{Field: "status", Operator: OpNotIn, Value: "new"}, false},
		{"exists", Condition{Field: "meta.lang", Operator: OpExists}, true},
		{"exists nil", Condition{Field: "meta.empty", Operator: OpExists}, false},
		{"not exists missing intermediate", Condition{Field: "missing.deep.path", Operator: OpNotExists}, true},
		{"path into list", Condition{Field: "meta.items.0.id", Operator: OpEquals, Value: "x1"}, true},
		{"regex", Condition{Field: "title", Operator: OpRegex, Value: `(?i)psalm\s+\d+`}, true},
		{"regex malformed fails closed", Condition{Field: "title", Operator: OpRegex, Value: `([`}, false},
		{"regex non string pattern", Condition{Field: "title", Operator: OpRegex, Value: 5}, false},
		{"unknown operator", Condition{Field: "status", Operator: "approximately", Value: "ready"}, false},
	}
	engine := NewRulesEngine()
	for _, tc := range cases {
		if got := engine.Evaluate([]Condition{tc.cond}, vars); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestEvaluateImplicitAndAcrossTopLevel(t *testing.T) {
	vars := map[string]any{"a": 1, "b": 2}
	conds := []Condition{
		{Field: "a", Operator: OpEquals, Value: 1},
		{Field: "b", Operator: OpEquals, Value: 3},
	}
	if Evaluate(conds, vars) {
		t.Fatalf("expected top-level list to require every condition")
	}
}

func TestEvaluateNestedLogic(t *testing.T) {
	vars := map[string]any{"kind": "sermon", "minutes": 45}
	or := Condition{
		Field:         "ignored",
		Operator:      OpEquals,
		Value:         "never",
		LogicOperator: LogicOr,
		NestedConditions: []Condition{
			{Field: "kind", Operator: OpEquals, Value: "interview"},
			{Field: "minutes", Operator: OpGreaterThan, Value: 30},
		},
	}
	if !Evaluate([]Condition{or}, vars) {
		t.Fatalf("expected or group to hold and parent field to be ignored")
	}
	and := or
	and.LogicOperator = ""
	if Evaluate([]Condition{and}, vars) {
		t.Fatalf("expected default and group to fail")
	}
	upper := or
	upper.LogicOperator = "OR"
	if !Evaluate([]Condition{upper}, vars) {
		t.Fatalf("expected logic operator to be case-insensitive")
	}
}

func TestEvaluateDepthBound(t *testing.T) {
	leaf := Condition{Field: "x", Operator: OpEquals, Value: 1}
	cond := leaf
	for i := 0; i < maxConditionDepth+4; i++ {
		cond = Condition{LogicOperator: LogicAnd, NestedConditions: []Condition{cond}}
	}
	if Evaluate([]Condition{cond}, map[string]any{"x": 1}) {
		t.Fatalf("expected over-deep tree to fail closed")
	}
}

func TestConditionDecodesFromJSON(t *testing.T) {
	raw := `[{"field":"lang","operator":"in","value":["en","de"]},{"logicOperator":"or","nestedConditions":[{"field":"size","operator":"less_than","value":100},{"field":"force","operator":"equals","value":true}]}]`
	var conds []Condition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !Evaluate(conds, map[string]any{"lang": "de", "size": 500.0, "force": true}) {
		t.Fatalf("expected decoded conditions to hold")
	}
	if Evaluate(conds, map[string]any{"lang": "fr", "size": 1.0}) {
		t.Fatalf("expected lang filter to reject")
	}
}
