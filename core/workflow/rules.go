package workflow

import (
	"regexp"
	"strings"
	"sync"
)

// maxConditionDepth bounds condition tree recursion; deeper nodes evaluate false.
const maxConditionDepth = 32

// RulesEngine evaluates condition trees against a variable context.
type RulesEngine struct {
	mu      sync.Mutex
	regexes map[string]*regexp.Regexp
}

func NewRulesEngine() *RulesEngine {
	return &RulesEngine{regexes: make(map[string]*regexp.Regexp)}
}

var defaultRules = NewRulesEngine()

// Evaluate reports whether every top-level condition holds. An empty list holds.
func Evaluate(conditions []Condition, vars map[string]any) bool {
	return defaultRules.Evaluate(conditions, vars)
}

// Evaluate reports whether every top-level condition holds. An empty list holds.
func (r *RulesEngine) Evaluate(conditions []Condition, vars map[string]any) bool {
	return r.all(conditions, vars, 1)
}

func (r *RulesEngine) all(conditions []Condition, vars map[string]any, depth int) bool {
	for i := range conditions {
		if !r.eval(&conditions[i], vars, depth) {
			return false
		}
	}
	return true
}

func (r *RulesEngine) eval(c *Condition, vars map[string]any, depth int) bool {
	if depth > maxConditionDepth {
		return false
	}
	if len(c.NestedConditions) > 0 {
		if strings.EqualFold(string(c.LogicOperator), string(LogicOr)) {
			for i := range c.NestedConditions {
				if r.eval(&c.NestedConditions[i], vars, depth+1) {
					return true
				}
			}
			return false
		}
		return r.all(c.NestedConditions, vars, depth+1)
	}
	field, found := lookupPath(vars, c.Field)
	return r.apply(c.Operator, field, found, c.Value)
}

func (r *RulesEngine) apply(op Operator, field any, found bool, value any) bool {
	switch op {
	case OpEquals:
		return found && strictEqual(field, value)
	case OpNotEquals:
		return !found || !strictEqual(field, value)
	case OpContains, OpNotContains:
		s, ok := field.(string)
		if !ok {
			return false
		}
		has := strings.Contains(s, stringify(value))
		if op == OpContains {
			return has
		}
		return !has
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual:
		a, ok := toNumber(field)
		if !ok {
			return false
		}
		b, ok := toNumber(value)
		if !ok {
			return false
		}
		switch op {
		case OpGreaterThan:
			return a > b
		case OpLessThan:
			return a < b
		case OpGreaterEqual:
			return a >= b
		default:
			return a <= b
		}
	case OpIn, OpNotIn:
		list, ok := toList(value)
		if !ok {
			return false
		}
		member := false
		if found {
			for _, item := range list {
				if strictEqual(field, item) {
					member = true
					break
				}
			}
		}
		if op == OpIn {
			return member
		}
		return !member
	case OpExists:
		return found && field != nil
	case OpNotExists:
		return !found || field == nil
	case OpRegex:
		pattern, ok := value.(string)
		if !ok {
			return false
		}
		re := r.compile(pattern)
		if re == nil {
			return false
		}
		return re.MatchString(stringify(field))
	}
	return false
}

// compile caches compiled patterns; malformed patterns cache as nil.
func (r *RulesEngine) compile(pattern string) *regexp.Regexp {
	r.mu.Lock()
	defer r.mu.Unlock()
	if re, ok := r.regexes[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	if len(r.regexes) > 1024 {
		r.regexes = make(map[string]*regexp.Regexp)
	}
	r.regexes[pattern] = re
	return re
}
