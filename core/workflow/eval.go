package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const maxExprDepth = 64

var errExprTooDeep = errors.New("expression nested too deeply")

// Eval evaluates a simple expression against a context map.
// Supported:
//   - literals: numbers, booleans, null, quoted strings
//   - dot paths: foo.bar, items.0 (walks nested maps and lists)
//   - functions: length(x), first(x)
//   - comparisons: a == b, a != b, a > b, a < b, a >= b, a <= b
//   - logical: a && b, a || b, unary !, parentheses
//
// Nothing in the expression is ever executed as code.
func Eval(expr string, ctx map[string]any) (any, error) {
	return evalExpr(expr, ctx, 0)
}

// EvalBool evaluates expr and reports its truthiness.
func EvalBool(expr string, ctx map[string]any) (bool, error) {
	val, err := Eval(expr, ctx)
	if err != nil {
		return false, err
	}
	return truthy(val), nil
}

func evalExpr(expr string, ctx map[string]any, depth int) (any, error) {
	if depth > maxExprDepth {
		return nil, errExprTooDeep
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("empty expression")
	}

	// lowest precedence first
	for _, op := range []string{"||", "&&"} {
		if parts := splitOnce(expr, op); len(parts) == 2 {
			left, err := evalExpr(parts[0], ctx, depth+1)
			if err != nil {
				return nil, err
			}
			if op == "||" && truthy(left) {
				return true, nil
			}
			if op == "&&" && !truthy(left) {
				return false, nil
			}
			right, err := evalExpr(parts[1], ctx, depth+1)
			if err != nil {
				return nil, err
			}
			return truthy(right), nil
		}
	}

	// comparisons
	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if parts := splitOnce(expr, op); len(parts) == 2 {
			left, err := evalExpr(parts[0], ctx, depth+1)
			if err != nil {
				return nil, err
			}
			right, err := evalExpr(parts[1], ctx, depth+1)
			if err != nil {
				return nil, err
			}
			return compare(left, right, op), nil
		}
	}

	// Unary not
	if strings.HasPrefix(expr, "!") {
		val, err := evalExpr(expr[1:], ctx, depth+1)
		if err != nil {
			return nil, err
		}
		return !truthy(val), nil
	}

	if strings.HasPrefix(expr, "(") && closingParen(expr, 0) == len(expr)-1 {
		return evalExpr(expr[1:len(expr)-1], ctx, depth+1)
	}

	// function calls
	if arg, ok := callArg(expr, "length"); ok {
		val, err := evalExpr(arg, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		switch v := val.(type) {
		case string:
			return len(v), nil
		case map[string]any:
			return len(v), nil
		}
		if list, ok := toList(val); ok {
			return len(list), nil
		}
		return 0, nil
	}
	if arg, ok := callArg(expr, "first"); ok {
		val, err := evalExpr(arg, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		if list, ok := toList(val); ok && len(list) > 0 {
			return list[0], nil
		}
		return nil, nil
	}

	// literal string
	if len(expr) >= 2 && (expr[0] == '\'' || expr[0] == '"') && expr[len(expr)-1] == expr[0] {
		return expr[1 : len(expr)-1], nil
	}

	switch expr {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	}

	// literal number
	if n, err := strconv.ParseFloat(expr, 64); err == nil {
		return n, nil
	}

	if !validPath(expr) {
		return nil, fmt.Errorf("unsupported expression %q", expr)
	}
	val, _ := lookupPath(ctx, expr)
	return val, nil
}

// splitOnce splits on the first occurrence of op outside quotes and
// parentheses.
func splitOnce(expr, op string) []string {
	idx := indexOutside(expr, op)
	if idx < 0 {
		return nil
	}
	return []string{strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+len(op):])}
}

func indexOutside(expr, op string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 || !strings.HasPrefix(expr[i:], op) {
			continue
		}
		// ">=" and "<=" are not ">" / "<"
		if (op == ">" || op == "<") && i+1 < len(expr) && expr[i+1] == '=' {
			continue
		}
		return i
	}
	return -1
}

func closingParen(expr string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func callArg(expr, name string) (string, bool) {
	prefix := name + "("
	if !strings.HasPrefix(expr, prefix) || !strings.HasSuffix(expr, ")") {
		return "", false
	}
	if closingParen(expr, len(name)) != len(expr)-1 {
		return "", false
	}
	return expr[len(prefix) : len(expr)-1], true
}

func validPath(expr string) bool {
	for _, r := range expr {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-' || r == '$':
		default:
			return false
		}
	}
	return true
}

func compare(a, b any, op string) bool {
	if af, ok := toNumber(a); ok && isNumeric(a) {
		if bf, ok := toNumber(b); ok {
			return cmpFloat(af, bf, op)
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return cmpString(as, bs, op)
		}
		if isNumeric(b) {
			if af, ok := toNumber(as); ok {
				bf, _ := toNumber(b)
				return cmpFloat(af, bf, op)
			}
		}
	}
	switch op {
	case "==":
		return strictEqual(a, b)
	case "!=":
		return !strictEqual(a, b)
	default:
		return false
	}
}

func cmpFloat(a, b float64, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	default:
		return false
	}
}

func cmpString(a, b, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	default:
		return false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := toNumber(v); ok && isNumeric(v) {
		return n != 0
	}
	return true
}
