package workflow

import (
	"regexp"
	"strings"

	"github.com/cordum/mediaflow/core/infra/secrets"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// ResolveTemplate substitutes {{path}} placeholders in one pass. Unknown
// paths stay verbatim and substituted text is never rescanned.
func ResolveTemplate(s string, vars map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		path := placeholderRe.FindStringSubmatch(m)[1]
		val, ok := lookupPath(vars, path)
		if !ok {
			return m
		}
		return stringify(val)
	})
}

// ResolveString is ResolveTemplate except that a string consisting of exactly
// one placeholder resolves to the typed value.
func ResolveString(s string, vars map[string]any) any {
	trimmed := strings.TrimSpace(s)
	if loc := placeholderRe.FindStringSubmatchIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		if val, ok := lookupPath(vars, trimmed[loc[2]:loc[3]]); ok {
			return cloneValue(val)
		}
		return s
	}
	return ResolveTemplate(s, vars)
}

// ResolveValue resolves templates inside strings, maps and lists.
func ResolveValue(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		return ResolveString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ResolveValue(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ResolveValue(item, vars)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ResolveString(item, vars)
		}
		return out
	}
	return v
}

// resolveAuthored is ResolveValue for values leaving the engine. secret://
// references written in the definition itself are replaced by their secret;
// text substituted from variables is never read as a reference.
func resolveAuthored(v any, vars map[string]any, lookup secrets.Lookup) (any, error) {
	switch t := v.(type) {
	case string:
		if secrets.IsRef(t) {
			return secrets.ResolveString(t, lookup)
		}
		return ResolveString(t, vars), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			r, err := resolveAuthored(item, vars, lookup)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := resolveAuthored(item, vars, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []string:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = item
		}
		return resolveAuthored(items, vars, lookup)
	}
	return ResolveValue(v, vars), nil
}

// unresolved reports whether s still carries a placeholder.
func unresolved(s string) bool {
	return placeholderRe.MatchString(s)
}
