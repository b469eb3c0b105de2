// Package secrets detects and resolves secret:// references in workflow
// configuration. References are resolved only at the edge that needs the
// value, so stored definitions and execution history keep the reference.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

const (
	secretPrefix = "secret://"
	envPrefix    = "MEDIAFLOW_SECRET_"
)

// Lookup returns the value for a secret name.
type Lookup func(name string) (string, bool)

// EnvLookup resolves secret://NAME from the MEDIAFLOW_SECRET_NAME environment
// variable only; the rest of the process environment is never reachable.
func EnvLookup(name string) (string, bool) {
	key := strings.ToUpper(strings.NewReplacer("-", "_", "/", "_", ".", "_").Replace(name))
	if key == "" {
		return "", false
	}
	return os.LookupEnv(envPrefix + key)
}

// IsRef reports whether s is a secret reference.
func IsRef(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), secretPrefix)
}

// ContainsSecretRefs returns true if any string value contains a secret reference.
func ContainsSecretRefs(value any) bool {
	_, found := walk(value, func(string) (string, error) { return "", nil })
	return found
}

// Resolve returns a copy of value with every reference replaced by its
// secret. A reference lookup cannot satisfy is an error.
func Resolve(value any, lookup Lookup) (any, error) {
	if lookup == nil {
		lookup = EnvLookup
	}
	var missing []string
	out, _ := walk(value, func(ref string) (string, error) {
		name := strings.TrimPrefix(strings.TrimSpace(ref), secretPrefix)
		v, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
			return ref, nil
		}
		return v, nil
	})
	if len(missing) > 0 {
		return value, fmt.Errorf("unresolved secret references: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ResolveString is Resolve for a single string.
func ResolveString(s string, lookup Lookup) (string, error) {
	out, err := Resolve(s, lookup)
	if err != nil {
		return s, err
	}
	return out.(string), nil
}

func walk(value any, replace func(ref string) (string, error)) (any, bool) {
	switch v := value.(type) {
	case nil:
		return v, false
	case string:
		if IsRef(v) {
			out, _ := replace(v)
			return out, true
		}
		return v, false
	case map[string]any:
		changed := false
		out := make(map[string]any, len(v))
		for k, child := range v {
			red, childChanged := walk(child, replace)
			if childChanged {
				changed = true
			}
			out[k] = red
		}
		return out, changed
	case map[string]string:
		changed := false
		out := make(map[string]any, len(v))
		for k, child := range v {
			red, childChanged := walk(child, replace)
			if childChanged {
				changed = true
			}
			out[k] = red
		}
		return out, changed
	case []any:
		changed := false
		out := make([]any, len(v))
		for i, child := range v {
			red, childChanged := walk(child, replace)
			if childChanged {
				changed = true
			}
			out[i] = red
		}
		return out, changed
	case []string:
		changed := false
		out := make([]any, len(v))
		for i, child := range v {
			red, childChanged := walk(child, replace)
			if childChanged {
				changed = true
			}
			out[i] = red
		}
		return out, changed
	default:
		return v, false
	}
}
