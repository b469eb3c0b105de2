package secrets

import (
	"strings"
	"testing"
)

func mapLookup(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestContainsSecretRefs(t *testing.T) {
	payload := map[string]any{
		"token": "secret://hooks/api",
		"nested": map[string]any{
			"value": "secret://hooks/nested",
		},
		"list": []any{"ok", "secret://hooks/list"},
	}
	if !ContainsSecretRefs(payload) {
		t.Fatalf("expected secret refs to be detected")
	}
	if ContainsSecretRefs(map[string]any{"plain": "value"}) {
		t.Fatalf("no refs expected")
	}
}

func TestResolve(t *testing.T) {
	lookup := mapLookup(map[string]string{"hooks/api": "tok-1", "SLACK_URL": "https://hooks.slack.local/x"})
	got, err := Resolve(map[string]any{"auth": "secret://hooks/api", "n": 3, "tags": []string{"a"}}, lookup)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	m := got.(map[string]any)
	if m["auth"] != "tok-1" || m["n"] != 3 {
		t.Fatalf("unexpected resolution: %#v", m)
	}
	url, err := ResolveString("secret://SLACK_URL", lookup)
	if err != nil || url != "https://hooks.slack.local/x" {
		t.Fatalf("resolve string: %q %v", url, err)
	}
	if s, err := ResolveString("https://plain", lookup); err != nil || s != "https://plain" {
		t.Fatalf("plain strings pass through: %q %v", s, err)
	}
	if _, err := Resolve([]any{"secret://missing"}, lookup); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected unresolved error, got %v", err)
	}
}

func TestEnvLookup(t *testing.T) {
	t.Setenv("MEDIAFLOW_SECRET_HOOKS_API", "from-prefixed")
	t.Setenv("RAW_NAME", "from-raw")
	if v, ok := EnvLookup("hooks/api"); !ok || v != "from-prefixed" {
		t.Fatalf("unexpected prefixed lookup: %q %v", v, ok)
	}
	if v, ok := EnvLookup("RAW_NAME"); ok {
		t.Fatalf("unprefixed environment must not resolve, got %q", v)
	}
	if _, ok := EnvLookup("definitely-not-set-anywhere"); ok {
		t.Fatalf("expected miss")
	}
}
