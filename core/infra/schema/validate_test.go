package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const personSchema = `{"type":"object","properties":{"name":{"type":"string"},"age":{"type":"integer"}},"required":["name"]}`

func TestValidateSchema(t *testing.T) {
	if err := ValidateSchema("person", []byte(personSchema), map[string]any{"name": "ok"}); err != nil {
		t.Fatalf("expected valid document: %v", err)
	}
	err := ValidateSchema("person", []byte(personSchema), map[string]any{"age": "old"})
	if err == nil {
		t.Fatalf("expected schema validation error")
	}
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if len(serr.Issues) < 2 {
		t.Fatalf("expected both violations reported, got %v", serr.Issues)
	}
}

func TestValidatorCachesCompiledSchema(t *testing.T) {
	v := NewValidator()
	if err := v.Validate("person", []byte(personSchema), map[string]any{"name": "a"}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	// the raw schema is ignored once compiled under the same id
	if err := v.Validate("person", []byte(`{"type":"string"}`), map[string]any{"name": "b"}); err != nil {
		t.Fatalf("expected cached schema to be used: %v", err)
	}
	if len(v.compiled) != 1 {
		t.Fatalf("expected one compiled schema, got %d", len(v.compiled))
	}
}

func TestValidateStructValue(t *testing.T) {
	type person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	if err := NewValidator().Validate("person", []byte(personSchema), person{Name: "x", Age: 3}); err != nil {
		t.Fatalf("expected struct to validate: %v", err)
	}
}

func TestValidateSchemaEmpty(t *testing.T) {
	if err := NewValidator().Validate("empty", nil, nil); err == nil {
		t.Fatalf("expected error for empty schema")
	}
}

func TestNormalizeValueInvalidJSON(t *testing.T) {
	if _, err := normalizeValue(json.RawMessage("{")); err == nil {
		t.Fatalf("expected error for invalid raw json")
	}
	if _, err := normalizeValue([]byte("{")); err == nil {
		t.Fatalf("expected error for invalid byte json")
	}
}

func TestResourceID(t *testing.T) {
	if got := resourceID(""); got != "inmemory://schema" {
		t.Fatalf("unexpected id: %s", got)
	}
	if got := resourceID("engine config"); !strings.HasSuffix(got, "engine-config") {
		t.Fatalf("unexpected id: %s", got)
	}
}
