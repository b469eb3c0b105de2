package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator compiles JSON schemas once and validates documents against them.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns an empty validator.
func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate checks value against the schema registered under id, compiling raw
// on first use.
func (v *Validator) Validate(id string, raw []byte, value any) error {
	compiled, err := v.compile(id, raw)
	if err != nil {
		return err
	}
	payload, err := normalizeValue(value)
	if err != nil {
		return fmt.Errorf("normalize payload: %w", err)
	}
	if err := compiled.Validate(payload); err != nil {
		return &Error{Schema: id, Issues: flatten(err)}
	}
	return nil
}

func (v *Validator) compile(id string, raw []byte) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("schema is empty")
	}
	resourceID := resourceID(id)
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.compiled[resourceID]; ok {
		return s, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	v.compiled[resourceID] = s
	return s, nil
}

var defaultValidator = NewValidator()

// ValidateSchema validates a value against a JSON schema payload using the
// shared validator.
func ValidateSchema(id string, raw []byte, value any) error {
	return defaultValidator.Validate(id, raw, value)
}

// Error lists every schema violation found in one document.
type Error struct {
	Schema string
	Issues []string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("schema %s validation failed: %s", e.Schema, strings.Join(e.Issues, "; "))
}

func flatten(err error) []string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	if len(out) == 0 {
		out = append(out, verr.Error())
	}
	return out
}

// normalizeValue turns raw JSON and Go structs into the generic shape the
// compiler expects (maps, slices, float64).
func normalizeValue(value any) (any, error) {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

func resourceID(id string) string {
	id = strings.ReplaceAll(strings.TrimSpace(id), " ", "-")
	if id == "" {
		id = "schema"
	}
	return "inmemory://" + id
}
