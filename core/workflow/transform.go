package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultTransformTarget = "transformResult"

// transform applies one of format, extract, calculate or combine and returns
// the output key and value. raw is the step config before templating; only
// strings written there as plain dot paths are looked up in vars.
func transform(raw, cfg map[string]any, vars map[string]any) (string, any, error) {
	target := stringValue(cfg, "target")
	if target == "" {
		target = defaultTransformTarget
	}
	source := sourceValue(raw, cfg, vars)
	switch op := stringValue(cfg, "operation"); op {
	case "format":
		out, err := formatValue(source, cfg)
		return target, out, err
	case "extract":
		out, err := extractValue(source, cfg)
		return target, out, err
	case "calculate":
		out, err := calculateValue(source, cfg)
		return target, out, err
	case "combine":
		return target, combineValues(raw, cfg, vars), nil
	case "":
		return target, nil, fmt.Errorf("transform: operation required")
	default:
		return target, nil, fmt.Errorf("transform: unsupported operation %q", op)
	}
}

// sourceValue returns the templated "source", or the value at its dot path
// when the author wrote a plain path. A path never comes from substitution.
func sourceValue(raw, cfg map[string]any, vars map[string]any) any {
	val, ok := cfg["source"]
	if !ok {
		return nil
	}
	return pathOrValue(raw["source"], val, vars)
}

func pathOrValue(authored, resolved any, vars map[string]any) any {
	path, isString := authored.(string)
	if !isString || strings.Contains(path, "{{") {
		return resolved
	}
	if found, ok := lookupPath(vars, path); ok {
		return found
	}
	return resolved
}

func formatValue(source any, cfg map[string]any) (any, error) {
	switch kind := stringValue(cfg, "formatType"); kind {
	case "date":
		ts, err := toTime(source)
		if err != nil {
			return nil, fmt.Errorf("transform format date: %w", err)
		}
		layout := stringValue(cfg, "layout")
		switch layout {
		case "", "datetime":
			layout = time.RFC3339
		case "date":
			layout = "2006-01-02"
		case "time":
			layout = "15:04:05"
		}
		return ts.UTC().Format(layout), nil
	case "number":
		n, ok := toNumber(source)
		if !ok {
			return nil, fmt.Errorf("transform format number: %v is not numeric", source)
		}
		decimals := 2
		if d, ok := toNumber(cfg["decimals"]); ok && d >= 0 {
			decimals = int(d)
		}
		return strconv.FormatFloat(n, 'f', decimals, 64), nil
	case "string", "":
		s := stringify(source)
		if limit, ok := toNumber(cfg["maxLength"]); ok && limit >= 0 {
			runes := []rune(s)
			if len(runes) > int(limit) {
				suffix := "..."
				if v, ok := cfg["suffix"].(string); ok {
					suffix = v
				}
				s = string(runes[:int(limit)]) + suffix
			}
		}
		switch stringValue(cfg, "case") {
		case "upper":
			s = strings.ToUpper(s)
		case "lower":
			s = strings.ToLower(s)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("transform format: unsupported formatType %q", kind)
	}
}

func extractValue(source any, cfg map[string]any) (any, error) {
	if pattern := stringValue(cfg, "pattern"); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("transform extract: %w", err)
		}
		m := re.FindStringSubmatch(stringify(source))
		if m == nil {
			return nil, nil
		}
		group := 0
		if len(m) > 1 {
			group = 1
		}
		if g, ok := toNumber(cfg["group"]); ok {
			group = int(g)
		}
		if group < 0 || group >= len(m) {
			return nil, fmt.Errorf("transform extract: group %d out of range", group)
		}
		return m[group], nil
	}
	if path := stringValue(cfg, "path"); path != "" {
		val, _ := lookupPath(map[string]any{"value": source}, "value."+path)
		return cloneValue(val), nil
	}
	return nil, fmt.Errorf("transform extract: pattern or path required")
}

func calculateValue(source any, cfg map[string]any) (any, error) {
	switch calc := stringValue(cfg, "calculation"); calc {
	case "length":
		switch v := source.(type) {
		case string:
			return len([]rune(v)), nil
		case map[string]any:
			return len(v), nil
		}
		if list, ok := toList(source); ok {
			return len(list), nil
		}
		return 0, nil
	case "word_count":
		return len(strings.Fields(stringify(source))), nil
	case "duration":
		start, err := toTime(cfg["start"])
		if err != nil {
			return nil, fmt.Errorf("transform duration start: %w", err)
		}
		end := time.Now().UTC()
		if raw, ok := cfg["end"]; ok {
			end, err = toTime(raw)
			if err != nil {
				return nil, fmt.Errorf("transform duration end: %w", err)
			}
		}
		return end.Sub(start).Milliseconds(), nil
	default:
		return nil, fmt.Errorf("transform calculate: unsupported calculation %q", calc)
	}
}

func combineValues(raw, cfg map[string]any, vars map[string]any) string {
	sep := " "
	if s, ok := cfg["separator"].(string); ok {
		sep = s
	}
	items, _ := toList(cfg["sources"])
	authored, _ := toList(raw["sources"])
	if len(authored) != len(items) {
		authored = nil
	}
	parts := make([]string, 0, len(items))
	for i, item := range items {
		val := item
		if authored != nil {
			val = pathOrValue(authored[i], item, vars)
		}
		if str := stringify(val); str != "" {
			parts = append(parts, str)
		}
	}
	return strings.Join(parts, sep)
}

// toTime accepts time values, RFC3339 strings and unix milliseconds.
func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
	}
	if ms, ok := toNumber(v); ok && isNumeric(v) {
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot interpret %v as time", v)
}
