package models

import (
	"strconv"
	"time"
)

// RawObject is a loosely structured upstream payload. Fields may be absent,
// renamed across API versions or of inconsistent type, so every accessor
// takes a list of fallback keys and tolerates type drift instead of
// panicking. Raw objects are never persisted.
type RawObject map[string]any

// String returns the first present key coerced to a string
func (o RawObject) String(keys ...string) string {
	for _, key := range keys {
		switch v := o[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// Int returns the first present key coerced to an integer
func (o RawObject) Int(keys ...string) int64 {
	for _, key := range keys {
		switch v := o[key].(type) {
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

// Float returns the first present key coerced to a float
func (o RawObject) Float(keys ...string) float64 {
	for _, key := range keys {
		switch v := o[key].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// Bool returns the first present boolean key
func (o RawObject) Bool(keys ...string) bool {
	for _, key := range keys {
		if v, ok := o[key].(bool); ok {
			return v
		}
	}
	return false
}

// Object returns the first present key that is a nested object
func (o RawObject) Object(keys ...string) RawObject {
	for _, key := range keys {
		if v, ok := o[key].(map[string]any); ok {
			return RawObject(v)
		}
	}
	return nil
}

// List returns the first present key that is a list of objects. Non-object
// elements are skipped.
func (o RawObject) List(keys ...string) []RawObject {
	for _, key := range keys {
		items, ok := o[key].([]any)
		if !ok {
			continue
		}
		out := make([]RawObject, 0, len(items))
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, RawObject(obj))
			}
		}
		return out
	}
	return nil
}

// Strings returns the first present key that is a list of strings
func (o RawObject) Strings(keys ...string) []string {
	for _, key := range keys {
		items, ok := o[key].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time returns the first present key as a UTC timestamp. Unix seconds and
// RFC 3339 strings are both accepted, the upstream has shipped both.
func (o RawObject) Time(keys ...string) time.Time {
	for _, key := range keys {
		switch v := o[key].(type) {
		case float64:
			if v > 0 {
				return time.Unix(int64(v), 0).UTC()
			}
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// Has reports whether any of the keys is present at all
func (o RawObject) Has(keys ...string) bool {
	for _, key := range keys {
		if _, ok := o[key]; ok {
			return true
		}
	}
	return false
}
