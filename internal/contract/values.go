package contract

import (
	"math"
	"reflect"
)

// refTagKey marks a tagged wrapper map standing in for a handle held by the
// remote process. {"__type__": "ref", "id": ...}
const (
	refTagKey   = "__type__"
	refTagValue = "ref"
)

// typeName classifies a runtime value with wire-level type names, for the
// actual side of invalid_type entries.
func typeName(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32:
		if isWhole(float64(t)) {
			return "integer"
		}
		return "float"
	case float64:
		// JSON decoding yields float64 for every number; a whole value is
		// still an integer as far as the contract is concerned.
		if isWhole(t) {
			return "integer"
		}
		return "float"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map:
		return "map"
	default:
		return "reference"
	}
}

func isWhole(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// asInt64 converts integer-valued numerics without losing information.
func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float32:
		if isWhole(float64(t)) {
			return int64(t), true
		}
		return 0, false
	case float64:
		if isWhole(t) {
			return int64(t), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// asList normalizes slices and arrays to []any. Strings and byte slices are
// not lists.
func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asStringMap normalizes string-keyed maps to map[string]any.
func asStringMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// isReference accepts either a native opaque handle or a tagged wrapper map
// for a remote-held object. Maps that are not tagged wrappers are plain
// data, not handles.
func isReference(v any) bool {
	if v == nil {
		return false
	}
	if m, ok := asStringMap(v); ok {
		tag, ok := m[refTagKey].(string)
		return ok && tag == refTagValue
	}
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return false
	}
	if _, ok := asList(v); ok {
		return false
	}
	return true
}
