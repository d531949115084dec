package contract

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// StructField declares one hydratable field of a registered struct type.
type StructField struct {
	Name string
	Type TypeSpec
}

// StructType describes one target type for struct hydration. When a
// Constructor is present it is authoritative: field mapping is not
// attempted on constructor failure, so target types own their
// normalization (upcasing a field, scaling a number) outright.
type StructType struct {
	Name        string
	Fields      []StructField
	Constructor func(fields map[string]any) (any, error)
}

// Instance is the hydration result for constructor-less struct types.
type Instance struct {
	Type   string
	Fields map[string]any
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]StructType)
)

// RegisterStruct installs or replaces a struct target type.
func RegisterStruct(st StructType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[st.Name] = st
}

func lookupStruct(name string) (StructType, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	st, ok := registry[name]
	return st, ok
}

// Cast converts a raw returned value into its declared type. Primitive
// casts mirror validation but coerce where safe (integer widens to float).
// Unknown declared types are always unknown_type, never passed through.
func Cast(value any, t TypeSpec) (any, error) {
	start := time.Now()
	log.Debug().
		Str("op", "cast").
		Str("target", t.Name()).
		Msg("contract_cast_start")

	out, err := cast(value, t)
	observeContract("cast", t.Name(), 1, start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func cast(value any, t TypeSpec) (any, error) {
	switch t.Kind {
	case KindAny:
		return value, nil
	case KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, cannotCast(value, t.Name(), "")
	case KindInteger:
		if i, ok := asInt64(value); ok {
			return i, nil
		}
		return nil, cannotCast(value, t.Name(), "")
	case KindFloat:
		if f, ok := asFloat64(value); ok {
			return f, nil
		}
		return nil, cannotCast(value, t.Name(), "")
	case KindBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, cannotCast(value, t.Name(), "")
	case KindList:
		items, ok := asList(value)
		if !ok {
			return nil, cannotCast(value, t.Name(), "")
		}
		if t.Elem == nil {
			return items, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			cv, err := cast(item, *t.Elem)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	case KindMap:
		if m, ok := asStringMap(value); ok {
			return m, nil
		}
		return nil, cannotCast(value, t.Name(), "")
	case KindTuple:
		if items, ok := asList(value); ok {
			return items, nil
		}
		return nil, cannotCast(value, t.Name(), "")
	case KindReference:
		if isReference(value) {
			return value, nil
		}
		return nil, cannotCast(value, t.Name(), "")
	case KindStruct:
		return castStruct(value, t)
	default:
		return nil, unknownType(t.Name())
	}
}

func castStruct(value any, t TypeSpec) (any, error) {
	st, ok := lookupStruct(t.Struct)
	if !ok {
		return nil, unknownType(t.Name())
	}
	raw, ok := asStringMap(value)
	if !ok {
		return nil, cannotCast(value, t.Name(), "not a field map")
	}

	fields := normalizeFieldKeys(raw)

	if st.Constructor != nil {
		out, err := st.Constructor(fields)
		if err != nil {
			return nil, cannotCast(value, t.Name(), err.Error())
		}
		return out, nil
	}

	out := Instance{Type: st.Name, Fields: make(map[string]any, len(st.Fields))}
	for _, f := range st.Fields {
		fv, ok := fields[f.Name]
		if !ok {
			return nil, cannotCast(value, t.Name(), "missing field "+f.Name)
		}
		cv, err := cast(fv, f.Type)
		if err != nil {
			return nil, cannotCast(value, t.Name(), "field "+f.Name+": "+err.Error())
		}
		out.Fields[f.Name] = cv
	}
	return out, nil
}

// normalizeFieldKeys maps both plain and symbolic (":name") keys onto field
// names. Plain keys win on collision.
func normalizeFieldKeys(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if name, ok := strings.CutPrefix(k, ":"); ok {
			if _, exists := raw[name]; exists {
				continue
			}
			out[name] = v
			continue
		}
		out[k] = v
	}
	return out
}
