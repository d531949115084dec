package contract

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/bridgectl/internal/observability"
)

// Validate checks an argument map against a method contract.
//
// Order of checks: every Required parameter must be present, reported in
// spec order; then every present key must satisfy its declared type; keys
// the spec does not declare are unknown_parameter errors unless the spec
// declares VariableKeyword anywhere, in which case they pass through
// unvalidated. Runs fully synchronous, before any wire traffic.
func Validate(args map[string]any, spec MethodSpec) error {
	start := time.Now()
	log.Debug().
		Str("op", "validate").
		Str("method", spec.Name).
		Int("args", len(args)).
		Int("params", len(spec.Params)).
		Msg("contract_validate_start")

	err := validate(args, spec)
	observeContract("validate", spec.Name, len(args), start, err)
	return err
}

func validate(args map[string]any, spec MethodSpec) error {
	for _, p := range spec.Params {
		if p.Mode != ModeRequired {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			return missingRequired(p.Name)
		}
	}

	declared := make(map[string]Param, len(spec.Params))
	for _, p := range spec.Params {
		declared[p.Name] = p
	}

	for _, p := range spec.Params {
		if p.Mode == ModeVariableKeyword {
			continue
		}
		v, ok := args[p.Name]
		if !ok {
			continue
		}
		if verr := checkValue(p.Name, v, p.Type); verr != nil {
			return verr
		}
	}

	if spec.AllowsUnknown() {
		return nil
	}
	unknown := make([]string, 0)
	for k := range args {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		// Sorted so the reported key is deterministic.
		sort.Strings(unknown)
		return unknownParameter(unknown[0])
	}
	return nil
}

// checkValue verifies one value against one declared type without coercing.
func checkValue(name string, v any, t TypeSpec) *ValidationError {
	switch t.Kind {
	case KindAny:
		return nil
	case KindString:
		if _, ok := v.(string); !ok {
			return invalidType(name, t.Name(), typeName(v))
		}
	case KindInteger:
		if _, ok := asInt64(v); !ok {
			return invalidType(name, t.Name(), typeName(v))
		}
	case KindFloat:
		// Whole numbers widen; any numeric passes.
		if _, ok := asFloat64(v); !ok {
			return invalidType(name, t.Name(), typeName(v))
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return invalidType(name, t.Name(), typeName(v))
		}
	case KindList:
		items, ok := asList(v)
		if !ok {
			return invalidType(name, t.Name(), typeName(v))
		}
		if t.Elem != nil {
			for _, item := range items {
				if verr := checkValue(name, item, *t.Elem); verr != nil {
					return verr
				}
			}
		}
	case KindMap:
		if _, ok := asStringMap(v); !ok {
			return invalidType(name, t.Name(), typeName(v))
		}
	case KindTuple:
		// Tuples arrive as lists on the wire; the check is structural.
		if _, ok := asList(v); !ok {
			return invalidType(name, t.Name(), typeName(v))
		}
	case KindReference:
		if !isReference(v) {
			return invalidType(name, t.Name(), typeName(v))
		}
	case KindStruct:
		if _, ok := asStringMap(v); !ok {
			return invalidType(name, t.Name(), typeName(v))
		}
	default:
		return invalidType(name, t.Name(), typeName(v))
	}
	return nil
}

// observeContract emits the timing/outcome events both Validate and Cast
// are contractually wrapped with.
func observeContract(op, method string, count int, start time.Time, err error) {
	duration := time.Since(start)
	observability.RecordContractOp(op, duration, err == nil)
	if err != nil {
		log.Error().
			Str("op", op).
			Str("method", method).
			Int("count", count).
			Dur("duration", duration).
			Bool("success", false).
			Err(err).
			Msg("contract_" + op + "_failed")
		return
	}
	log.Info().
		Str("op", op).
		Str("method", method).
		Int("count", count).
		Dur("duration", duration).
		Bool("success", true).
		Msg("contract_" + op + "_ok")
}
