package contract

import "fmt"

// Kind tags one variant of the type description sum.
type Kind uint8

const (
	KindAny Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindList
	KindMap
	KindTuple
	KindReference
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindTuple:
		return "tuple"
	case KindReference:
		return "reference"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TypeSpec describes one declared type. A single generic validator/caster
// interprets it; there is no per-method bespoke checking.
type TypeSpec struct {
	Kind Kind
	// Elem is the element type for typed lists. Nil means a generic list.
	Elem *TypeSpec
	// Struct is the registered struct type name for KindStruct.
	Struct string
}

// Name renders the declared type for error taxonomy entries.
func (t TypeSpec) Name() string {
	switch t.Kind {
	case KindList:
		if t.Elem != nil {
			return "list<" + t.Elem.Name() + ">"
		}
		return "list"
	case KindStruct:
		return "struct<" + t.Struct + ">"
	default:
		return t.Kind.String()
	}
}

var (
	Any       = TypeSpec{Kind: KindAny}
	String    = TypeSpec{Kind: KindString}
	Integer   = TypeSpec{Kind: KindInteger}
	Float     = TypeSpec{Kind: KindFloat}
	Boolean   = TypeSpec{Kind: KindBoolean}
	List      = TypeSpec{Kind: KindList}
	Map       = TypeSpec{Kind: KindMap}
	Tuple     = TypeSpec{Kind: KindTuple}
	Reference = TypeSpec{Kind: KindReference}
)

// ListOf declares a list whose every element must satisfy elem.
func ListOf(elem TypeSpec) TypeSpec {
	e := elem
	return TypeSpec{Kind: KindList, Elem: &e}
}

// StructOf declares a registered struct target type by name.
func StructOf(name string) TypeSpec {
	return TypeSpec{Kind: KindStruct, Struct: name}
}

// ParamMode selects how a declared parameter binds.
type ParamMode uint8

const (
	ModeRequired ParamMode = iota
	ModeOptional
	// ModeVariableKeyword makes unknown argument keys pass through
	// unvalidated anywhere in the spec.
	ModeVariableKeyword
)

// Param is one declared parameter of a method contract.
type Param struct {
	Name    string
	Type    TypeSpec
	Mode    ParamMode
	Default any
}

func Required(name string, t TypeSpec) Param {
	return Param{Name: name, Type: t, Mode: ModeRequired}
}

func Optional(name string, t TypeSpec, def any) Param {
	return Param{Name: name, Type: t, Mode: ModeOptional, Default: def}
}

func VariableKeyword(name string) Param {
	return Param{Name: name, Mode: ModeVariableKeyword, Type: Any}
}

// MethodSpec is the immutable contract for one remote method.
type MethodSpec struct {
	Name   string
	Params []Param
	Return TypeSpec
}

// AllowsUnknown reports whether the spec declares VariableKeyword anywhere.
func (s MethodSpec) AllowsUnknown() bool {
	for _, p := range s.Params {
		if p.Mode == ModeVariableKeyword {
			return true
		}
	}
	return false
}

// ApplyDefaults returns a copy of args with absent optional parameters
// filled from their declared defaults. Nil defaults are not injected.
func ApplyDefaults(args map[string]any, spec MethodSpec) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, p := range spec.Params {
		if p.Mode != ModeOptional || p.Default == nil {
			continue
		}
		if _, ok := out[p.Name]; !ok {
			out[p.Name] = p.Default
		}
	}
	return out
}
