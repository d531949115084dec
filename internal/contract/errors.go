package contract

import "fmt"

// Validation error codes.
const (
	CodeMissingRequiredParam = "missing_required_param"
	CodeInvalidType          = "invalid_type"
	CodeUnknownParameter     = "unknown_parameter"
)

// Cast error codes.
const (
	CodeCannotCast  = "cannot_cast"
	CodeUnknownType = "unknown_type"
)

// ValidationError reports the first offending argument, in spec order.
type ValidationError struct {
	Code     string
	Param    string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	switch e.Code {
	case CodeInvalidType:
		return fmt.Sprintf("contract: %s: %s expected=%s actual=%s", e.Code, e.Param, e.Expected, e.Actual)
	default:
		return fmt.Sprintf("contract: %s: %s", e.Code, e.Param)
	}
}

// CastError reports a value that could not be cast to its declared type,
// or a declared type that is not known at all.
type CastError struct {
	Code   string
	Value  any
	Target string
	Reason string
}

func (e *CastError) Error() string {
	if e.Code == CodeUnknownType {
		return fmt.Sprintf("contract: %s: %s", e.Code, e.Target)
	}
	if e.Reason != "" {
		return fmt.Sprintf("contract: %s: %v -> %s: %s", e.Code, e.Value, e.Target, e.Reason)
	}
	return fmt.Sprintf("contract: %s: %v -> %s", e.Code, e.Value, e.Target)
}

func missingRequired(name string) *ValidationError {
	return &ValidationError{Code: CodeMissingRequiredParam, Param: name}
}

func invalidType(name, expected, actual string) *ValidationError {
	return &ValidationError{Code: CodeInvalidType, Param: name, Expected: expected, Actual: actual}
}

func unknownParameter(name string) *ValidationError {
	return &ValidationError{Code: CodeUnknownParameter, Param: name}
}

func cannotCast(value any, target string, reason string) *CastError {
	return &CastError{Code: CodeCannotCast, Value: value, Target: target, Reason: reason}
}

func unknownType(target string) *CastError {
	return &CastError{Code: CodeUnknownType, Target: target}
}
