// Package contract owns typed method contracts for calls crossing the
// process boundary.
//
// Ownership boundary:
// - tagged-variant type descriptions (TypeSpec)
// - method parameter specs and argument validation
// - result casting and struct hydration
package contract
