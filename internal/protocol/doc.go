// Package protocol owns the bridge wire contract.
//
// Ownership boundary:
// - frame length-prefix primitives
// - request/response envelope encode/decode
// - malformed-body classification (recoverable id vs dropped)
package protocol
