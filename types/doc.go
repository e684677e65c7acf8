// Package types defines shared domain types for the Orchio workflow
// engine: the structured error taxonomy used across plan validation,
// execution, and safety gating.
package types
