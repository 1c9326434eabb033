package model

// ErrorKind classifies the outcome of a collaborator call (search, delivery).
// Callers branch on it instead of on Go errors.
type ErrorKind string

const (
	KindNone        ErrorKind = "none"
	KindTimeout     ErrorKind = "timeout"
	KindUnavailable ErrorKind = "unavailable"
	KindInvalid     ErrorKind = "invalid"
)
