package engine

import "fmt"

// UndefinedStreamError is returned when a statement reads a stream that has
// never been enabled (via an explicit `enable` or an earlier write) on the
// current substance. Always fatal to the scenario (spec.md §7).
type UndefinedStreamError struct {
	Application, Substance, Stream string
}

func (e *UndefinedStreamError) Error() string {
	return fmt.Sprintf("stream %q not enabled for %s/%s", e.Stream, e.Application, e.Substance)
}

// UndefinedReferenceError is returned when a cross-substance `get` targets
// an (application, substance) pair the engine has never seen. Non-fatal by
// default (the read yields zero); fatal only in strict mode.
type UndefinedReferenceError struct {
	Application, Substance string
}

func (e *UndefinedReferenceError) Error() string {
	return fmt.Sprintf("no such substance %q in application %q", e.Substance, e.Application)
}

// ExecutionError wraps a failure raised while executing an operation, tagged
// with the offending statement's position (spec.md §6.4).
type ExecutionError struct {
	Kind    string
	Message string
	OpIndex int
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s error at statement %d: %s", e.Kind, e.OpIndex, e.Message)
}

func (e *ExecutionError) Unwrap() error { return fmt.Errorf("%s", e.Message) }
