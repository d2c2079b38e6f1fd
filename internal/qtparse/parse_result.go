package qtparse

import "fmt"

// ParseError carries a single syntax problem's source line and message.
// The parser's error listener accumulates these instead of printing to
// stderr.
type ParseError struct {
	Line    int
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ParseResult is either a Program or a non-empty error list, never both
// (spec.md §8, invariant 1). Construct it only via NewParseResult /
// NewErrorResult so that invariant always holds.
type ParseResult struct {
	program *Program
	errors  []ParseError
}

// NewParseResult wraps a successfully parsed program.
func NewParseResult(p *Program) ParseResult {
	if p == nil {
		panic(&InvariantViolation{Message: "ParseResult constructed with nil program and no errors"})
	}
	return ParseResult{program: p}
}

// NewErrorResult wraps a non-empty error list.
func NewErrorResult(errs []ParseError) ParseResult {
	if len(errs) == 0 {
		panic(&InvariantViolation{Message: "ParseResult constructed with empty error list and no program"})
	}
	return ParseResult{errors: errs}
}

// HasErrors reports whether parsing failed.
func (r ParseResult) HasErrors() bool { return len(r.errors) > 0 }

// Errors returns the accumulated parse errors (empty when HasErrors is false).
func (r ParseResult) Errors() []ParseError { return r.errors }

// Program returns the parsed program and true, or (nil, false) if parsing
// failed.
func (r ParseResult) Program() (*Program, bool) {
	if r.program == nil {
		return nil, false
	}
	return r.program, true
}

// InvariantViolation signals a construction-time invariant failure (spec.md
// §7, InvariantError: "ParseResult constructed with empty error list and no
// program").
type InvariantViolation struct{ Message string }

func (e *InvariantViolation) Error() string { return "invariant violation: " + e.Message }
