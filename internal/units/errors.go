package units

import "fmt"

// UnitMismatchError is raised by add/sub when operand units cannot be
// reconciled (neither identical, nor one side empty).
type UnitMismatchError struct {
	Op    string
	Left  string
	Right string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("unit mismatch in %s: %q vs %q", e.Op, e.Left, e.Right)
}

// UnitConversionError is raised when changeUnits has no known path between
// the source and target units (no fixed rule, equivalency, or initial
// charge coefficient applies).
type UnitConversionError struct {
	From string
	To   string
}

func (e *UnitConversionError) Error() string {
	return fmt.Sprintf("no conversion known from %q to %q", e.From, e.To)
}

// InvariantError covers machine-level invariant violations: getResult called
// on an empty or multi-element stack, or a calculated time point that
// produced units. (A malformed ParseResult is reported separately, by
// qtparse.)
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.Message }
