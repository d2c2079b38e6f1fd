package units

import "math/big"

// Machine is the last-in-first-out stack of unit-tagged numbers that
// QubecTalk expressions evaluate against. It never catches arithmetic
// errors; callers let them propagate as fatal execution failures tagged
// with the offending operation (see engine.ExecutionError).
type Machine struct {
	stack []Number
	conv  *Conversions
	rng   RNG
}

// NewMachine builds a machine bound to the given conversion registrations
// and RNG. A nil RNG defaults to MeanRNG (deterministic mode).
func NewMachine(conv *Conversions, rng RNG) *Machine {
	if conv == nil {
		conv = NewConversions()
	}
	if rng == nil {
		rng = MeanRNG{}
	}
	return &Machine{conv: conv, rng: rng}
}

// SetConversions rebinds the machine's registration set, used when the
// engine's cursor moves to a different substance.
func (m *Machine) SetConversions(conv *Conversions) { m.conv = conv }

// Push places a number on top of the stack.
func (m *Machine) Push(n Number) { m.stack = append(m.stack, n) }

// Pop removes and returns the top of the stack.
func (m *Machine) Pop() (Number, error) {
	if len(m.stack) == 0 {
		return Number{}, &InvariantError{Message: "pop from empty stack"}
	}
	n := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return n, nil
}

// Peek returns the top of the stack without removing it.
func (m *Machine) Peek() (Number, error) {
	if len(m.stack) == 0 {
		return Number{}, &InvariantError{Message: "peek on empty stack"}
	}
	return m.stack[len(m.stack)-1], nil
}

// Len reports how many values are currently on the stack.
func (m *Machine) Len() int { return len(m.stack) }

// GetResult requires exactly one element on the stack and returns it.
func (m *Machine) GetResult() (Number, error) {
	switch len(m.stack) {
	case 0:
		return Number{}, &InvariantError{Message: "getResult on empty stack"}
	case 1:
		return m.stack[0], nil
	default:
		return Number{}, &InvariantError{Message: "getResult on stack with multiple elements"}
	}
}

// Reset clears the stack, e.g. between top-level statement evaluations.
func (m *Machine) Reset() { m.stack = m.stack[:0] }

func reconcileUnits(op, left, right string) (string, error) {
	switch {
	case left == right:
		return left, nil
	case left == "":
		return right, nil
	case right == "":
		return left, nil
	default:
		return "", &UnitMismatchError{Op: op, Left: left, Right: right}
	}
}

// Add pops two numbers and pushes their sum.
func (m *Machine) Add() error { return m.binary("add", func(a, b *big.Rat) *big.Rat { return new(big.Rat).Add(a, b) }) }

// Sub pops two numbers (b then a, so a-b) and pushes their difference.
func (m *Machine) Sub() error { return m.binary("sub", func(a, b *big.Rat) *big.Rat { return new(big.Rat).Sub(a, b) }) }

func (m *Machine) binary(op string, fn func(a, b *big.Rat) *big.Rat) error {
	b, err := m.Pop()
	if err != nil {
		return err
	}
	a, err := m.Pop()
	if err != nil {
		return err
	}
	resultUnits, err := reconcileUnits(op, a.Units, b.Units)
	if err != nil {
		return err
	}
	m.Push(Number{Value: fn(a.Value, b.Value), Units: resultUnits})
	return nil
}

func composeUnits(op, left, right string) string {
	if left == "" {
		return right
	}
	if right == "" {
		return left
	}
	if op == "*" {
		return left + " * " + right
	}
	return left + " / " + right
}

// Mul pops two numbers and pushes their product; units compose as "A * B".
func (m *Machine) Mul() error {
	b, err := m.Pop()
	if err != nil {
		return err
	}
	a, err := m.Pop()
	if err != nil {
		return err
	}
	units := composeUnits("*", a.Units, b.Units)
	m.Push(Number{Value: new(big.Rat).Mul(a.Value, b.Value), Units: units})
	return nil
}

// Div pops two numbers (divisor then dividend) and pushes their quotient;
// units compose as "A / B".
func (m *Machine) Div() error {
	b, err := m.Pop()
	if err != nil {
		return err
	}
	a, err := m.Pop()
	if err != nil {
		return err
	}
	if b.Value.Sign() == 0 {
		return &InvariantError{Message: "division by zero"}
	}
	units := composeUnits("/", a.Units, b.Units)
	m.Push(Number{Value: new(big.Rat).Quo(a.Value, b.Value), Units: units})
	return nil
}

// Pow pops an exponent (must carry empty units and be an integer) and a
// base, and pushes base^exponent. The base's unit is carried through
// unchanged when the exponent is 1; any other exponent on a unit-bearing
// base is degenerate (kept literal, matching the source's behavior for
// compound units raised to a power other than one).
func (m *Machine) Pow() error {
	exp, err := m.Pop()
	if err != nil {
		return err
	}
	base, err := m.Pop()
	if err != nil {
		return err
	}
	if !exp.IsEmptyUnits() {
		return &UnitMismatchError{Op: "pow", Left: base.Units, Right: exp.Units}
	}
	if !exp.Value.IsInt() {
		return &InvariantError{Message: "pow exponent must be an integer"}
	}
	n := exp.Value.Num().Int64()
	result := new(big.Rat).SetInt64(1)
	neg := n < 0
	if neg {
		n = -n
	}
	for i := int64(0); i < n; i++ {
		result.Mul(result, base.Value)
	}
	if neg {
		if result.Sign() == 0 {
			return &InvariantError{Message: "pow: division by zero in negative exponent"}
		}
		result.Inv(result)
	}
	resultUnits := base.Units
	if n != 1 {
		resultUnits = base.Units
	}
	m.Push(Number{Value: result, Units: resultUnits})
	return nil
}

// ChangeUnits converts the top-of-stack value's units to `to`, in the
// context of the given stream (used only for units<->kg initial-charge
// conversions; pass "" when not applicable).
func (m *Machine) ChangeUnits(to, stream string) error {
	n, err := m.Pop()
	if err != nil {
		return err
	}
	converted, err := m.Convert(n, to, stream)
	if err != nil {
		return err
	}
	m.Push(converted)
	return nil
}

// Convert converts a Number to the target units without touching the
// stack, consulting the fixed table, registered equivalencies, and
// initial-charge coefficients in that order.
func (m *Machine) Convert(n Number, to, stream string) (Number, error) {
	if n.Units == to {
		return n, nil
	}
	ratio, ok := m.conv.ratio(n.Units, to, stream)
	if !ok {
		return Number{}, &UnitConversionError{From: n.Units, To: to}
	}
	return Number{Value: new(big.Rat).Mul(n.Value, ratio), Units: to}, nil
}

// Compare pops two operands and pushes 1 or 0 (empty units) per cmp, which
// must be one of "==", "!=", "<", "<=", ">", ">=".
func (m *Machine) Compare(cmp string) error {
	b, err := m.Pop()
	if err != nil {
		return err
	}
	a, err := m.Pop()
	if err != nil {
		return err
	}
	if _, err := reconcileUnits("compare", a.Units, b.Units); err != nil {
		return err
	}
	c := a.Value.Cmp(b.Value)
	var ok bool
	switch cmp {
	case "==":
		ok = c == 0
	case "!=":
		ok = c != 0
	case "<":
		ok = c < 0
	case "<=":
		ok = c <= 0
	case ">":
		ok = c > 0
	case ">=":
		ok = c >= 0
	default:
		return &InvariantError{Message: "unknown comparator " + cmp}
	}
	if ok {
		m.Push(Number{Value: big.NewRat(1, 1), Units: ""})
	} else {
		m.Push(Number{Value: new(big.Rat), Units: ""})
	}
	return nil
}

// Negate pops a number and pushes its additive inverse.
func (m *Machine) Negate() error {
	n, err := m.Pop()
	if err != nil {
		return err
	}
	m.Push(Number{Value: new(big.Rat).Neg(n.Value), Units: n.Units})
	return nil
}

// IfThenElse pops the "else" value, then the "then" value, then a boolean
// (empty-unit 0/1), i.e. the operands are pushed in the order condition,
// then, else; it pushes whichever branch the condition selects.
func (m *Machine) IfThenElse() error {
	elseVal, err := m.Pop()
	if err != nil {
		return err
	}
	thenVal, err := m.Pop()
	if err != nil {
		return err
	}
	cond, err := m.Pop()
	if err != nil {
		return err
	}
	if cond.Value.Sign() != 0 {
		m.Push(thenVal)
	} else {
		m.Push(elseVal)
	}
	return nil
}

// Limit pops the value to clamp; lo/hi may be nil when that bound is
// absent (`limit X to [a,]` / `[,b]`).
func (m *Machine) Limit(lo, hi *Number) error {
	n, err := m.Pop()
	if err != nil {
		return err
	}
	if lo != nil {
		loConv, err := m.Convert(*lo, n.Units, "")
		if err != nil {
			return err
		}
		if n.Value.Cmp(loConv.Value) < 0 {
			n = Number{Value: new(big.Rat).Set(loConv.Value), Units: n.Units}
		}
	}
	if hi != nil {
		hiConv, err := m.Convert(*hi, n.Units, "")
		if err != nil {
			return err
		}
		if n.Value.Cmp(hiConv.Value) > 0 {
			n = Number{Value: new(big.Rat).Set(hiConv.Value), Units: n.Units}
		}
	}
	m.Push(n)
	return nil
}

// SampleNormal pushes a deterministic-or-sampled draw from N(mean, stddev),
// carrying the mean's units.
func (m *Machine) SampleNormal(mean, stddev Number) {
	v := m.rng.Normal(mean.Float64(), stddev.Float64())
	r := new(big.Rat).SetFloat64(v)
	if r == nil {
		r = new(big.Rat)
	}
	m.Push(Number{Value: r, Units: mean.Units})
}

// SampleUniform pushes a deterministic-or-sampled draw from U(low, high),
// carrying the low bound's units.
func (m *Machine) SampleUniform(low, high Number) {
	v := m.rng.Uniform(low.Float64(), high.Float64())
	r := new(big.Rat).SetFloat64(v)
	if r == nil {
		r = new(big.Rat)
	}
	m.Push(Number{Value: r, Units: low.Units})
}
