// Package units implements the push-down machine: a stack of unit-tagged
// decimal numbers plus the arithmetic and conversion rules QubecTalk
// expressions need.
package units

import (
	"fmt"
	"math/big"
)

// Number is a value paired with a symbolic unit string. Units are either
// empty (a dimensionless scalar), a simple name (kg, mt, units, unit, %,
// tCO2e, kwh, year, years), or a compound "X / Y".
type Number struct {
	Value *big.Rat
	Units string
}

// NewNumber builds a Number from a float64 convenience value. Callers that
// need exact decimal literals should build the *big.Rat directly.
func NewNumber(value float64, unitsStr string) Number {
	r := new(big.Rat).SetFloat64(value)
	if r == nil {
		r = new(big.Rat)
	}
	return Number{Value: r, Units: unitsStr}
}

// NewNumberFromString parses a decimal literal exactly (no float roundoff).
func NewNumberFromString(lit, unitsStr string) (Number, error) {
	r, ok := new(big.Rat).SetString(lit)
	if !ok {
		return Number{}, fmt.Errorf("invalid numeric literal %q", lit)
	}
	return Number{Value: r, Units: unitsStr}, nil
}

// Float64 returns the value as a float64, for presentation/reporting only.
func (n Number) Float64() float64 {
	if n.Value == nil {
		return 0
	}
	f, _ := n.Value.Float64()
	return f
}

// IsEmptyUnits reports whether n is a dimensionless scalar.
func (n Number) IsEmptyUnits() bool { return n.Units == "" }

func (n Number) String() string {
	if n.Units == "" {
		return n.Value.FloatString(6)
	}
	return fmt.Sprintf("%s %s", n.Value.FloatString(6), n.Units)
}

// WithValue returns a copy of n with a new numeric value and the same units.
func (n Number) WithValue(v *big.Rat) Number {
	return Number{Value: v, Units: n.Units}
}

// Zero returns the additive identity in the given units.
func Zero(unitsStr string) Number {
	return Number{Value: new(big.Rat), Units: unitsStr}
}
