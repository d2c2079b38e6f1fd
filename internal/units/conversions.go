package units

import "math/big"

// fixedRatio returns the number of "to" units in one "from" unit, for the
// small set of exact conversions the machine always knows about, regardless
// of any substance-specific registrations.
func fixedRatio(from, to string) (*big.Rat, bool) {
	switch {
	case from == to:
		return big.NewRat(1, 1), true
	case from == "mt" && to == "kg":
		return big.NewRat(1000, 1), true
	case from == "kg" && to == "mt":
		return big.NewRat(1, 1000), true
	case from == "year" && to == "years", from == "years" && to == "year":
		return big.NewRat(1, 1), true
	case from == "%" && to == "":
		return big.NewRat(1, 100), true
	case from == "" && to == "%":
		return big.NewRat(100, 1), true
	case from == "":
		return big.NewRat(1, 1), true
	}
	return nil, false
}

// Conversions holds the per-substance registrations (equivalencies and
// initial-charge coefficients) that supplement the fixed conversion table.
// The engine rebuilds/replaces this whenever the machine's cursor moves to a
// different substance.
type Conversions struct {
	// Equivalencies maps a unit name (e.g. "tCO2e", "kwh") to the amount of
	// that unit equivalent to one "mt" of the substance, as registered by an
	// `equals` statement (e.g. `equals 5 tCO2e / mt` => Equivalencies["tCO2e"] = 5).
	Equivalencies map[string]*big.Rat

	// InitialCharge maps a stream name to its kg-per-unit coefficient, as
	// registered by `initial charge ... for STREAM`.
	InitialCharge map[string]*big.Rat
}

// NewConversions returns an empty registration set.
func NewConversions() *Conversions {
	return &Conversions{
		Equivalencies: make(map[string]*big.Rat),
		InitialCharge: make(map[string]*big.Rat),
	}
}

// RegisterEquivalency records `factor numerator / mt` (e.g. 5 tCO2e / mt).
// Only "/ mt" denominators occur in practice (tCO2e/mt, kwh/mt); the
// numerator unit is the key.
func (c *Conversions) RegisterEquivalency(numerator string, factor *big.Rat) {
	c.Equivalencies[numerator] = new(big.Rat).Set(factor)
}

// RegisterInitialCharge records a stream's kg-per-unit coefficient.
func (c *Conversions) RegisterInitialCharge(stream string, kgPerUnit *big.Rat) {
	c.InitialCharge[stream] = new(big.Rat).Set(kgPerUnit)
}

// ratio returns the multiplier to convert one "from" unit into "to" units,
// consulting the fixed table, then registered equivalencies (chained through
// "mt" as an intermediate, so e.g. kg<->tCO2e works via kg<->mt<->tCO2e),
// then initial-charge coefficients (units<->kg for a specific stream).
func (c *Conversions) ratio(from, to, stream string) (*big.Rat, bool) {
	if r, ok := fixedRatio(from, to); ok {
		return r, true
	}
	if c != nil {
		if r, ok := c.equivalencyRatio(from, to); ok {
			return r, true
		}
		if stream != "" {
			if from == "units" && to == "kg" {
				if factor, ok := c.InitialCharge[stream]; ok {
					return factor, true
				}
			}
			if from == "kg" && to == "units" {
				if factor, ok := c.InitialCharge[stream]; ok {
					if factor.Sign() == 0 {
						return nil, false
					}
					return new(big.Rat).Inv(factor), true
				}
			}
		}
	}
	return nil, false
}

// equivalencyRatio resolves from/to through "mt" as an intermediate: any
// unit reachable from "mt" via the fixed table (mt itself, or kg via the
// fixed mt<->kg ratio) can be converted to/from a registered equivalency
// unit (tCO2e, kwh, ...) by chaining the fixed mt-ratio with the
// registered factor.
func (c *Conversions) equivalencyRatio(from, to string) (*big.Rat, bool) {
	if fromMt, ok := fixedRatio(from, "mt"); ok {
		if factor, ok := c.Equivalencies[to]; ok {
			return new(big.Rat).Mul(fromMt, factor), true
		}
	}
	if toMt, ok := fixedRatio("mt", to); ok {
		if factor, ok := c.Equivalencies[from]; ok {
			if factor.Sign() == 0 {
				return nil, false
			}
			return new(big.Rat).Mul(new(big.Rat).Inv(factor), toMt), true
		}
	}
	return nil, false
}
