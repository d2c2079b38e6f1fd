// Package engine holds per-(application, substance, year) stream state and
// implements the semantics of every stream-mutating statement (spec.md
// §4.5). It implements qtops.Engine so operations can read/write through
// it without qtops importing this package.
package engine

import (
	"fmt"
	"log"
	"math/big"

	"qubectalk/internal/qtops"
	"qubectalk/internal/units"
)

type key struct{ app, sub string }

// substanceState is the mutable record for one (application, substance)
// pair, carried forward year to year.
type substanceState struct {
	enabled map[string]bool

	manufacture, imp, export  units.Number
	equipment, priorEquipment units.Number
	emitAccumulator           units.Number
}

func newSubstanceState() *substanceState {
	return &substanceState{
		enabled:         map[string]bool{},
		manufacture:     units.Zero("kg"),
		imp:             units.Zero("kg"),
		export:          units.Zero("kg"),
		equipment:       units.Zero("units"),
		priorEquipment:  units.Zero("units"),
		emitAccumulator: units.Zero("tCO2e"),
	}
}

func (s *substanceState) clone() *substanceState {
	c := *s
	c.enabled = make(map[string]bool, len(s.enabled))
	for k, v := range s.enabled {
		c.enabled[k] = v
	}
	return &c
}

// Engine is the stream engine for a single scenario run. It is not
// reused across scenarios (spec.md §5: "each builds a fresh engine").
type Engine struct {
	states   map[key]*substanceState
	snapshot map[key]*substanceState // start-of-year state, served to cross-substance reads
	conv     map[key]*units.Conversions
	order    []key

	capBaseline   map[string]units.Number
	floorBaseline map[string]units.Number

	// pendingDisplacement accumulates floor-displacement deltas (and, as
	// negative deltas, replace additions) for the year, keyed by the
	// displaced or destination (application, substance) and stream.
	// Applied once at year end, after every substance's own statements
	// have run, so a displaced substance's later `set`/`change` for the
	// same stream can never silently discard the displacement (spec.md
	// §4.3 item 5, §8 E3).
	pendingDisplacement map[key]map[string]*big.Rat

	cursorApp, cursorSub string
	year, simStart, simEnd int

	strict bool
	logger *log.Logger

	machine *units.Machine

	scenarioName string
	results      []Result
}

// New builds a fresh engine for one scenario run.
func New(scenarioName string, simStart, simEnd int, rng units.RNG, strict bool, logger *log.Logger) *Engine {
	e := &Engine{
		states:              map[key]*substanceState{},
		snapshot:            map[key]*substanceState{},
		conv:                map[key]*units.Conversions{},
		capBaseline:         map[string]units.Number{},
		floorBaseline:       map[string]units.Number{},
		pendingDisplacement: map[key]map[string]*big.Rat{},
		simStart:            simStart,
		simEnd:              simEnd,
		strict:              strict,
		logger:              logger,
		scenarioName:        scenarioName,
	}
	e.machine = units.NewMachine(units.NewConversions(), rng)
	return e
}

func (e *Engine) cursorKey() key { return key{e.cursorApp, e.cursorSub} }

// SetApplication moves the cursor to application name.
func (e *Engine) SetApplication(name string) { e.cursorApp = name }

// SetSubstance moves the cursor to substance name under the current
// application, auto-creating its state and rebinding the machine's
// conversions to that substance's registrations.
func (e *Engine) SetSubstance(name string) {
	e.cursorSub = name
	e.ensureState(e.cursorKey())
	e.machine.SetConversions(e.conv[e.cursorKey()])
}

func (e *Engine) ensureState(k key) *substanceState {
	st, ok := e.states[k]
	if !ok {
		st = newSubstanceState()
		e.states[k] = st
		e.conv[k] = units.NewConversions()
		e.order = append(e.order, k)
	}
	return st
}

// CurrentApplication implements qtexpr.StreamReader / qtops.Engine.
func (e *Engine) CurrentApplication() string { return e.cursorApp }

// CurrentSubstance implements qtops.Engine.
func (e *Engine) CurrentSubstance() string { return e.cursorSub }

// CurrentYear implements qtops.Engine.
func (e *Engine) CurrentYear() int { return e.year }

func nativeUnit(stream string) string {
	switch stream {
	case "manufacture", "import", "export", "sales":
		return "kg"
	case "equipment", "priorEquipment":
		return "units"
	default:
		return ""
	}
}

func mutableNative(stream string) (string, bool) {
	switch stream {
	case "manufacture", "import", "export", "equipment":
		return nativeUnit(stream), true
	default:
		return "", false
	}
}

func getField(st *substanceState, stream string) units.Number {
	switch stream {
	case "manufacture":
		return st.manufacture
	case "import":
		return st.imp
	case "export":
		return st.export
	case "sales":
		v := new(big.Rat).Add(st.manufacture.Value, st.imp.Value)
		v.Sub(v, st.export.Value)
		return units.Number{Value: v, Units: "kg"}
	case "equipment":
		return st.equipment
	case "priorEquipment":
		return st.priorEquipment
	default:
		return units.Number{Value: new(big.Rat), Units: ""}
	}
}

func setField(st *substanceState, stream string, v units.Number) {
	switch stream {
	case "manufacture":
		st.manufacture = v
	case "import":
		st.imp = v
	case "export":
		st.export = v
	case "equipment":
		st.equipment = v
	}
}

// GetStream implements qtexpr.StreamReader / qtops.Engine. Reads of the
// current (application, substance) see live, same-year updates; reads that
// cross to a different substance are served from the start-of-year
// snapshot so statement order across substances never changes results
// (spec.md §9, resolving the "stream reads across substances" open
// question with snapshot semantics).
func (e *Engine) GetStream(app, sub, stream string) (units.Number, error) {
	k := key{app, sub}
	if app == e.cursorApp && sub == e.cursorSub {
		st := e.ensureState(k)
		return e.readField(st, app, sub, stream)
	}
	st, ok := e.snapshot[k]
	if !ok {
		if e.strict {
			return units.Zero(nativeUnit(stream)), &UndefinedReferenceError{Application: app, Substance: sub}
		}
		if e.logger != nil {
			e.logger.Printf("warning: get %s of %q in %q: undefined reference, yielding zero", stream, sub, app)
		}
		return units.Zero(nativeUnit(stream)), nil
	}
	return e.readField(st, app, sub, stream)
}

func (e *Engine) readField(st *substanceState, app, sub, stream string) (units.Number, error) {
	switch stream {
	case "sales", "priorEquipment":
		return getField(st, stream), nil
	default:
		if !st.enabled[stream] {
			return units.Zero(nativeUnit(stream)), &UndefinedStreamError{Application: app, Substance: sub, Stream: stream}
		}
		return getField(st, stream), nil
	}
}

// SetStream implements qtops.Engine.
func (e *Engine) SetStream(stream string, v units.Number) error {
	native, ok := mutableNative(stream)
	if !ok {
		return fmt.Errorf("cannot set derived stream %q", stream)
	}
	st := e.ensureState(e.cursorKey())
	converted, err := e.machine.Convert(v, native, stream)
	if err != nil {
		return err
	}
	setField(st, stream, converted)
	st.enabled[stream] = true
	return nil
}

// ChangeStream implements qtops.Engine. delta in "%" is relative to the
// stream's current value; otherwise it is absolute (spec.md §4.3 item 3).
func (e *Engine) ChangeStream(stream string, delta units.Number) error {
	native, ok := mutableNative(stream)
	if !ok {
		return fmt.Errorf("cannot change derived stream %q", stream)
	}
	st := e.ensureState(e.cursorKey())
	cur := getField(st, stream)
	deltaAbs, err := e.resolveRelativeOrAbsolute(delta, cur, native, stream)
	if err != nil {
		return err
	}
	setField(st, stream, units.Number{Value: new(big.Rat).Add(cur.Value, deltaAbs.Value), Units: cur.Units})
	st.enabled[stream] = true
	return nil
}

// resolveRelativeOrAbsolute converts a "%"-unit delta into an absolute
// amount of base's units (base * delta%), or converts an absolute delta
// into the stream's native unit.
func (e *Engine) resolveRelativeOrAbsolute(delta, base units.Number, native, stream string) (units.Number, error) {
	if delta.Units == "%" {
		frac, err := e.machine.Convert(delta, "", "")
		if err != nil {
			return units.Number{}, err
		}
		return units.Number{Value: new(big.Rat).Mul(base.Value, frac.Value), Units: base.Units}, nil
	}
	return e.machine.Convert(delta, native, stream)
}

// CapStream implements qtops.Engine. A "%" limit is relative to the
// stream's value the first time a cap is applied to it this year, so
// stacked percentage caps (across policy layers) do not compound
// (spec.md §4.3 item 4).
func (e *Engine) CapStream(stream string, limit units.Number) error {
	native, ok := mutableNative(stream)
	if !ok {
		return fmt.Errorf("cannot cap derived stream %q", stream)
	}
	st := e.ensureState(e.cursorKey())
	cur := getField(st, stream)
	capVal, err := e.resolveBound(e.capBaseline, cur, limit, native, stream)
	if err != nil {
		return err
	}
	if cur.Value.Cmp(capVal.Value) > 0 {
		setField(st, stream, capVal)
	}
	return nil
}

// FloorStream implements qtops.Engine. When the target rises to meet the
// floor, the added volume is subtracted from `displacing`'s same stream in
// the same application (spec.md §4.3 item 5), unless displacing is "". The
// subtraction is not applied to `displacing`'s state directly: since
// runBlock finishes one substance's whole statement list before moving to
// the next (internal/engine/run.go), `displacing` may not have run its own
// statements for the year yet, and a later plain `set` there would silently
// overwrite a same-pass mutation. Instead the delta is queued and applied
// once at year end, after every substance's statements have run (spec.md
// §8 E3).
func (e *Engine) FloorStream(stream string, limit units.Number, displacing string) error {
	native, ok := mutableNative(stream)
	if !ok {
		return fmt.Errorf("cannot floor derived stream %q", stream)
	}
	st := e.ensureState(e.cursorKey())
	cur := getField(st, stream)
	floorVal, err := e.resolveBound(e.floorBaseline, cur, limit, native, stream)
	if err != nil {
		return err
	}
	if cur.Value.Cmp(floorVal.Value) < 0 {
		delta := new(big.Rat).Sub(floorVal.Value, cur.Value)
		setField(st, stream, floorVal)
		if displacing != "" {
			dk := key{e.cursorApp, displacing}
			e.ensureState(dk)
			perStream, ok := e.pendingDisplacement[dk]
			if !ok {
				perStream = map[string]*big.Rat{}
				e.pendingDisplacement[dk] = perStream
			}
			if existing, ok := perStream[stream]; ok {
				existing.Add(existing, delta)
			} else {
				perStream[stream] = new(big.Rat).Set(delta)
			}
		}
	}
	return nil
}

// applyPendingDisplacement subtracts every queued floor-displacement delta
// (a replace addition is queued as a negative delta)
// from the displaced substance's end-of-year stream value. Called once per
// year, after every substance's own statements have run.
func (e *Engine) applyPendingDisplacement() {
	for dk, perStream := range e.pendingDisplacement {
		dst := e.ensureState(dk)
		for stream, delta := range perStream {
			dcur := getField(dst, stream)
			setField(dst, stream, units.Number{Value: new(big.Rat).Sub(dcur.Value, delta), Units: dcur.Units})
			dst.enabled[stream] = true
		}
	}
	e.pendingDisplacement = map[key]map[string]*big.Rat{}
}

// resolveBound turns a cap/floor limit into an absolute value in native
// units, tracking the per-year baseline used by percentage bounds.
func (e *Engine) resolveBound(baseline map[string]units.Number, cur, limit units.Number, native, stream string) (units.Number, error) {
	if limit.Units == "%" {
		bkey := e.cursorApp + "|" + e.cursorSub + "|" + stream
		base, exists := baseline[bkey]
		if !exists {
			base = cur
			baseline[bkey] = cur
		}
		frac, err := e.machine.Convert(limit, "", "")
		if err != nil {
			return units.Number{}, err
		}
		return units.Number{Value: new(big.Rat).Mul(base.Value, frac.Value), Units: base.Units}, nil
	}
	return e.machine.Convert(limit, native, stream)
}

// Replace implements qtops.Engine: moves volume, already converted to
// target's native mass, out of the current substance and into destination
// substance's same stream, unconverted (conservation is in mass, not
// destination-specific coefficients; spec.md §4.3 item 6, E4). The source
// is reduced at once; the destination's addition is queued in
// pendingDisplacement and applied at year end, like a floor displacement,
// so the destination's own later `set`/`change` cannot discard it.
func (e *Engine) Replace(volume units.Number, target, destination string) error {
	native, ok := mutableNative(target)
	if !ok {
		return fmt.Errorf("cannot replace derived stream %q", target)
	}
	st := e.ensureState(e.cursorKey())
	cur := getField(st, target)
	vol, err := e.machine.Convert(volume, native, target)
	if err != nil {
		return err
	}
	setField(st, target, units.Number{Value: new(big.Rat).Sub(cur.Value, vol.Value), Units: cur.Units})

	dk := key{e.cursorApp, destination}
	e.ensureState(dk)
	if e.pendingDisplacement[dk] == nil {
		e.pendingDisplacement[dk] = map[string]*big.Rat{}
	}
	if existing, ok := e.pendingDisplacement[dk][target]; ok {
		existing.Sub(existing, vol.Value)
	} else {
		e.pendingDisplacement[dk][target] = new(big.Rat).Neg(vol.Value)
	}
	return nil
}

// Retire implements qtops.Engine: reduces equipment.
func (e *Engine) Retire(volume units.Number) error {
	st := e.ensureState(e.cursorKey())
	vol, err := e.machine.Convert(volume, "units", "equipment")
	if err != nil {
		return err
	}
	st.equipment = units.Number{Value: new(big.Rat).Sub(st.equipment.Value, vol.Value), Units: st.equipment.Units}
	return nil
}

// Recharge implements qtops.Engine: a fraction of priorEquipment needs a
// maintenance charge, added to manufacture demand (spec.md §4.3 item 8);
// the added mass flows into sales, and from there into the equivalency-
// derived emissions computed when the result snapshot is built.
func (e *Engine) Recharge(population, perUnitVol units.Number) error {
	st := e.ensureState(e.cursorKey())
	frac, err := e.machine.Convert(population, "", "")
	if err != nil {
		return err
	}
	rechargedUnits := new(big.Rat).Mul(st.priorEquipment.Value, frac.Value)
	rechargeMass := new(big.Rat).Mul(rechargedUnits, perUnitVol.Value)
	st.manufacture = units.Number{Value: new(big.Rat).Add(st.manufacture.Value, rechargeMass), Units: "kg"}
	st.enabled["manufacture"] = true
	return nil
}

// Recover implements qtops.Engine: reclaims a yield fraction of retired
// material, reducing virgin manufacture demand by that amount.
func (e *Engine) Recover(volume, yield units.Number) error {
	st := e.ensureState(e.cursorKey())
	vol, err := e.machine.Convert(volume, "kg", "")
	if err != nil {
		return err
	}
	frac, err := e.machine.Convert(yield, "", "")
	if err != nil {
		return err
	}
	recovered := new(big.Rat).Mul(vol.Value, frac.Value)
	st.manufacture = units.Number{Value: new(big.Rat).Sub(st.manufacture.Value, recovered), Units: "kg"}
	return nil
}

// InitialCharge implements qtops.Engine: registers the kg/unit coefficient
// for stream, used whenever its value is converted to/from "units".
func (e *Engine) InitialCharge(stream string, perUnitVol units.Number) error {
	e.conv[e.cursorKey()].RegisterInitialCharge(stream, perUnitVol.Value)
	return nil
}

// RegisterEquivalency implements qtops.Engine: registers `factor numerator
// / mt` for the current substance.
func (e *Engine) RegisterEquivalency(factor units.Number, numerator, denominator string) error {
	if denominator != "mt" {
		return fmt.Errorf("only mt-denominated equivalencies are supported, got %q / %q", numerator, denominator)
	}
	e.conv[e.cursorKey()].RegisterEquivalency(numerator, factor.Value)
	return nil
}

// Emit implements qtops.Engine: accumulates explicit emissions, converted
// to tCO2e, for the current (application, substance, year).
func (e *Engine) Emit(value units.Number) error {
	st := e.ensureState(e.cursorKey())
	tco2e, err := e.machine.Convert(value, "tCO2e", "")
	if err != nil {
		return err
	}
	st.emitAccumulator = units.Number{Value: new(big.Rat).Add(st.emitAccumulator.Value, tco2e.Value), Units: "tCO2e"}
	return nil
}

// EnableStream implements qtops.Engine: marks stream active without
// assigning it a value.
func (e *Engine) EnableStream(stream string) error {
	st := e.ensureState(e.cursorKey())
	st.enabled[stream] = true
	return nil
}

var _ qtops.Engine = (*Engine)(nil)
