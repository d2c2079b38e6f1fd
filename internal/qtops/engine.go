// Package qtops turns compiled statements into executable Operations: one
// variant per spec.md §4.3 form (DefineVar, SetStream, Change, Cap, Floor,
// Replace, Retire, Recharge, Recover, InitialCharge, Equals, Emit,
// EnableStream). Operations never talk to the engine's storage directly;
// they go through the Engine interface below so internal/engine can depend
// on qtops without qtops depending back on internal/engine (the consumer
// defines the interface it needs, a standard Go way to break an import
// cycle between "what runs" and "what it runs against").
package qtops

import (
	"qubectalk/internal/qtexpr"
	"qubectalk/internal/units"
)

// Engine is everything an Operation needs to read and mutate simulation
// state. internal/engine.Engine implements it; qtops never imports that
// package.
type Engine interface {
	qtexpr.StreamReader

	CurrentSubstance() string
	CurrentYear() int

	SetStream(stream string, v units.Number) error
	ChangeStream(stream string, delta units.Number) error
	CapStream(stream string, limit units.Number) error
	FloorStream(stream string, limit units.Number, displacing string) error
	Replace(volume units.Number, target, destination string) error
	Retire(volume units.Number) error
	Recharge(population, perUnitVol units.Number) error
	Recover(volume, yield units.Number) error
	InitialCharge(stream string, perUnitVol units.Number) error
	RegisterEquivalency(factor units.Number, numerator, denominator string) error
	Emit(value units.Number) error
	EnableStream(stream string) error
}

// OpContext bundles the machine, engine, and variable scope an Operation
// executes against. Scope is shared across every statement in the same
// substance/application statement list, mutated in place by DefineVar.
type OpContext struct {
	Machine *units.Machine
	Engine  Engine
	Scope   qtexpr.Scope
}

func (c *OpContext) exprCtx() *qtexpr.Context {
	return &qtexpr.Context{Machine: c.Machine, Engine: c.Engine, Scope: c.Scope}
}
