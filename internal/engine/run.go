package engine

import (
	"fmt"
	"log"
	"math/big"

	"qubectalk/internal/qtcompile"
	"qubectalk/internal/qtexpr"
	"qubectalk/internal/qtops"
	"qubectalk/internal/qtparse"
	"qubectalk/internal/units"
)

// compiledBlock is one application's worth of compiled operations for a
// single policy layer: app-level global operations plus one substance's
// worth of operations, keyed by substance name.
type compiledBlock struct {
	appGlobals []*qtops.Operation
	substances map[string][]*qtops.Operation
	order      []string // substance iteration order
}

func compileApplications(apps map[string]*qtcompile.ParsedApplication, order []string) (map[string]*compiledBlock, error) {
	out := make(map[string]*compiledBlock, len(apps))
	for _, appName := range order {
		app := apps[appName]
		globals, err := qtops.BuildAll(app.Statements)
		if err != nil {
			return nil, fmt.Errorf("application %q globals: %w", appName, err)
		}
		block := &compiledBlock{appGlobals: globals, substances: map[string][]*qtops.Operation{}}
		for _, subName := range app.Order {
			ops, err := qtops.BuildAll(app.Substances[subName].Statements)
			if err != nil {
				return nil, fmt.Errorf("application %q substance %q: %w", appName, subName, err)
			}
			block.substances[subName] = ops
			block.order = append(block.order, subName)
		}
		out[appName] = block
	}
	return out, nil
}

// RunScenario executes one scenario end-to-end: the default policy every
// year, then each named policy in order, advancing years between steps
// (spec.md §4.5, §2 data flow). It returns the ordered result rows, or the
// first execution error encountered (wrapped as *ExecutionError).
func RunScenario(prog *qtcompile.ParsedProgram, scenario *qtcompile.ParsedScenario, rng units.RNG, strict bool, logger *log.Logger) ([]Result, error) {
	setupMachine := units.NewMachine(units.NewConversions(), rng)
	startYear, err := evalYearExpr(scenario.StartYear, setupMachine)
	if err != nil {
		return nil, fmt.Errorf("scenario %q startYear: %w", scenario.Name, err)
	}
	endYear, err := evalYearExpr(scenario.EndYear, setupMachine)
	if err != nil {
		return nil, fmt.Errorf("scenario %q endYear: %w", scenario.Name, err)
	}
	if startYear > endYear {
		return nil, fmt.Errorf("scenario %q: startYear %d > endYear %d", scenario.Name, startYear, endYear)
	}

	sceneScope := qtexpr.Scope{}
	if len(scenario.GlobalDefs) > 0 {
		globalOps, err := qtops.BuildAll(scenario.GlobalDefs)
		if err != nil {
			return nil, fmt.Errorf("scenario %q globals: %w", scenario.Name, err)
		}
		ctx := &qtops.OpContext{Machine: setupMachine, Scope: sceneScope}
		for _, op := range globalOps {
			if err := op.Execute(ctx, startYear, startYear, endYear); err != nil {
				return nil, fmt.Errorf("scenario %q globals: %w", scenario.Name, err)
			}
		}
	}

	defaultBlocks, err := compileApplications(prog.Default.Applications, prog.Default.Order)
	if err != nil {
		return nil, err
	}

	type layeredPolicy struct {
		name   string
		order  []string
		blocks map[string]*compiledBlock
	}
	var policies []layeredPolicy
	for _, name := range scenario.Policies {
		pol, ok := prog.Policies[name]
		if !ok {
			return nil, fmt.Errorf("scenario %q: undefined policy %q", scenario.Name, name)
		}
		blocks, err := compileApplications(pol.Applications, pol.Order)
		if err != nil {
			return nil, err
		}
		policies = append(policies, layeredPolicy{name: name, order: pol.Order, blocks: blocks})
	}

	eng := New(scenario.Name, startYear, endYear, rng, strict, logger)
	scopes := map[key]qtexpr.Scope{}
	appScopes := map[string]qtexpr.Scope{}

	scopeFor := func(app, sub string) qtexpr.Scope {
		k := key{app, sub}
		s, ok := scopes[k]
		if !ok {
			s = qtexpr.Scope{}
			for name, v := range sceneScope {
				s[name] = v
			}
			scopes[k] = s
		}
		return s
	}
	appScopeFor := func(app string) qtexpr.Scope {
		s, ok := appScopes[app]
		if !ok {
			s = qtexpr.Scope{}
			for name, v := range sceneScope {
				s[name] = v
			}
			appScopes[app] = s
		}
		return s
	}

	runBlock := func(appName string, block *compiledBlock, year int) error {
		eng.SetApplication(appName)
		appCtx := &qtops.OpContext{Machine: eng.machine, Engine: eng, Scope: appScopeFor(appName)}
		for i, op := range block.appGlobals {
			if err := op.Execute(appCtx, year, startYear, endYear); err != nil {
				return &ExecutionError{Kind: op.Kind, Message: err.Error(), OpIndex: i}
			}
		}
		for _, subName := range block.order {
			eng.SetSubstance(subName)
			ctx := &qtops.OpContext{Machine: eng.machine, Engine: eng, Scope: scopeFor(appName, subName)}
			// Declarative bindings (initial charge, equals, enable) run before
			// the substance's other statements, so their position in the
			// source does not change the result.
			for pass := 0; pass < 2; pass++ {
				for i, op := range block.substances[subName] {
					declarative := op.Kind == "initial charge" || op.Kind == "equals" || op.Kind == "enable"
					if declarative != (pass == 0) {
						continue
					}
					if err := op.Execute(ctx, year, startYear, endYear); err != nil {
						return &ExecutionError{Kind: op.Kind, Message: err.Error(), OpIndex: i}
					}
				}
			}
		}
		return nil
	}

	for year := startYear; year <= endYear; year++ {
		eng.beginYear(year)

		for _, appName := range prog.Default.Order {
			if err := runBlock(appName, defaultBlocks[appName], year); err != nil {
				return nil, err
			}
		}
		for _, p := range policies {
			for _, appName := range p.order {
				if err := runBlock(appName, p.blocks[appName], year); err != nil {
					return nil, fmt.Errorf("policy %q: %w", p.name, err)
				}
			}
		}

		eng.endYear(year)
	}

	return eng.results, nil
}

func evalYearExpr(e qtparse.Expr, m *units.Machine) (int, error) {
	n, err := qtexpr.Eval(e, &qtexpr.Context{Machine: m, Scope: qtexpr.Scope{}})
	if err != nil {
		return 0, err
	}
	if !n.Value.IsInt() {
		f, _ := n.Value.Float64()
		return int(f), nil
	}
	return int(n.Value.Num().Int64()), nil
}

// beginYear resets per-year bookkeeping and takes the cross-substance read
// snapshot from the state as it stood at the end of the previous year.
func (e *Engine) beginYear(year int) {
	e.year = year
	e.capBaseline = map[string]units.Number{}
	e.floorBaseline = map[string]units.Number{}
	e.snapshot = make(map[key]*substanceState, len(e.states))
	for k, st := range e.states {
		e.snapshot[k] = st.clone()
	}
}

// endYear applies the year's queued floor-displacement and replace deltas, snapshots
// this year's results, then promotes equipment into priorEquipment and
// zeroes the annual flow streams ahead of next year (spec.md §4.5,
// testable property 4).
func (e *Engine) endYear(year int) {
	e.applyPendingDisplacement()
	for _, k := range e.order {
		st := e.states[k]
		e.results = append(e.results, e.buildResult(k, year, st))
	}
	for _, st := range e.states {
		st.priorEquipment = st.equipment
		st.manufacture = units.Zero("kg")
		st.imp = units.Zero("kg")
		st.export = units.Zero("kg")
		st.emitAccumulator = units.Zero("tCO2e")
	}
}

func (e *Engine) buildResult(k key, year int, st *substanceState) Result {
	sales := getField(st, "sales")
	salesMt := new(big.Rat).Quo(sales.Value, big.NewRat(1000, 1))

	emissions := new(big.Rat).Set(st.emitAccumulator.Value)
	energy := new(big.Rat)
	if conv := e.conv[k]; conv != nil {
		if factor, ok := conv.Equivalencies["tCO2e"]; ok {
			emissions.Add(emissions, new(big.Rat).Mul(salesMt, factor))
		}
		if factor, ok := conv.Equivalencies["kwh"]; ok {
			energy.Add(energy, new(big.Rat).Mul(salesMt, factor))
		}
	}

	return Result{
		Scenario:       e.scenarioName,
		Application:    k.app,
		Substance:      k.sub,
		Year:           year,
		Manufacture:    st.manufacture,
		Import:         st.imp,
		Export:         st.export,
		Sales:          sales,
		Equipment:      st.equipment,
		PriorEquipment: st.priorEquipment,
		Emissions:      units.Number{Value: emissions, Units: "tCO2e"},
		Energy:         units.Number{Value: energy, Units: "kwh"},
	}
}
