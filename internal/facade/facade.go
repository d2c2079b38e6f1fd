// Package facade is QubecTalk's single entry point: given source text and a
// scenario name, parse, compile, and run that scenario, returning either
// the ordered result rows or the failure that stopped it (spec.md §6.3).
package facade

import (
	"fmt"
	"log"
	"os"
	"strings"

	"qubectalk/internal/engine"
	"qubectalk/internal/qtcompile"
	"qubectalk/internal/qtparse"
	"qubectalk/internal/units"
)

// Facade drives parse -> compile -> execute -> collect for one scenario at
// a time. The zero value is ready to use (deterministic RNG, non-strict
// cross-reference reads, no logging).
type Facade struct {
	// RNG is injected into the engine's machine for sampling primitives. A
	// nil RNG defaults to units.MeanRNG (deterministic mode).
	RNG units.RNG
	// Strict makes cross-substance reads of a nonexistent (application,
	// substance) fatal instead of yielding zero with a logged warning.
	Strict bool
	// Logger receives non-fatal warnings (e.g. undefined cross-references
	// in non-strict mode). Defaults to discarding when nil.
	Logger *log.Logger
}

func (f *Facade) rng() units.RNG {
	if f.RNG == nil {
		return units.MeanRNG{}
	}
	return f.RNG
}

// CompileError wraps the list of semantic errors qtcompile.Compile
// returned, satisfying the error interface for callers that just want one
// value to check.
type CompileError struct{ Errors []qtcompile.CompileError }

func (e *CompileError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, ce := range e.Errors {
		parts[i] = ce.Error()
	}
	return "compile errors: " + strings.Join(parts, "; ")
}

// Run parses, compiles, and executes scenarioName from source. It returns
// exactly one of: a non-empty result list, a non-empty ParseError list, or
// a non-nil error (compile failure, unknown scenario, or execution
// failure).
func (f *Facade) Run(source, scenarioName string) ([]engine.Result, []qtparse.ParseError, error) {
	parseResult := qtparse.Parse(source)
	if parseResult.HasErrors() {
		return nil, parseResult.Errors(), nil
	}
	prog, _ := parseResult.Program()

	compiled, compileErrs := qtcompile.Compile(prog)
	if len(compileErrs) > 0 {
		return nil, nil, &CompileError{Errors: compileErrs}
	}

	var scenario *qtcompile.ParsedScenario
	for _, s := range compiled.Scenarios {
		if s.Name == scenarioName {
			scenario = s
			break
		}
	}
	if scenario == nil {
		return nil, nil, fmt.Errorf("no such scenario %q", scenarioName)
	}

	results, err := engine.RunScenario(compiled, scenario, f.rng(), f.Strict, f.Logger)
	if err != nil {
		return nil, nil, err
	}
	return results, nil, nil
}

// RunFile reads path and runs scenarioName from its contents.
func (f *Facade) RunFile(path, scenarioName string) ([]engine.Result, []qtparse.ParseError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return f.Run(string(data), scenarioName)
}

// ListScenarios parses and compiles source, returning the names of every
// scenario it declares, in source order. Used by tooling (internal/mcpapi,
// internal/runner) that needs to enumerate options before picking one.
func ListScenarios(source string) ([]string, []qtparse.ParseError, error) {
	parseResult := qtparse.Parse(source)
	if parseResult.HasErrors() {
		return nil, parseResult.Errors(), nil
	}
	prog, _ := parseResult.Program()
	compiled, compileErrs := qtcompile.Compile(prog)
	if len(compileErrs) > 0 {
		return nil, nil, &CompileError{Errors: compileErrs}
	}
	names := make([]string, len(compiled.Scenarios))
	for i, s := range compiled.Scenarios {
		names[i] = s.Name
	}
	return names, nil, nil
}
