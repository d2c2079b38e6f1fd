// Package lint enriches structural compiler diagnostics with Mangle-derived
// ones (SPEC_FULL.md §4.6): it compiles a ParsedProgram into Datalog facts,
// asks github.com/google/mangle to evaluate a small fixed rule set over
// them, and reads back the derived facts as Diagnostics. This never blocks
// execution the way a qtcompile.CompileError does — it only adds to what
// the validate-program MCP tool reports back to a caller.
package lint

import (
	"bytes"
	"fmt"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"qubectalk/internal/qtcompile"
)

// rules derives diagnostics from the base facts emitted by toFacts:
//   - undefined_policy_reference(Scenario, Policy): a scenario names a
//     policy the program never declares (qtcompile already rejects this as
//     a hard CompileError; Mangle re-derives it as a cross-check).
//   - unreachable_policy(Policy): a policy is declared but no scenario ever
//     references it.
//   - pair_touch(App, PolicyA, PolicyB): two policies (possibly the same
//     one twice) both touch App. Lint filters this down to distinct,
//     order-independent pairs in Go — an order-sensitivity warning for
//     spec.md §8 invariant 7.
const rules = `
undefined_policy_reference(Scenario, Policy) :-
  scenario_uses_policy(Scenario, Policy),
  !policy_exists(Policy).

policy_referenced(Policy) :-
  scenario_uses_policy(AnyScenario, Policy).

unreachable_policy(Policy) :-
  policy_exists(Policy),
  !policy_referenced(Policy).

pair_touch(App, PolicyA, PolicyB) :-
  policy_touches(PolicyA, App),
  policy_touches(PolicyB, App).
`

// Severity classifies a Diagnostic for callers that want to filter.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityInfo
)

// Diagnostic is one Mangle-derived finding, ready for presentation alongside
// qtcompile.CompileError values.
type Diagnostic struct {
	Kind     string
	Message  string
	Severity Severity
}

// Lint evaluates the fixed rule set over prog's structure and returns every
// derived diagnostic. It never returns a qtcompile.CompileError-equivalent
// failure: a Mangle analysis/eval error is returned as the error value and
// should be treated as "diagnostics unavailable", not as a program defect.
func Lint(prog *qtcompile.ParsedProgram) ([]Diagnostic, error) {
	sourceUnit, err := parse.Unit(bytes.NewReader([]byte(rules)))
	if err != nil {
		return nil, fmt.Errorf("parse lint rules: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(sourceUnit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return nil, fmt.Errorf("analyze lint rules: %w", err)
	}

	store := factstore.NewSimpleInMemoryStore()
	for _, f := range toFacts(prog) {
		store.Add(f)
	}
	if err := engine.EvalProgram(programInfo, store); err != nil {
		return nil, fmt.Errorf("eval lint rules: %w", err)
	}

	var diags []Diagnostic
	diags = append(diags, readUnary(store, "unreachable_policy", func(policy string) Diagnostic {
		return Diagnostic{
			Kind:     "unreachable_policy",
			Message:  fmt.Sprintf("policy %q is never referenced by any scenario", policy),
			Severity: SeverityInfo,
		}
	})...)
	diags = append(diags, readBinary(store, "undefined_policy_reference", func(scenario, policy string) Diagnostic {
		return Diagnostic{
			Kind:     "undefined_policy_reference",
			Message:  fmt.Sprintf("scenario %q references undefined policy %q", scenario, policy),
			Severity: SeverityWarning,
		}
	})...)
	diags = append(diags, samePairConflicts(readTernary(store, "pair_touch"))...)

	return diags, nil
}

// samePairConflicts turns raw pair_touch(App, PolicyA, PolicyB) facts -
// which include self-pairs and both orderings - into one diagnostic per
// distinct, order-independent (App, PolicyA, PolicyB) triple.
func samePairConflicts(pairs [][3]string) []Diagnostic {
	seen := map[string]bool{}
	var diags []Diagnostic
	for _, p := range pairs {
		app, a, b := p[0], p[1], p[2]
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		key := app + "|" + a + "|" + b
		if seen[key] {
			continue
		}
		seen[key] = true
		diags = append(diags, Diagnostic{
			Kind:     "same_pair_conflict",
			Message:  fmt.Sprintf("policies %q and %q both modify application %q; layering order determines the outcome", a, b, app),
			Severity: SeverityWarning,
		})
	}
	return diags
}

func readUnary(store factstore.FactStore, predicate string, build func(string) Diagnostic) []Diagnostic {
	var out []Diagnostic
	query := ast.Atom{
		Predicate: ast.PredicateSym{Symbol: predicate, Arity: 1},
		Args:      []ast.BaseTerm{ast.Variable{Symbol: "X"}},
	}
	_ = store.GetFacts(query, func(atom ast.Atom) error {
		out = append(out, build(stringArg(atom, 0)))
		return nil
	})
	return out
}

func readBinary(store factstore.FactStore, predicate string, build func(string, string) Diagnostic) []Diagnostic {
	var out []Diagnostic
	query := ast.Atom{
		Predicate: ast.PredicateSym{Symbol: predicate, Arity: 2},
		Args:      []ast.BaseTerm{ast.Variable{Symbol: "X"}, ast.Variable{Symbol: "Y"}},
	}
	_ = store.GetFacts(query, func(atom ast.Atom) error {
		out = append(out, build(stringArg(atom, 0), stringArg(atom, 1)))
		return nil
	})
	return out
}

func readTernary(store factstore.FactStore, predicate string) [][3]string {
	var out [][3]string
	query := ast.Atom{
		Predicate: ast.PredicateSym{Symbol: predicate, Arity: 3},
		Args:      []ast.BaseTerm{ast.Variable{Symbol: "X"}, ast.Variable{Symbol: "Y"}, ast.Variable{Symbol: "Z"}},
	}
	_ = store.GetFacts(query, func(atom ast.Atom) error {
		out = append(out, [3]string{stringArg(atom, 0), stringArg(atom, 1), stringArg(atom, 2)})
		return nil
	})
	return out
}

func stringArg(atom ast.Atom, i int) string {
	if i >= len(atom.Args) {
		return ""
	}
	c, ok := atom.Args[i].(ast.Constant)
	if !ok {
		return fmt.Sprintf("%v", atom.Args[i])
	}
	v, err := c.StringValue()
	if err != nil {
		return fmt.Sprintf("%v", c)
	}
	return v
}
