package lint

import (
	"github.com/google/mangle/ast"

	"qubectalk/internal/qtcompile"
)

// toFacts flattens a ParsedProgram's policy/scenario structure into base
// Mangle facts for the rules in lint.go to reason over.
func toFacts(prog *qtcompile.ParsedProgram) []ast.Atom {
	var facts []ast.Atom

	for name := range prog.Policies {
		facts = append(facts, unary("policy_exists", name))
	}

	for _, scenario := range prog.Scenarios {
		for _, policyName := range scenario.Policies {
			facts = append(facts, binary("scenario_uses_policy", scenario.Name, policyName))
		}
	}

	for policyName, policy := range prog.Policies {
		for _, appName := range policy.Order {
			facts = append(facts, binary("policy_touches", policyName, appName))
		}
	}

	return facts
}

func unary(predicate, a string) ast.Atom {
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: predicate, Arity: 1},
		Args:      []ast.BaseTerm{ast.String(a)},
	}
}

func binary(predicate, a, b string) ast.Atom {
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: predicate, Arity: 2},
		Args:      []ast.BaseTerm{ast.String(a), ast.String(b)},
	}
}
