// Package qtcompile turns a parsed qtparse.Program (a CST) into a
// ParsedProgram: named policies/applications/substances/scenarios with
// duplicate-name and dangling-reference checks already applied (spec.md
// §4.2). It also resolves each statement's `during` clause into an
// explicit sum type (Always/From/Until/Range) instead of carrying the
// CST's nullable Start/End pair forward, per the Design Notes'
// recommendation against nullable-pair optionals.
package qtcompile

import (
	"fmt"

	"qubectalk/internal/qtparse"
)

// CompileError reports a single semantic problem found while compiling
// the CST: a duplicate definition, a dangling policy reference, or a
// reserved name misuse.
type CompileError struct {
	Line    int
	Message string
}

func (e CompileError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Message) }

// ParsedProgram is the compiled, name-resolved form of a QubecTalk
// program: one default application set, zero or more named policies that
// layer modifications on top of it, and the scenarios that run them.
type ParsedProgram struct {
	Default   *ParsedApplicationSet
	Policies  map[string]*ParsedPolicy
	Scenarios []*ParsedScenario
}

// ParsedApplicationSet is the default stanza's applications, keyed by name
// for O(1) lookup during policy layering.
type ParsedApplicationSet struct {
	Applications map[string]*ParsedApplication
	Order        []string // preserves declaration order for deterministic iteration
}

// ParsedApplication is one application's substances.
type ParsedApplication struct {
	Name       string
	Substances map[string]*ParsedSubstance
	Order      []string
	Statements []*ParsedStatement // application-level define/set (rare, but legal)
}

// ParsedSubstance is one substance's statement list, already wrapped with
// compiled During clauses.
type ParsedSubstance struct {
	Name       string
	Statements []*ParsedStatement
}

// ParsedStatement pairs a raw qtparse.Statement with its compiled During,
// so downstream packages (qtops) never touch qtparse.During directly.
type ParsedStatement struct {
	Raw    qtparse.Statement
	During ParsedDuring
}

// ParsedPolicy is a named policy stanza: application modifications layered
// onto the default set when a scenario selects it.
type ParsedPolicy struct {
	Name         string
	Applications map[string]*ParsedApplication
	Order        []string
}

// ParsedScenario is one `simulate` statement, fully resolved: the ordered
// list of policy names to layer (validated to exist), the start/end year
// as compiled expressions (evaluated once, at scenario setup, against an
// empty machine/scope — scenario bounds are not expected to depend on
// substance state), and the trial count expression, which is carried but
// not evaluated.
type ParsedScenario struct {
	Name       string
	Policies   []string
	StartYear  qtparse.Expr
	EndYear    qtparse.Expr
	Trials     qtparse.Expr // nil => 1 trial
	GlobalDefs []*ParsedStatement
}

// Compile resolves a parsed CST into a ParsedProgram, or returns a
// non-empty list of CompileErrors. Compilation is scenario-agnostic: the
// same ParsedProgram can be run under every one of its Scenarios, each
// with a potentially different year range (During clauses are realized
// each time an operation is checked against a year, not here).
func Compile(prog *qtparse.Program) (*ParsedProgram, []CompileError) {
	c := &compiler{
		out: &ParsedProgram{
			Default:  &ParsedApplicationSet{Applications: map[string]*ParsedApplication{}},
			Policies: map[string]*ParsedPolicy{},
		},
	}
	for _, st := range prog.Stanzas {
		switch s := st.(type) {
		case *qtparse.DefaultStanza:
			c.compileDefault(s)
		case *qtparse.PolicyStanza:
			c.compilePolicy(s)
		case *qtparse.SimulationsStanza:
			c.compileSimulations(s)
		case *qtparse.AboutStanza:
			// no semantic content
		default:
			c.errorf(0, "unrecognized stanza %T", st)
		}
	}
	c.validateScenarioPolicyRefs()
	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return c.out, nil
}

type compiler struct {
	out    *ParsedProgram
	errors []CompileError
}

func (c *compiler) errorf(line int, format string, args ...any) {
	c.errors = append(c.errors, CompileError{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (c *compiler) compileDefault(s *qtparse.DefaultStanza) {
	for _, appDef := range s.Applications {
		if _, exists := c.out.Default.Applications[appDef.Name]; exists {
			c.errorf(0, "duplicate application %q in default stanza", appDef.Name)
			continue
		}
		app := &ParsedApplication{Name: appDef.Name, Substances: map[string]*ParsedSubstance{}}
		for _, subDef := range appDef.Substances {
			if _, exists := app.Substances[subDef.Name]; exists {
				c.errorf(subDef.Line, "duplicate substance %q in application %q", subDef.Name, appDef.Name)
				continue
			}
			app.Substances[subDef.Name] = c.compileSubstanceStatements(subDef.Name, subDef.Statements)
			app.Order = append(app.Order, subDef.Name)
		}
		app.Statements = c.compileStatements(appDef.Globals)
		c.out.Default.Applications[appDef.Name] = app
		c.out.Default.Order = append(c.out.Default.Order, appDef.Name)
	}
}

func (c *compiler) compileSubstanceStatements(name string, stmts []qtparse.Statement) *ParsedSubstance {
	return &ParsedSubstance{Name: name, Statements: c.compileStatements(stmts)}
}

func (c *compiler) compileStatements(stmts []qtparse.Statement) []*ParsedStatement {
	out := make([]*ParsedStatement, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, &ParsedStatement{Raw: s, During: compileDuring(duringOf(s))})
	}
	return out
}

// duringOf extracts the optional During clause carried by statement
// types that support one. Statements without a During (define, enable)
// return nil, compiling to Always.
func duringOf(s qtparse.Statement) *qtparse.During {
	switch st := s.(type) {
	case *qtparse.SetStmt:
		return st.During
	case *qtparse.ChangeStmt:
		return st.During
	case *qtparse.CapStmt:
		return st.During
	case *qtparse.FloorStmt:
		return st.During
	case *qtparse.ReplaceStmt:
		return st.During
	case *qtparse.RetireStmt:
		return st.During
	case *qtparse.RechargeStmt:
		return st.During
	case *qtparse.RecoverStmt:
		return st.During
	case *qtparse.InitialChargeStmt:
		return st.During
	case *qtparse.EmitStmt:
		return st.During
	default:
		return nil
	}
}

func (c *compiler) compilePolicy(s *qtparse.PolicyStanza) {
	if s.Name == "default" {
		c.errorf(0, `policy cannot be named "default"`)
		return
	}
	if _, exists := c.out.Policies[s.Name]; exists {
		c.errorf(0, "duplicate policy %q", s.Name)
		return
	}
	pol := &ParsedPolicy{Name: s.Name, Applications: map[string]*ParsedApplication{}}
	for _, appMod := range s.Applications {
		app := &ParsedApplication{Name: appMod.Name, Substances: map[string]*ParsedSubstance{}}
		for _, subMod := range appMod.Substances {
			app.Substances[subMod.Name] = c.compileSubstanceStatements(subMod.Name, subMod.Statements)
			app.Order = append(app.Order, subMod.Name)
		}
		pol.Applications[appMod.Name] = app
		pol.Order = append(pol.Order, appMod.Name)
	}
	c.out.Policies[s.Name] = pol
}

func (c *compiler) compileSimulations(s *qtparse.SimulationsStanza) {
	globalDefs := c.compileStatements(s.Globals)
	for _, sim := range s.Simulations {
		c.out.Scenarios = append(c.out.Scenarios, &ParsedScenario{
			Name:       sim.Name,
			Policies:   sim.Policies,
			StartYear:  sim.StartYear,
			EndYear:    sim.EndYear,
			Trials:     sim.Trials,
			GlobalDefs: globalDefs,
		})
	}
}

func (c *compiler) validateScenarioPolicyRefs() {
	for _, sc := range c.out.Scenarios {
		for _, name := range sc.Policies {
			if name == "default" {
				c.errorf(0, "scenario %q references reserved policy name \"default\"", sc.Name)
				continue
			}
			if _, ok := c.out.Policies[name]; !ok {
				c.errorf(0, "scenario %q references undefined policy %q", sc.Name, name)
			}
		}
	}
}
