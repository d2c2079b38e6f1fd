package qtparse

import (
	"fmt"

	"qubectalk/internal/qtlex"
)

// Parse tokenizes and parses src, returning a ParseResult that is either a
// Program or a non-empty error list (never both).
func Parse(src string) ParseResult {
	toks, lexErr := qtlex.All(src)
	if lexErr != nil {
		return NewErrorResult([]ParseError{{Line: 1, Message: lexErr.Error()}})
	}

	p := &parser{toks: toks}
	prog := p.parseProgramRecovering()
	if len(p.errors) > 0 {
		return NewErrorResult(p.errors)
	}
	return NewParseResult(prog)
}

// parseError is the internal panic payload used to unwind to the nearest
// recovery point (the next top-level `start` stanza) when a production
// cannot continue.
type parseError struct{ ParseError }

type parser struct {
	toks         []qtlex.Token
	pos          int
	errors       []ParseError
	suppressUnit bool
}

func (p *parser) cur() qtlex.Token {
	if p.pos >= len(p.toks) {
		return qtlex.Token{Kind: qtlex.EOF}
	}
	return p.toks[p.pos]
}

func (p *parser) line() int {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].Line
	}
	if len(p.toks) > 0 {
		return p.toks[len(p.toks)-1].Line
	}
	return 1
}

func (p *parser) advance() qtlex.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) fail(format string, args ...interface{}) {
	panic(parseError{ParseError{Line: p.line(), Message: fmt.Sprintf(format, args...)}})
}

func (p *parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == qtlex.Keyword && t.Text == kw
}

func (p *parser) isOp(op string) bool {
	t := p.cur()
	return t.Kind == qtlex.Op && t.Text == op
}

func (p *parser) expectKeyword(kw string) qtlex.Token {
	if !p.isKeyword(kw) {
		p.fail("expected keyword %q, got %q", kw, p.cur().Text)
	}
	return p.advance()
}

func (p *parser) expectOp(op string) qtlex.Token {
	if !p.isOp(op) {
		p.fail("expected %q, got %q", op, p.cur().Text)
	}
	return p.advance()
}

func (p *parser) expectString() string {
	if p.cur().Kind != qtlex.String {
		p.fail("expected string literal, got %q", p.cur().Text)
	}
	return p.advance().Text
}

func (p *parser) expectIdent() string {
	if p.cur().Kind != qtlex.Ident {
		p.fail("expected identifier, got %q", p.cur().Text)
	}
	return p.advance().Text
}

// parseProgramRecovering parses every stanza, recovering from a failed
// stanza by skipping to the next `start` keyword so subsequent errors are
// still reported (spec.md §8, E6: errors accumulate rather than aborting on
// the first one).
func (p *parser) parseProgramRecovering() *Program {
	prog := &Program{}
	for p.cur().Kind != qtlex.EOF {
		startPos := p.pos
		ok := func() (ok bool) {
			defer func() {
				if r := recover(); r != nil {
					pe, isParseErr := r.(parseError)
					if !isParseErr {
						panic(r)
					}
					p.errors = append(p.errors, pe.ParseError)
					ok = false
				}
			}()
			st := p.parseStanza()
			if st != nil {
				prog.Stanzas = append(prog.Stanzas, st)
			}
			return true
		}()
		if !ok {
			p.recoverToNextStanza(startPos)
		}
	}
	return prog
}

func (p *parser) recoverToNextStanza(from int) {
	if p.pos <= from {
		p.pos = from + 1
	}
	for p.cur().Kind != qtlex.EOF && !p.isKeyword("start") {
		p.pos++
	}
}

func (p *parser) parseStanza() Stanza {
	p.expectKeyword("start")
	switch {
	case p.isKeyword("about"):
		p.advance()
		for !p.isKeyword("end") {
			if p.cur().Kind == qtlex.EOF {
				p.fail("unterminated 'about' stanza")
			}
			p.advance()
		}
		p.advance()
		p.expectKeyword("about")
		return &AboutStanza{}
	case p.isKeyword("default"):
		p.advance()
		st := &DefaultStanza{}
		for !p.isKeyword("end") {
			if p.cur().Kind == qtlex.EOF {
				p.fail("unterminated 'default' stanza")
			}
			st.Applications = append(st.Applications, p.parseApplicationDef())
		}
		p.advance()
		p.expectKeyword("default")
		return st
	case p.isKeyword("policy"):
		p.advance()
		name := p.expectString()
		if name == "default" {
			p.fail("'default' cannot be used as a user policy name")
		}
		st := &PolicyStanza{Name: name}
		for !p.isKeyword("end") {
			if p.cur().Kind == qtlex.EOF {
				p.fail("unterminated 'policy' stanza")
			}
			st.Applications = append(st.Applications, p.parseApplicationMod())
		}
		p.advance()
		p.expectKeyword("policy")
		return st
	case p.isKeyword("simulations"):
		p.advance()
		st := &SimulationsStanza{}
		for !p.isKeyword("end") {
			if p.cur().Kind == qtlex.EOF {
				p.fail("unterminated 'simulations' stanza")
			}
			if p.isKeyword("simulate") {
				st.Simulations = append(st.Simulations, p.parseSimulate())
			} else {
				st.Globals = append(st.Globals, p.parseGlobalStatement())
			}
		}
		p.advance()
		p.expectKeyword("simulations")
		return st
	default:
		p.fail("expected 'about', 'default', 'policy', or 'simulations' after 'start', got %q", p.cur().Text)
		return nil
	}
}

func (p *parser) parseApplicationDef() *ApplicationDef {
	p.expectKeyword("define")
	p.expectKeyword("application")
	name := p.expectString()
	def := &ApplicationDef{Name: name}
	for !p.isKeyword("end") {
		if p.cur().Kind == qtlex.EOF {
			p.fail("unterminated 'application' definition")
		}
		if p.isKeyword("uses") {
			def.Substances = append(def.Substances, p.parseSubstanceDef())
		} else {
			def.Globals = append(def.Globals, p.parseGlobalStatement())
		}
	}
	p.advance()
	p.expectKeyword("application")
	return def
}

func (p *parser) parseSubstanceDef() *SubstanceDef {
	line := p.line()
	p.expectKeyword("uses")
	p.expectKeyword("substance")
	name := p.expectString()
	sub := &SubstanceDef{Name: name, Line: line}
	for !p.isKeyword("end") {
		if p.cur().Kind == qtlex.EOF {
			p.fail("unterminated 'substance' definition")
		}
		sub.Statements = append(sub.Statements, p.parseSubstanceStatement())
	}
	p.advance()
	p.expectKeyword("substance")
	return sub
}

func (p *parser) parseApplicationMod() *ApplicationMod {
	p.expectKeyword("modify")
	p.expectKeyword("application")
	name := p.expectString()
	mod := &ApplicationMod{Name: name}
	for !p.isKeyword("end") {
		if p.cur().Kind == qtlex.EOF {
			p.fail("unterminated 'application' modification")
		}
		if p.isKeyword("modify") {
			mod.Substances = append(mod.Substances, p.parseSubstanceMod())
		} else {
			mod.Globals = append(mod.Globals, p.parseGlobalStatement())
		}
	}
	p.advance()
	p.expectKeyword("application")
	return mod
}

func (p *parser) parseSubstanceMod() *SubstanceMod {
	line := p.line()
	p.expectKeyword("modify")
	p.expectKeyword("substance")
	name := p.expectString()
	sub := &SubstanceMod{Name: name, Line: line}
	for !p.isKeyword("end") {
		if p.cur().Kind == qtlex.EOF {
			p.fail("unterminated 'substance' modification")
		}
		sub.Statements = append(sub.Statements, p.parseSubstanceStatement())
	}
	p.advance()
	p.expectKeyword("substance")
	return sub
}

func (p *parser) parseSimulate() *SimulateStmt {
	line := p.line()
	p.expectKeyword("simulate")
	name := p.expectString()
	sim := &SimulateStmt{Name: name, Line: line}
	if p.isKeyword("using") {
		p.advance()
		sim.Policies = append(sim.Policies, p.expectString())
		for p.isKeyword("then") {
			p.advance()
			sim.Policies = append(sim.Policies, p.expectString())
		}
	}
	p.expectKeyword("from")
	p.expectKeyword("years")
	sim.StartYear = p.parseExpr()
	p.expectKeyword("to")
	sim.EndYear = p.parseExpr()
	if p.isKeyword("across") {
		p.advance()
		sim.Trials = p.parseExpr()
		p.expectKeyword("trials")
	}
	return sim
}

// parseGlobalStatement handles `define X as E` and `set X to E` at
// stanza/application/simulations level.
func (p *parser) parseGlobalStatement() Statement {
	line := p.line()
	switch {
	case p.isKeyword("define"):
		p.advance()
		name := p.expectIdent()
		p.expectKeyword("as")
		expr := p.parseExpr()
		return &DefineStmt{baseStmt: baseStmt{line}, Name: name, Expr: expr}
	case p.isKeyword("set"):
		return p.parseSetStatement(line)
	default:
		p.fail("expected 'define' or 'set', got %q", p.cur().Text)
		return nil
	}
}

func (p *parser) parseSetStatement(line int) Statement {
	p.expectKeyword("set")
	target := p.expectTarget()
	p.expectKeyword("to")
	expr := p.parseExpr()
	during := p.parseOptionalDuring()
	return &SetStmt{baseStmt: baseStmt{line}, Target: target, Expr: expr, During: during}
}

// expectTarget consumes a stream-or-identifier target name.
func (p *parser) expectTarget() string {
	t := p.cur()
	if t.Kind == qtlex.Keyword && qtlex.Streams[t.Text] {
		return p.advance().Text
	}
	if t.Kind == qtlex.Ident {
		return p.advance().Text
	}
	p.fail("expected stream or identifier target, got %q", t.Text)
	return ""
}

func (p *parser) parseSubstanceStatement() Statement {
	line := p.line()
	switch {
	case p.isKeyword("cap"):
		p.advance()
		target := p.expectTarget()
		p.expectKeyword("to")
		value := p.parseExpr()
		during := p.parseOptionalDuring()
		return &CapStmt{baseStmt: baseStmt{line}, Target: target, Value: value, During: during}
	case p.isKeyword("floor"):
		p.advance()
		target := p.expectTarget()
		p.expectKeyword("to")
		value := p.parseExpr()
		displacing := ""
		if p.isKeyword("displacing") {
			p.advance()
			displacing = p.expectString()
		}
		during := p.parseOptionalDuring()
		return &FloorStmt{baseStmt: baseStmt{line}, Target: target, Value: value, Displacing: displacing, During: during}
	case p.isKeyword("change"):
		p.advance()
		target := p.expectTarget()
		p.expectKeyword("by")
		delta := p.parseExpr()
		during := p.parseOptionalDuring()
		return &ChangeStmt{baseStmt: baseStmt{line}, Target: target, Delta: delta, During: during}
	case p.isKeyword("emit"):
		p.advance()
		value := p.parseExpr()
		during := p.parseOptionalDuring()
		return &EmitStmt{baseStmt: baseStmt{line}, Value: value, During: during}
	case p.isKeyword("initial"):
		p.advance()
		p.expectKeyword("charge")
		p.expectKeyword("with")
		vol := p.parseExpr()
		p.expectKeyword("for")
		stream := p.expectTarget()
		during := p.parseOptionalDuring()
		return &InitialChargeStmt{baseStmt: baseStmt{line}, PerUnitVol: vol, Stream: stream, During: during}
	case p.isKeyword("recharge"):
		p.advance()
		pop := p.parseExpr()
		p.expectKeyword("with")
		vol := p.parseExpr()
		during := p.parseOptionalDuring()
		return &RechargeStmt{baseStmt: baseStmt{line}, Population: pop, PerUnitVol: vol, During: during}
	case p.isKeyword("recover"):
		p.advance()
		vol := p.parseExpr()
		p.expectKeyword("with")
		yield := p.parseExpr()
		p.expectKeyword("reuse")
		during := p.parseOptionalDuring()
		return &RecoverStmt{baseStmt: baseStmt{line}, Volume: vol, Yield: yield, During: during}
	case p.isKeyword("replace"):
		p.advance()
		vol := p.parseExpr()
		p.expectKeyword("of")
		target := p.expectTarget()
		p.expectKeyword("with")
		dest := p.expectString()
		during := p.parseOptionalDuring()
		return &ReplaceStmt{baseStmt: baseStmt{line}, Volume: vol, Target: target, Destination: dest, During: during}
	case p.isKeyword("retire"):
		p.advance()
		vol := p.parseExpr()
		during := p.parseOptionalDuring()
		return &RetireStmt{baseStmt: baseStmt{line}, Volume: vol, During: during}
	case p.isKeyword("set"):
		return p.parseSetStatement(line)
	case p.isKeyword("enable"):
		p.advance()
		stream := p.expectTarget()
		return &EnableStmt{baseStmt: baseStmt{line}, Stream: stream}
	case p.isKeyword("equals"):
		p.advance()
		p.suppressUnit = true
		factor := p.parseAdditive()
		p.suppressUnit = false
		num := p.expectUnitWord()
		p.expectOp("/")
		den := p.expectUnitWord()
		return &EqualsStmt{baseStmt: baseStmt{line}, Factor: factor, Numerator: num, Denominator: den}
	case p.isKeyword("define"):
		return p.parseGlobalStatement()
	default:
		p.fail("unexpected token in substance body: %q", p.cur().Text)
		return nil
	}
}

func (p *parser) expectUnitWord() string {
	t := p.cur()
	if (t.Kind == qtlex.Keyword || t.Kind == qtlex.Op) && qtlex.UnitWords[t.Text] {
		return p.advance().Text
	}
	p.fail("expected unit, got %q", t.Text)
	return ""
}

// parseOptionalDuring consumes an optional `during ...` clause. Absence
// means "every year of the simulation" (spec.md §4.3).
func (p *parser) parseOptionalDuring() *During {
	if !p.isKeyword("during") {
		return nil
	}
	p.advance()
	if p.isKeyword("year") {
		p.advance()
		tp := p.parseTimePoint()
		return &During{Start: tp, End: tp}
	}
	p.expectKeyword("years")
	start := p.parseTimePoint()
	if p.isKeyword("and") {
		p.advance()
		p.expectKeyword("onwards")
		return &During{Start: start, End: nil}
	}
	p.expectKeyword("to")
	end := p.parseTimePoint()
	return &During{Start: start, End: end}
}

func (p *parser) parseTimePoint() *TimePoint {
	if p.isKeyword("beginning") {
		p.advance()
		return &TimePoint{Kind: TimePointBeginning}
	}
	if p.isKeyword("onwards") {
		p.advance()
		return &TimePoint{Kind: TimePointOnwards}
	}
	return &TimePoint{Kind: TimePointLiteral, Year: p.parseAdditive()}
}

// ---- Expressions ----
// Precedence, lowest to highest: conditional, comparison, additive,
// multiplicative, power, unary sign, primary.

func (p *parser) parseExpr() Expr {
	return p.parseConditional()
}

func (p *parser) parseConditional() Expr {
	e := p.parseComparison()
	if p.isKeyword("if") {
		p.advance()
		cond := p.parseComparison()
		p.expectKeyword("else")
		elseExpr := p.parseConditional()
		p.expectKeyword("endif")
		return &ConditionalExpr{Cond: cond, Then: e, Else: elseExpr}
	}
	return e
}

var comparisonOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *parser) parseComparison() Expr {
	left := p.parseAdditive()
	t := p.cur()
	if t.Kind == qtlex.Op && comparisonOps[t.Text] {
		op := p.advance().Text
		right := p.parseAdditive()
		return &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for p.isOp("+") || p.isOp("-") {
		op := p.advance().Text
		right := p.parseMultiplicative()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseMultiplicative() Expr {
	left := p.parsePower()
	for p.isOp("*") || p.isOp("/") {
		op := p.advance().Text
		right := p.parsePower()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) parsePower() Expr {
	left := p.parseUnary()
	if p.isOp("^") {
		p.advance()
		right := p.parsePower()
		return &BinaryExpr{Op: "^", Left: left, Right: right}
	}
	return left
}

func (p *parser) parseUnary() Expr {
	if p.isOp("-") {
		p.advance()
		operand := p.parseUnary()
		return &UnaryExpr{Op: "-", Operand: operand}
	}
	if p.isOp("+") {
		p.advance()
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() Expr {
	t := p.cur()
	switch {
	case t.Kind == qtlex.Number:
		p.advance()
		return p.maybeUnitValue(&NumberLit{Literal: t.Text})
	case t.Kind == qtlex.Op && t.Text == "(":
		p.advance()
		e := p.parseExpr()
		p.expectOp(")")
		return p.maybeUnitValue(e)
	case t.Kind == qtlex.Ident:
		p.advance()
		return &Ident{Name: t.Text}
	case p.isKeyword("get"):
		return p.parseGet()
	case p.isKeyword("sample"):
		return p.parseSample()
	case p.isKeyword("limit"):
		return p.parseLimit()
	default:
		p.fail("unexpected token in expression: %q", t.Text)
		return nil
	}
}

// maybeUnitValue wraps inner in a UnitValue if a unit token follows
// (`expression unit` or `expression unit / unit`). Suppressed while parsing
// an `equals` statement's factor, whose trailing `UNIT / UNIT` belongs to
// the statement grammar, not to the factor expression (spec.md §6.1:
// `equals E UNIT / UNIT` is a distinct production from unitValue).
func (p *parser) maybeUnitValue(inner Expr) Expr {
	if p.suppressUnit {
		return inner
	}
	t := p.cur()
	if (t.Kind == qtlex.Keyword || t.Kind == qtlex.Op) && qtlex.UnitWords[t.Text] {
		unit := p.advance().Text
		denom := ""
		if p.isOp("/") {
			p.advance()
			denom = p.expectUnitWord()
		}
		return &UnitValue{Inner: inner, Unit: unit, Denominator: denom}
	}
	return inner
}

func (p *parser) parseGet() Expr {
	p.expectKeyword("get")
	stream := p.expectTarget()
	p.expectKeyword("of")
	sub := p.expectString()
	app := ""
	if p.isKeyword("in") {
		p.advance()
		app = p.expectString()
	}
	return &GetExpr{Stream: stream, Sub: sub, App: app}
}

func (p *parser) parseSample() Expr {
	p.expectKeyword("sample")
	switch {
	case p.isKeyword("normally"):
		p.advance()
		p.expectKeyword("from")
		p.expectKeyword("mean")
		p.expectKeyword("of")
		mean := p.parseAdditive()
		p.expectKeyword("std")
		p.expectKeyword("of")
		std := p.parseAdditive()
		return &SampleNormalExpr{Mean: mean, Std: std}
	case p.isKeyword("uniformly"):
		p.advance()
		p.expectKeyword("from")
		low := p.parseAdditive()
		p.expectKeyword("to")
		high := p.parseAdditive()
		return &SampleUniformExpr{Low: low, High: high}
	default:
		p.fail("expected 'normally' or 'uniformly' after 'sample', got %q", p.cur().Text)
		return nil
	}
}

func (p *parser) parseLimit() Expr {
	p.expectKeyword("limit")
	x := p.parseAdditive()
	p.expectKeyword("to")
	p.expectOp("[")
	var lo, hi Expr
	if !p.isOp(",") {
		lo = p.parseAdditive()
	}
	p.expectOp(",")
	if !p.isOp("]") {
		hi = p.parseAdditive()
	}
	p.expectOp("]")
	return &LimitExpr{X: x, Lo: lo, Hi: hi}
}
