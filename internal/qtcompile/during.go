package qtcompile

import (
	"fmt"
	"strconv"

	"qubectalk/internal/qtexpr"
	"qubectalk/internal/qtparse"
	"qubectalk/internal/units"
)

// DuringKind discriminates ParsedDuring's four shapes. Modeling this as an
// explicit enum (rather than a nullable Start/End pair, as the CST does)
// removes the degenerate "both nil" case from every call site that has to
// test it (Design Notes, spec.md §9).
type DuringKind int

const (
	Always DuringKind = iota
	From
	Until
	Range
)

// ParsedDuring is a statement's compiled `during` clause. Start is valid
// for From and Range; End is valid for Until and Range.
type ParsedDuring struct {
	Kind  DuringKind
	Start TimePointFuture
	End   TimePointFuture
}

// compileDuring maps the CST's nullable During into the explicit sum type.
func compileDuring(raw *qtparse.During) ParsedDuring {
	if raw == nil {
		return ParsedDuring{Kind: Always}
	}
	hasStart := raw.Start != nil
	hasEnd := raw.End != nil
	switch {
	case hasStart && hasEnd:
		return ParsedDuring{Kind: Range, Start: compileTimePoint(raw.Start), End: compileTimePoint(raw.End)}
	case hasStart:
		return ParsedDuring{Kind: From, Start: compileTimePoint(raw.Start)}
	case hasEnd:
		return ParsedDuring{Kind: Until, End: compileTimePoint(raw.End)}
	default:
		return ParsedDuring{Kind: Always}
	}
}

// RealizeContext supplies the runtime state needed to resolve a dynamic
// cap or a calculated time point into a concrete year.
type RealizeContext struct {
	SimStart, SimEnd int
	Machine          *units.Machine
	Scope            qtexpr.Scope
}

// TimePointFuture is a deferred time point: a literal year, a dynamic cap
// (beginning/onwards, resolved against the active scenario's year range),
// or a calculated expression, evaluated each time the point is realized
// (Active realizes its endpoints on every call). Spec.md's Design
// Notes §9 call this TimePointFuture to contrast with the already-resolved
// TimePointRealized it produces.
type TimePointFuture interface {
	Realize(ctx RealizeContext) (int, error)
}

type literalYear struct{ year int }

func (l literalYear) Realize(RealizeContext) (int, error) { return l.year, nil }

type dynamicCap struct{ onwards bool }

func (d dynamicCap) Realize(ctx RealizeContext) (int, error) {
	if d.onwards {
		return ctx.SimEnd, nil
	}
	return ctx.SimStart, nil
}

type calculatedYear struct{ expr qtparse.Expr }

func (c calculatedYear) Realize(ctx RealizeContext) (int, error) {
	n, err := qtexpr.Eval(c.expr, &qtexpr.Context{Machine: ctx.Machine, Scope: ctx.Scope})
	if err != nil {
		return 0, fmt.Errorf("evaluating calculated time point: %w", err)
	}
	if n.Units != "" {
		return 0, &units.InvariantError{Message: fmt.Sprintf("calculated time point has non-empty units %q", n.Units)}
	}
	f, _ := n.Value.Float64()
	return int(f), nil
}

func compileTimePoint(tp *qtparse.TimePoint) TimePointFuture {
	switch tp.Kind {
	case qtparse.TimePointBeginning:
		return dynamicCap{onwards: false}
	case qtparse.TimePointOnwards:
		return dynamicCap{onwards: true}
	case qtparse.TimePointLiteral:
		if lit, ok := tp.Year.(*qtparse.NumberLit); ok {
			if y, err := strconv.Atoi(lit.Literal); err == nil {
				return literalYear{year: y}
			}
		}
		return calculatedYear{expr: tp.Year}
	default:
		return calculatedYear{expr: tp.Year}
	}
}

// Active reports whether year falls within d once its endpoints are
// realized against the active scenario's range.
func (d ParsedDuring) Active(year int, ctx RealizeContext) (bool, error) {
	switch d.Kind {
	case Always:
		return true, nil
	case From:
		start, err := d.Start.Realize(ctx)
		if err != nil {
			return false, err
		}
		return year >= start, nil
	case Until:
		end, err := d.End.Realize(ctx)
		if err != nil {
			return false, err
		}
		return year <= end, nil
	case Range:
		start, err := d.Start.Realize(ctx)
		if err != nil {
			return false, err
		}
		end, err := d.End.Realize(ctx)
		if err != nil {
			return false, err
		}
		return year >= start && year <= end, nil
	default:
		return false, fmt.Errorf("unknown during kind %d", d.Kind)
	}
}
