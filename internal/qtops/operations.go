package qtops

import (
	"fmt"

	"qubectalk/internal/qtcompile"
	"qubectalk/internal/qtexpr"
	"qubectalk/internal/qtparse"
)

// Operation is one compiled statement, ready to run against an OpContext
// for a given simulation year. Its During clause is checked once per call
// so the caller (internal/engine's year loop) never has to special-case
// "statement doesn't apply this year" itself.
type Operation struct {
	Kind   string // statement keyword, used for ExecutionError.Kind upstream
	Line   int
	During qtcompile.ParsedDuring
	run    func(ctx *OpContext) error
}

// Execute checks whether the operation is active for year (realized
// against the scenario's simStart/simEnd) and, if so, runs it.
func (o *Operation) Execute(ctx *OpContext, year, simStart, simEnd int) error {
	active, err := o.During.Active(year, qtcompile.RealizeContext{
		SimStart: simStart,
		SimEnd:   simEnd,
		Machine:  ctx.Machine,
		Scope:    ctx.Scope,
	})
	if err != nil {
		return fmt.Errorf("%s (line %d): %w", o.Kind, o.Line, err)
	}
	if !active {
		return nil
	}
	if err := o.run(ctx); err != nil {
		return fmt.Errorf("%s (line %d): %w", o.Kind, o.Line, err)
	}
	return nil
}

// Build compiles a ParsedStatement into an executable Operation.
func Build(stmt *qtcompile.ParsedStatement) (*Operation, error) {
	op := &Operation{During: stmt.During, Line: stmt.Raw.StmtLine()}
	switch s := stmt.Raw.(type) {
	case *qtparse.DefineStmt:
		op.Kind = "define"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.Expr, ctx.exprCtx())
			if err != nil {
				return err
			}
			ctx.Scope[s.Name] = v
			return nil
		}
	case *qtparse.SetStmt:
		op.Kind = "set"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.Expr, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.SetStream(s.Target, v)
		}
	case *qtparse.ChangeStmt:
		op.Kind = "change"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.Delta, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.ChangeStream(s.Target, v)
		}
	case *qtparse.CapStmt:
		op.Kind = "cap"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.Value, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.CapStream(s.Target, v)
		}
	case *qtparse.FloorStmt:
		op.Kind = "floor"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.Value, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.FloorStream(s.Target, v, s.Displacing)
		}
	case *qtparse.ReplaceStmt:
		op.Kind = "replace"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.Volume, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.Replace(v, s.Target, s.Destination)
		}
	case *qtparse.RetireStmt:
		op.Kind = "retire"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.Volume, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.Retire(v)
		}
	case *qtparse.RechargeStmt:
		op.Kind = "recharge"
		op.run = func(ctx *OpContext) error {
			pop, err := qtexpr.Eval(s.Population, ctx.exprCtx())
			if err != nil {
				return err
			}
			per, err := qtexpr.Eval(s.PerUnitVol, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.Recharge(pop, per)
		}
	case *qtparse.RecoverStmt:
		op.Kind = "recover"
		op.run = func(ctx *OpContext) error {
			vol, err := qtexpr.Eval(s.Volume, ctx.exprCtx())
			if err != nil {
				return err
			}
			yield, err := qtexpr.Eval(s.Yield, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.Recover(vol, yield)
		}
	case *qtparse.InitialChargeStmt:
		op.Kind = "initial charge"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.PerUnitVol, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.InitialCharge(s.Stream, v)
		}
	case *qtparse.EqualsStmt:
		op.Kind = "equals"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.Factor, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.RegisterEquivalency(v, s.Numerator, s.Denominator)
		}
	case *qtparse.EmitStmt:
		op.Kind = "emit"
		op.run = func(ctx *OpContext) error {
			v, err := qtexpr.Eval(s.Value, ctx.exprCtx())
			if err != nil {
				return err
			}
			return ctx.Engine.Emit(v)
		}
	case *qtparse.EnableStmt:
		op.Kind = "enable"
		op.run = func(ctx *OpContext) error {
			return ctx.Engine.EnableStream(s.Stream)
		}
	default:
		return nil, fmt.Errorf("unsupported statement node %T", stmt.Raw)
	}
	return op, nil
}

// BuildAll compiles every statement in stmts, stopping at the first error.
func BuildAll(stmts []*qtcompile.ParsedStatement) ([]*Operation, error) {
	ops := make([]*Operation, 0, len(stmts))
	for _, s := range stmts {
		op, err := Build(s)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
