// Package qtexpr evaluates QubecTalk expression CST nodes (qtparse.Expr)
// against the push-down machine, a variable scope, and a stream reader.
// This is the "operations manipulate the machine stack" half of spec.md
// §4.4: each Eval call pushes/pops through the Machine rather than
// computing results directly, so arithmetic errors surface exactly as the
// machine defines them (UnitMismatchError, UnitConversionError, ...).
package qtexpr

import (
	"fmt"

	"qubectalk/internal/qtparse"
	"qubectalk/internal/units"
)

// StreamReader is the minimal read surface Eval needs to resolve `get
// STREAM of "sub" [in "app"]`. The engine implements it; cross-substance
// reads are served from a start-of-year snapshot (Design Notes, spec.md §9).
type StreamReader interface {
	GetStream(app, sub, stream string) (units.Number, error)
	CurrentApplication() string
}

// Scope is the variable bindings visible to an expression, populated by
// DefineVar operations executed earlier in the same lexical pass.
type Scope map[string]units.Number

// Context bundles everything Eval needs.
type Context struct {
	Machine *units.Machine
	Engine  StreamReader
	Scope   Scope
	// Stream is the enclosing statement's target stream, used only so that
	// unit conversions for that stream's kg<->units coefficient apply
	// (initial charge). Empty when not applicable.
	Stream string
}

// Eval evaluates e and returns its resulting Number, leaving the machine's
// stack exactly as it found it (every push is paired with a pop before
// returning).
func Eval(e qtparse.Expr, ctx *Context) (units.Number, error) {
	switch n := e.(type) {
	case *qtparse.NumberLit:
		return units.NewNumberFromString(n.Literal, "")
	case *qtparse.UnitValue:
		inner, err := Eval(n.Inner, ctx)
		if err != nil {
			return units.Number{}, err
		}
		unit := n.Unit
		if n.Denominator != "" {
			unit = n.Unit + " / " + n.Denominator
		}
		return units.Number{Value: inner.Value, Units: unit}, nil
	case *qtparse.Ident:
		v, ok := ctx.Scope[n.Name]
		if !ok {
			return units.Number{}, fmt.Errorf("undefined variable %q", n.Name)
		}
		return v, nil
	case *qtparse.BinaryExpr:
		return evalBinary(n, ctx)
	case *qtparse.UnaryExpr:
		return evalUnary(n, ctx)
	case *qtparse.GetExpr:
		app := n.App
		if app == "" {
			app = ctx.Engine.CurrentApplication()
		}
		return ctx.Engine.GetStream(app, n.Sub, n.Stream)
	case *qtparse.SampleNormalExpr:
		mean, err := Eval(n.Mean, ctx)
		if err != nil {
			return units.Number{}, err
		}
		std, err := Eval(n.Std, ctx)
		if err != nil {
			return units.Number{}, err
		}
		ctx.Machine.SampleNormal(mean, std)
		return ctx.Machine.Pop()
	case *qtparse.SampleUniformExpr:
		low, err := Eval(n.Low, ctx)
		if err != nil {
			return units.Number{}, err
		}
		high, err := Eval(n.High, ctx)
		if err != nil {
			return units.Number{}, err
		}
		ctx.Machine.SampleUniform(low, high)
		return ctx.Machine.Pop()
	case *qtparse.LimitExpr:
		return evalLimit(n, ctx)
	case *qtparse.ConditionalExpr:
		cond, err := Eval(n.Cond, ctx)
		if err != nil {
			return units.Number{}, err
		}
		if cond.Value.Sign() != 0 {
			return Eval(n.Then, ctx)
		}
		return Eval(n.Else, ctx)
	default:
		return units.Number{}, fmt.Errorf("unsupported expression node %T", e)
	}
}

func evalBinary(n *qtparse.BinaryExpr, ctx *Context) (units.Number, error) {
	left, err := Eval(n.Left, ctx)
	if err != nil {
		return units.Number{}, err
	}
	right, err := Eval(n.Right, ctx)
	if err != nil {
		return units.Number{}, err
	}
	ctx.Machine.Push(left)
	ctx.Machine.Push(right)
	switch n.Op {
	case "+":
		err = ctx.Machine.Add()
	case "-":
		err = ctx.Machine.Sub()
	case "*":
		err = ctx.Machine.Mul()
	case "/":
		err = ctx.Machine.Div()
	case "^":
		err = ctx.Machine.Pow()
	case "==", "!=", "<", "<=", ">", ">=":
		err = ctx.Machine.Compare(n.Op)
	default:
		return units.Number{}, fmt.Errorf("unknown binary operator %q", n.Op)
	}
	if err != nil {
		return units.Number{}, err
	}
	return ctx.Machine.Pop()
}

func evalUnary(n *qtparse.UnaryExpr, ctx *Context) (units.Number, error) {
	v, err := Eval(n.Operand, ctx)
	if err != nil {
		return units.Number{}, err
	}
	if n.Op == "-" {
		ctx.Machine.Push(v)
		if err := ctx.Machine.Negate(); err != nil {
			return units.Number{}, err
		}
		return ctx.Machine.Pop()
	}
	return v, nil
}

func evalLimit(n *qtparse.LimitExpr, ctx *Context) (units.Number, error) {
	x, err := Eval(n.X, ctx)
	if err != nil {
		return units.Number{}, err
	}
	var lo, hi *units.Number
	if n.Lo != nil {
		v, err := Eval(n.Lo, ctx)
		if err != nil {
			return units.Number{}, err
		}
		lo = &v
	}
	if n.Hi != nil {
		v, err := Eval(n.Hi, ctx)
		if err != nil {
			return units.Number{}, err
		}
		hi = &v
	}
	ctx.Machine.Push(x)
	if err := ctx.Machine.Limit(lo, hi); err != nil {
		return units.Number{}, err
	}
	return ctx.Machine.Pop()
}
