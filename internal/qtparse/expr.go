package qtparse

// Expr is implemented by every expression node. Precedence, lowest to
// highest: conditional, comparison, additive, multiplicative, power, unary
// sign, primary (spec.md §4.1).
type Expr interface{ exprNode() }

// NumberLit is a bare numeric literal (integer or decimal).
type NumberLit struct{ Literal string }

// UnitValue wraps an expression with a unit, or a compound "unit / unit".
// Denominator is "" for a simple unit.
type UnitValue struct {
	Inner       Expr
	Unit        string
	Denominator string
}

// Ident is a variable reference (bound by a prior `define` in the same
// lexical scope).
type Ident struct{ Name string }

// BinaryExpr is `Left OP Right` for +, -, *, /, ^, and the comparison
// operators.
type BinaryExpr struct {
	Op          string
	Left, Right Expr
}

// UnaryExpr is a prefix sign, `-E`.
type UnaryExpr struct {
	Op      string
	Operand Expr
}

// GetExpr is `get STREAM of "sub" [in "app"]`. App is "" when the `in`
// clause is absent (meaning: the current application).
type GetExpr struct {
	Stream string
	Sub    string
	App    string
}

// SampleNormalExpr is `sample normally from mean of E std of E`.
type SampleNormalExpr struct{ Mean, Std Expr }

// SampleUniformExpr is `sample uniformly from E to E`.
type SampleUniformExpr struct{ Low, High Expr }

// LimitExpr is `limit X to [lo, hi]`, with either bound possibly absent.
type LimitExpr struct {
	X        Expr
	Lo, Hi   Expr // nil when that bound is omitted
}

// ConditionalExpr is `E1 if COND else E2 endif`.
type ConditionalExpr struct {
	Cond, Then, Else Expr
}

func (*NumberLit) exprNode()         {}
func (*UnitValue) exprNode()         {}
func (*Ident) exprNode()             {}
func (*BinaryExpr) exprNode()        {}
func (*UnaryExpr) exprNode()         {}
func (*GetExpr) exprNode()           {}
func (*SampleNormalExpr) exprNode()  {}
func (*SampleUniformExpr) exprNode() {}
func (*LimitExpr) exprNode()         {}
func (*ConditionalExpr) exprNode()   {}
