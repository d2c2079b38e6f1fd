// Package qtlex tokenizes QubecTalk source text. It hides whitespace and
// #-prefixed comments and recognizes numbers, string literals, identifiers,
// the fixed keyword vocabulary, stream/unit names, and operators.
package qtlex

// Kind identifies the lexical category of a Token.
type Kind int

const (
	EOF Kind = iota
	Number
	String
	Ident
	Keyword
	Op
)

// Token is a single lexical unit with its 1-based source line.
type Token struct {
	Kind   Kind
	Text   string
	Line   int
}

// keywords is the fixed vocabulary recognized as Keyword tokens rather than
// plain identifiers. The surface keyword "initial" is recognized and kept
// as written; the lexer has no separate misspelled "inital" token symbol.
var keywords = map[string]bool{
	"start": true, "end": true, "default": true, "policy": true, "about": true,
	"simulations": true, "define": true, "application": true, "uses": true,
	"substance": true, "modify": true, "simulate": true, "using": true,
	"then": true, "from": true, "years": true, "year": true, "and": true,
	"onwards": true, "beginning": true, "during": true, "across": true,
	"trials": true, "set": true, "to": true, "change": true, "by": true,
	"cap": true, "floor": true, "displacing": true, "replace": true,
	"of": true, "with": true, "retire": true, "recharge": true,
	"recover": true, "reuse": true, "initial": true, "charge": true,
	"for": true, "equals": true, "emit": true, "enable": true, "get": true,
	"in": true, "sample": true, "normally": true, "mean": true, "std": true,
	"uniformly": true, "limit": true, "if": true, "else": true, "endif": true,
	"as": true,
	// streams
	"equipment": true, "export": true, "import": true, "manufacture": true,
	"sales": true, "priorEquipment": true,
	// units (kg/mt/unit/units/year/years already covered above where shared)
	"kg": true, "mt": true, "unit": true, "units": true, "tCO2e": true,
	"kwh": true,
}

// Streams is the fixed set of stream names recognized by the grammar.
var Streams = map[string]bool{
	"equipment": true, "export": true, "import": true, "manufacture": true,
	"sales": true, "priorEquipment": true,
}

// UnitWords is the fixed set of bare unit tokens (the compound "X / Y" form
// is built by the parser from two of these).
var UnitWords = map[string]bool{
	"kg": true, "mt": true, "unit": true, "units": true, "%": true,
	"tCO2e": true, "kwh": true, "year": true, "years": true,
}
