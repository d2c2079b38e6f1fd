// Package qtparse lexes and parses QubecTalk source into a concrete syntax
// tree (CST). It never writes to stderr; all syntax problems are collected
// into a ParseResult's error list (see parse_result.go).
package qtparse

// Program is the root CST node: a sequence of stanzas in source order.
type Program struct {
	Stanzas []Stanza
}

// Stanza is implemented by DefaultStanza, PolicyStanza, SimulationsStanza,
// and AboutStanza.
type Stanza interface{ stanzaNode() }

// DefaultStanza is `start default ... end default`; it contributes to the
// baseline policy.
type DefaultStanza struct {
	Applications []*ApplicationDef
}

// PolicyStanza is `start policy "NAME" ... end policy`.
type PolicyStanza struct {
	Name         string
	Applications []*ApplicationMod
}

// SimulationsStanza is `start simulations ... end simulations`.
type SimulationsStanza struct {
	Simulations []*SimulateStmt
	Globals     []Statement
}

// AboutStanza is `start about ... end about`; its contents are ignored.
type AboutStanza struct{}

func (*DefaultStanza) stanzaNode()     {}
func (*PolicyStanza) stanzaNode()      {}
func (*SimulationsStanza) stanzaNode() {}
func (*AboutStanza) stanzaNode()       {}

// ApplicationDef is `define application "A" ... end application` under
// `default`.
type ApplicationDef struct {
	Name       string
	Substances []*SubstanceDef
	Globals    []Statement
}

// SubstanceDef is `uses substance "S" ... end substance`.
type SubstanceDef struct {
	Name       string
	Statements []Statement
	Line       int
}

// ApplicationMod is `modify application "A" ... end application` under a
// policy.
type ApplicationMod struct {
	Name       string
	Substances []*SubstanceMod
	Globals    []Statement
}

// SubstanceMod is `modify substance "S" ... end substance`.
type SubstanceMod struct {
	Name       string
	Statements []Statement
	Line       int
}

// SimulateStmt is `simulate "N" [using "P" (then "P2"...)] from years A to B
// [across N trials]`.
type SimulateStmt struct {
	Name      string
	Policies  []string
	StartYear Expr
	EndYear   Expr
	Trials    Expr // nil if `across N trials` absent
	Line      int
}
