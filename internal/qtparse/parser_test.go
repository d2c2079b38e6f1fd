package qtparse

import "testing"

func TestParseInvalidCodeCapturesLines(t *testing.T) {
	res := Parse(`invalid code`)
	if !res.HasErrors() {
		t.Fatal("expected parse errors")
	}
	for _, e := range res.Errors() {
		if e.Line < 1 {
			t.Errorf("expected line >= 1, got %d", e.Line)
		}
	}
}

func TestParseResultXorInvariant(t *testing.T) {
	res := Parse(`start default end default`)
	_, hasProgram := res.Program()
	if res.HasErrors() == hasProgram {
		t.Errorf("HasErrors() and Program() presence must be mutually exclusive, got HasErrors=%v hasProgram=%v", res.HasErrors(), hasProgram)
	}
}

func TestParseMinimalDefault(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to 100 kg
      equals 5 tCO2e / mt
    end substance
  end application
end default
`
	res := Parse(src)
	if res.HasErrors() {
		t.Fatalf("unexpected errors: %v", res.Errors())
	}
	prog, ok := res.Program()
	if !ok {
		t.Fatal("expected program")
	}
	if len(prog.Stanzas) != 1 {
		t.Fatalf("expected 1 stanza, got %d", len(prog.Stanzas))
	}
	def, ok := prog.Stanzas[0].(*DefaultStanza)
	if !ok {
		t.Fatalf("expected DefaultStanza, got %T", prog.Stanzas[0])
	}
	if len(def.Applications) != 1 || def.Applications[0].Name != "Cooling" {
		t.Fatalf("unexpected applications: %+v", def.Applications)
	}
	sub := def.Applications[0].Substances[0]
	if sub.Name != "HFC-134a" || len(sub.Statements) != 2 {
		t.Fatalf("unexpected substance: %+v", sub)
	}
	if _, ok := sub.Statements[0].(*SetStmt); !ok {
		t.Errorf("expected SetStmt, got %T", sub.Statements[0])
	}
	if _, ok := sub.Statements[1].(*EqualsStmt); !ok {
		t.Errorf("expected EqualsStmt, got %T", sub.Statements[1])
	}
}

func TestParseDuringForms(t *testing.T) {
	src := `
start policy "Cap50"
  modify application "Cooling"
    modify substance "HFC-134a"
      cap manufacture to 50 % during year 5
      cap manufacture to 50 % during years 1 to 10
      cap manufacture to 50 % during years 1 and onwards
    end substance
  end application
end policy
`
	res := Parse(src)
	if res.HasErrors() {
		t.Fatalf("unexpected errors: %v", res.Errors())
	}
	prog, _ := res.Program()
	pol := prog.Stanzas[0].(*PolicyStanza)
	stmts := pol.Applications[0].Substances[0].Statements
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}
	d1 := stmts[0].(*CapStmt).During
	if d1.Start.Kind != TimePointLiteral || d1.End.Kind != TimePointLiteral {
		t.Errorf("during year 5 should have concrete start/end")
	}
	d3 := stmts[2].(*CapStmt).During
	if d3.End != nil {
		t.Errorf("during years A and onwards should have nil end, got %+v", d3.End)
	}
}

func TestParseSimulateForms(t *testing.T) {
	src := `
start simulations
  simulate "baseline" from years 2020 to 2030
  simulate "withPolicy" using "Cap50" then "Cap75" from years 2020 to 2030 across 5 trials
end simulations
`
	res := Parse(src)
	if res.HasErrors() {
		t.Fatalf("unexpected errors: %v", res.Errors())
	}
	prog, _ := res.Program()
	sims := prog.Stanzas[0].(*SimulationsStanza).Simulations
	if len(sims) != 2 {
		t.Fatalf("expected 2 simulations, got %d", len(sims))
	}
	if len(sims[0].Policies) != 0 {
		t.Errorf("expected baseline sim to have no policies, got %v", sims[0].Policies)
	}
	if len(sims[1].Policies) != 2 || sims[1].Policies[0] != "Cap50" || sims[1].Policies[1] != "Cap75" {
		t.Errorf("unexpected policy order: %v", sims[1].Policies)
	}
	if sims[1].Trials == nil {
		t.Error("expected trials expression to be set")
	}
}

func TestDefaultCannotBeUsedAsPolicyName(t *testing.T) {
	res := Parse(`start policy "default" end policy`)
	if !res.HasErrors() {
		t.Fatal("expected error for policy named 'default'")
	}
}
