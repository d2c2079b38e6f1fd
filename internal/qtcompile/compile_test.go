package qtcompile

import (
	"testing"

	"qubectalk/internal/qtparse"
)

func mustProgram(t *testing.T, src string) *qtparse.Program {
	t.Helper()
	res := qtparse.Parse(src)
	if res.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", res.Errors())
	}
	prog, _ := res.Program()
	return prog
}

func TestCompileMinimal(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to 100 kg
      equals 5 tCO2e / mt
    end substance
  end application
end default

start simulations
  simulate "baseline" from years 2020 to 2030
end simulations
`
	out, errs := Compile(mustProgram(t, src))
	if len(errs) > 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}
	if len(out.Default.Applications) != 1 {
		t.Fatalf("expected 1 application, got %d", len(out.Default.Applications))
	}
	app := out.Default.Applications["Cooling"]
	if app == nil {
		t.Fatal("expected Cooling application")
	}
	sub := app.Substances["HFC-134a"]
	if sub == nil || len(sub.Statements) != 2 {
		t.Fatalf("unexpected substance: %+v", sub)
	}
	if len(out.Scenarios) != 1 || out.Scenarios[0].Name != "baseline" {
		t.Fatalf("unexpected scenarios: %+v", out.Scenarios)
	}
}

func TestCompileDuplicateApplicationFails(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to 100 kg
    end substance
  end application
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to 100 kg
    end substance
  end application
end default
`
	_, errs := Compile(mustProgram(t, src))
	if len(errs) == 0 {
		t.Fatal("expected duplicate application error")
	}
}

func TestCompileUndefinedPolicyReferenceFails(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to 100 kg
    end substance
  end application
end default

start simulations
  simulate "withPolicy" using "DoesNotExist" from years 2020 to 2030
end simulations
`
	_, errs := Compile(mustProgram(t, src))
	if len(errs) == 0 {
		t.Fatal("expected undefined policy reference error")
	}
}

func TestCompileDefaultAsPolicyNameFails(t *testing.T) {
	src := `start policy "default" end policy`
	res := qtparse.Parse(src)
	if res.HasErrors() {
		// If the parser itself rejects this (it does, per parser_test.go),
		// there is nothing left for the compiler to check.
		return
	}
	prog, _ := res.Program()
	if _, errs := Compile(prog); len(errs) == 0 {
		t.Fatal(`expected compile error for policy named "default"`)
	}
}

func TestDuringAlwaysWhenOmitted(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to 100 kg
    end substance
  end application
end default
`
	out, errs := Compile(mustProgram(t, src))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	stmt := out.Default.Applications["Cooling"].Substances["HFC-134a"].Statements[0]
	if stmt.During.Kind != Always {
		t.Errorf("expected Always, got %v", stmt.During.Kind)
	}
}

func TestDuringRangeRealizesLiteralYears(t *testing.T) {
	src := `
start policy "Cap50"
  modify application "Cooling"
    modify substance "HFC-134a"
      cap manufacture to 50 % during years 1 to 10
    end substance
  end application
end policy
`
	out, errs := Compile(mustProgram(t, src))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	stmt := out.Policies["Cap50"].Applications["Cooling"].Substances["HFC-134a"].Statements[0]
	if stmt.During.Kind != Range {
		t.Fatalf("expected Range, got %v", stmt.During.Kind)
	}
	ctx := RealizeContext{SimStart: 2020, SimEnd: 2030}
	active, err := stmt.During.Active(2025, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Error("literal during-range is years 1..10, 2025 should not be active")
	}
	active, err = stmt.During.Active(5, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !active {
		t.Error("expected year 5 to be within literal range 1..10")
	}
}

func TestDuringAndOnwardsHasNoUpperBound(t *testing.T) {
	src := `
start policy "Cap50"
  modify application "Cooling"
    modify substance "HFC-134a"
      cap manufacture to 50 % during years 1 and onwards
    end substance
  end application
end policy
`
	out, errs := Compile(mustProgram(t, src))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	stmt := out.Policies["Cap50"].Applications["Cooling"].Substances["HFC-134a"].Statements[0]
	if stmt.During.Kind != From {
		t.Fatalf("expected From, got %v", stmt.During.Kind)
	}
	ctx := RealizeContext{SimStart: 2020, SimEnd: 2030}
	active, err := stmt.During.Active(2029, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !active {
		t.Error("expected year after literal start to be active")
	}
}
