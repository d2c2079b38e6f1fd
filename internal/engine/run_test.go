package engine

import (
	"testing"

	"qubectalk/internal/qtcompile"
	"qubectalk/internal/qtparse"
	"qubectalk/internal/units"
)

func compileProgram(t *testing.T, src string) *qtcompile.ParsedProgram {
	t.Helper()
	res := qtparse.Parse(src)
	if res.HasErrors() {
		t.Fatalf("parse errors: %v", res.Errors())
	}
	prog, _ := res.Program()
	out, errs := qtcompile.Compile(prog)
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	return out
}

func findResult(t *testing.T, results []Result, app, sub string, year int) Result {
	t.Helper()
	for _, r := range results {
		if r.Application == app && r.Substance == sub && r.Year == year {
			return r
		}
	}
	t.Fatalf("no result for %s/%s year %d", app, sub, year)
	return Result{}
}

// E1 — cap in mass.
func TestE1CapInMass(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to 100 kg
      equals 5 tCO2e / mt
      cap manufacture to 50 kg
    end substance
  end application
end default

start simulations
  simulate "baseline" from years 1 to 1
end simulations
`
	out := compileProgram(t, src)
	results, err := RunScenario(out, out.Scenarios[0], units.MeanRNG{}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := findResult(t, results, "Cooling", "HFC-134a", 1)
	if r.Manufacture.Float64() != 50 {
		t.Errorf("expected manufacture=50kg, got %v", r.Manufacture)
	}
	if got := r.Emissions.Float64(); got != 0.25 {
		t.Errorf("expected emissions=0.25 tCO2e, got %v", got)
	}
}

// E2 — percentage cap stacked across independent (app, sub) pairs.
func TestE2PercentageCapStacked(t *testing.T) {
	src := `
start default
  define application "AppA"
    uses substance "SubA"
      set manufacture to 100 mt
    end substance
  end application
  define application "AppB"
    uses substance "SubB"
      set manufacture to 100 mt
    end substance
  end application
end default

start policy "PolicyA"
  modify application "AppA"
    modify substance "SubA"
      cap manufacture to 50 %
    end substance
  end application
end policy

start policy "PolicyB"
  modify application "AppB"
    modify substance "SubB"
      cap manufacture to 50 %
    end substance
  end application
end policy

start simulations
  simulate "sim" using "PolicyA" then "PolicyB" from years 1 to 2
end simulations
`
	out := compileProgram(t, src)
	results, err := RunScenario(out, out.Scenarios[0], units.MeanRNG{}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, year := range []int{1, 2} {
		a := findResult(t, results, "AppA", "SubA", year)
		if got := a.Manufacture.Float64(); got != 50000 {
			t.Errorf("year %d: expected AppA/SubA manufacture=50000kg (50mt), got %v", year, got)
		}
		b := findResult(t, results, "AppB", "SubB", year)
		if got := b.Manufacture.Float64(); got != 50000 {
			t.Errorf("year %d: expected AppB/SubB manufacture=50000kg (50mt), got %v", year, got)
		}
	}
}

// E3 — floor with displacement.
func TestE3FloorWithDisplacement(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "sub_a"
      set manufacture to 10 kg
      initial charge with 10 kg for manufacture
      floor manufacture to 10 units displacing "sub_b" during year 1
    end substance
    uses substance "sub_b"
      set manufacture to 100 kg
    end substance
  end application
end default

start simulations
  simulate "baseline" from years 1 to 1
end simulations
`
	out := compileProgram(t, src)
	results, err := RunScenario(out, out.Scenarios[0], units.MeanRNG{}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := findResult(t, results, "Cooling", "sub_a", 1)
	if got := a.Manufacture.Float64(); got != 100 {
		t.Errorf("expected sub_a manufacture=100kg, got %v", got)
	}
	b := findResult(t, results, "Cooling", "sub_b", 1)
	if got := b.Manufacture.Float64(); got != 10 {
		t.Errorf("expected sub_b manufacture=10kg, got %v", got)
	}
}

// E4 — replace across substances moves mass regardless of destination
// coefficients.
func TestE4ReplaceAcrossSubstances(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "SubA"
      set manufacture to 1000 units
      initial charge with 10 kg for manufacture
      replace 1000 units of manufacture with "SubB" during years 1 to 1
    end substance
    uses substance "SubB"
      set manufacture to 0 kg
      initial charge with 20 kg for manufacture
    end substance
  end application
end default

start simulations
  simulate "baseline" from years 1 to 1
end simulations
`
	out := compileProgram(t, src)
	results, err := RunScenario(out, out.Scenarios[0], units.MeanRNG{}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := findResult(t, results, "Cooling", "SubA", 1)
	if got := a.Manufacture.Float64(); got != 0 {
		t.Errorf("expected SubA manufacture=0kg after replace, got %v", got)
	}
	b := findResult(t, results, "Cooling", "SubB", 1)
	if got := b.Manufacture.Float64(); got != 10000 {
		t.Errorf("expected SubB manufacture=10000kg (moved mass, not re-converted), got %v", got)
	}
}

func TestPriorEquipmentCarriesForward(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set equipment to 100 units
    end substance
  end application
end default

start simulations
  simulate "baseline" from years 1 to 3
end simulations
`
	out := compileProgram(t, src)
	results, err := RunScenario(out, out.Scenarios[0], units.MeanRNG{}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 result rows (one per year), got %d", len(results))
	}
	y2 := findResult(t, results, "Cooling", "HFC-134a", 2)
	y1 := findResult(t, results, "Cooling", "HFC-134a", 1)
	if y2.PriorEquipment.Float64() != y1.Equipment.Float64() {
		t.Errorf("expected year 2 priorEquipment (%v) == year 1 equipment (%v)", y2.PriorEquipment, y1.Equipment)
	}
}

func TestUndefinedStreamReadFailsFatally(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to get import of "HFC-134a"
    end substance
  end application
end default

start simulations
  simulate "baseline" from years 1 to 1
end simulations
`
	out := compileProgram(t, src)
	_, err := RunScenario(out, out.Scenarios[0], units.MeanRNG{}, false, nil)
	if err == nil {
		t.Fatal("expected error reading unenabled import stream")
	}
}

func TestCrossSubstanceReadIsNonFatalByDefault(t *testing.T) {
	src := `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to get manufacture of "DoesNotExist"
    end substance
  end application
end default

start simulations
  simulate "baseline" from years 1 to 1
end simulations
`
	out := compileProgram(t, src)
	results, err := RunScenario(out, out.Scenarios[0], units.MeanRNG{}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error in non-strict mode: %v", err)
	}
	r := findResult(t, results, "Cooling", "HFC-134a", 1)
	if r.Manufacture.Float64() != 0 {
		t.Errorf("expected 0 for undefined cross-reference read, got %v", r.Manufacture)
	}
}
