package units

import (
	"math/big"
	"testing"
)

func TestGetResultEmptyStackFails(t *testing.T) {
	m := NewMachine(nil, nil)
	if _, err := m.GetResult(); err == nil {
		t.Error("expected error on empty stack")
	}
}

func TestGetResultMultiElementFails(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Push(NewNumber(1, "kg"))
	m.Push(NewNumber(2, "kg"))
	if _, err := m.GetResult(); err == nil {
		t.Error("expected error on multi-element stack")
	}
}

func TestAddMismatchedUnitsFails(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Push(NewNumber(1, "kg"))
	m.Push(NewNumber(1, "liters"))
	if err := m.Add(); err == nil {
		t.Error("expected unit mismatch error")
	}
}

func TestAddEmptyUnitsTreatedAsOther(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Push(NewNumber(10, "kg"))
	m.Push(NewNumber(5, ""))
	if err := m.Add(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := m.GetResult()
	if err != nil {
		t.Fatal(err)
	}
	if res.Units != "kg" || res.Float64() != 15 {
		t.Errorf("expected 15 kg, got %v", res)
	}
}

func TestChangeUnitsIdempotent(t *testing.T) {
	m := NewMachine(nil, nil)
	n := NewNumber(42, "kg")
	out, err := m.Convert(n, "kg", "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Float64() != 42 || out.Units != "kg" {
		t.Errorf("expected unchanged 42 kg, got %v", out)
	}
}

func TestChangeUnitsEmptyToKg(t *testing.T) {
	m := NewMachine(nil, nil)
	out, err := m.Convert(NewNumber(7, ""), "kg", "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Float64() != 7 || out.Units != "kg" {
		t.Errorf("expected 7 kg, got %v", out)
	}
}

func TestMtToKgConversion(t *testing.T) {
	m := NewMachine(nil, nil)
	out, err := m.Convert(NewNumber(2, "mt"), "kg", "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Float64() != 2000 {
		t.Errorf("expected 2000 kg, got %v", out)
	}
}

func TestEquivalencyConversion(t *testing.T) {
	conv := NewConversions()
	conv.RegisterEquivalency("tCO2e", ratFromFloat(5))
	m := NewMachine(conv, nil)
	out, err := m.Convert(NewNumber(100, "kg"), "tCO2e", "")
	if err != nil {
		t.Fatal(err)
	}
	// 100 kg = 0.1 mt; 0.1 mt * 5 tCO2e/mt = 0.5 tCO2e
	if out.Float64() != 0.5 {
		t.Errorf("expected 0.5 tCO2e, got %v", out)
	}
}

func TestUnknownConversionFails(t *testing.T) {
	m := NewMachine(nil, nil)
	if _, err := m.Convert(NewNumber(1, "kwh"), "tCO2e", ""); err == nil {
		t.Error("expected UnitConversionError")
	}
}

func TestInitialChargeConversion(t *testing.T) {
	conv := NewConversions()
	conv.RegisterInitialCharge("manufacture", ratFromFloat(10))
	m := NewMachine(conv, nil)
	out, err := m.Convert(NewNumber(3, "units"), "kg", "manufacture")
	if err != nil {
		t.Fatal(err)
	}
	if out.Float64() != 30 {
		t.Errorf("expected 30 kg, got %v", out)
	}
}

func TestLimitBothBoundsOptional(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Push(NewNumber(150, "kg"))
	hi := NewNumber(100, "kg")
	if err := m.Limit(nil, &hi); err != nil {
		t.Fatal(err)
	}
	res, _ := m.GetResult()
	if res.Float64() != 100 {
		t.Errorf("expected clamp to 100, got %v", res)
	}
}

func ratFromFloat(f float64) *big.Rat { return new(big.Rat).SetFloat64(f) }
