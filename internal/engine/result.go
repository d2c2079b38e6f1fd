package engine

import "qubectalk/internal/units"

// Result is one (scenario, application, substance, year) snapshot, the
// engine's sole externally visible product (spec.md §6.2).
type Result struct {
	Scenario    string
	Application string
	Substance   string
	Year        int

	Manufacture units.Number // kg
	Import      units.Number // kg
	Export      units.Number // kg
	Sales       units.Number // kg, = Manufacture + Import - Export

	Equipment      units.Number // units
	PriorEquipment units.Number // units

	Emissions units.Number // tCO2e
	Energy    units.Number // kwh
}
