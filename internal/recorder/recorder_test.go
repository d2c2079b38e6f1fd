package recorder

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"qubectalk/internal/units"

	"qubectalk/internal/engine"
)

func TestRecorderRotation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < MaxRotatedFiles+2; i++ {
		if err := r.Start("baseline", Header{Scenario: "baseline", StartYear: 1, EndYear: 1}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != MaxRotatedFiles {
		t.Errorf("expected %d files, got %d", MaxRotatedFiles, len(entries))
	}
}

func TestRecorderRotationIsPerScenario(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < MaxRotatedFiles; i++ {
		if err := r.Start("a", Header{Scenario: "a"}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := r.Start("b", Header{Scenario: "b"}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	// scenario "a"'s traces are untouched by starting scenario "b"
	if len(entries) != MaxRotatedFiles+1 {
		t.Errorf("expected %d files (unrotated a's + new b), got %d", MaxRotatedFiles+1, len(entries))
	}
}

func TestRecorderWritesHeaderThenResults(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "recorder_log_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Start("baseline", Header{Scenario: "baseline", Policies: []string{"P1"}, StartYear: 1, EndYear: 2}); err != nil {
		t.Fatal(err)
	}
	r.LogResult(engine.Result{
		Scenario: "baseline", Application: "Cooling", Substance: "HFC-134a", Year: 1,
		Manufacture: units.Zero("kg"), Sales: units.Zero("kg"),
	})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 trace file, got %d", len(entries))
	}

	f, err := os.Open(filepath.Join(tempDir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 result line, got %d", len(lines))
	}
	if lines[0].Kind != "header" || lines[0].Header == nil || lines[0].Header.Scenario != "baseline" {
		t.Errorf("expected header record first, got %+v", lines[0])
	}
	if lines[1].Kind != "result" || lines[1].Result == nil || lines[1].Result.Year != 1 {
		t.Errorf("expected result record second, got %+v", lines[1])
	}
}
