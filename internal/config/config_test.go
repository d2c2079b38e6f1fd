package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Runner.Name != "qubectalksim" {
		t.Errorf("expected runner name 'qubectalksim', got %q", cfg.Runner.Name)
	}
	if cfg.Runner.LogFile != "qubectalksim.log" {
		t.Errorf("expected log file 'qubectalksim.log', got %q", cfg.Runner.LogFile)
	}
	if cfg.Simulation.DefaultTrials != 1 {
		t.Errorf("expected default trials 1, got %d", cfg.Simulation.DefaultTrials)
	}
	if cfg.Simulation.Strict {
		t.Error("expected Strict to default false")
	}
	if cfg.Simulation.MaxYearSpan != 500 {
		t.Errorf("expected max year span 500, got %d", cfg.Simulation.MaxYearSpan)
	}
	if cfg.Recorder.TraceDir != "data/traces" {
		t.Errorf("expected trace dir 'data/traces', got %q", cfg.Recorder.TraceDir)
	}
	if cfg.Recorder.MaxRotatedFiles != 3 {
		t.Errorf("expected max rotated files 3, got %d", cfg.Recorder.MaxRotatedFiles)
	}
	if !cfg.MCP.IsProgressiveOnly() {
		t.Error("expected MCP.IsProgressiveOnly to default true")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for empty path")
	}
	if err.Error() != "config path is required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
runner:
  name: "test-runner"
  version: "1.0.0"
  log_file: "test.log"

simulation:
  default_trials: 25
  strict: true
  max_year_span: 100

recorder:
  trace_dir: "traces"
  max_rotated_files: 5
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Runner.Name != "test-runner" {
		t.Errorf("expected runner name 'test-runner', got %q", cfg.Runner.Name)
	}
	if cfg.Simulation.DefaultTrials != 25 {
		t.Errorf("expected default trials 25, got %d", cfg.Simulation.DefaultTrials)
	}
	if !cfg.Simulation.Strict {
		t.Error("expected Strict true")
	}
	if cfg.Recorder.MaxRotatedFiles != 5 {
		t.Errorf("expected max rotated files 5, got %d", cfg.Recorder.MaxRotatedFiles)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty runner name",
			cfg:     Config{Runner: RunnerConfig{Name: ""}, Simulation: SimulationConfig{MaxYearSpan: 10}},
			wantErr: true,
			errMsg:  "runner.name is required",
		},
		{
			name:    "zero max year span",
			cfg:     Config{Runner: RunnerConfig{Name: "test"}, Simulation: SimulationConfig{MaxYearSpan: 0}},
			wantErr: true,
			errMsg:  "simulation.max_year_span must be positive",
		},
		{
			name:    "valid config",
			cfg:     Config{Runner: RunnerConfig{Name: "test"}, Simulation: SimulationConfig{MaxYearSpan: 10}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr && err.Error() != tt.errMsg {
				t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}
