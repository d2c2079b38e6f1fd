package mcpapi

import (
	"testing"

	"qubectalk/internal/config"
)

const sampleSource = `
start default
  define application "Cooling"
    uses substance "HFC-134a"
      set manufacture to 100 kg
    end substance
  end application
end default

start policy "Cap"
  modify application "Cooling"
    modify substance "HFC-134a"
      cap manufacture to 50 kg
    end substance
  end application
end policy

start simulations
  simulate "baseline" from years 1 to 2
  simulate "capped" using "Cap" from years 1 to 2
end simulations
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(config.DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return srv
}

func TestParseProgramTool(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.ExecuteTool("parse-program", map[string]interface{}{"source": sampleSource})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result type: %T", result)
	}
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %+v", payload)
	}
	scenarios, ok := payload["scenarios"].([]string)
	if !ok || len(scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %+v", payload["scenarios"])
	}
}

func TestParseProgramToolReportsParseErrors(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.ExecuteTool("parse-program", map[string]interface{}{"source": "this is not qubectalk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := result.(map[string]interface{})
	if payload["ok"] != false {
		t.Fatalf("expected ok=false for invalid source, got %+v", payload)
	}
	if _, ok := payload["errors"]; !ok {
		t.Error("expected errors field in payload")
	}
}

func TestValidateProgramTool(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.ExecuteTool("validate-program", map[string]interface{}{"source": sampleSource})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := result.(map[string]interface{})
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %+v", payload)
	}
}

func TestListScenariosTool(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.ExecuteTool("list-scenarios", map[string]interface{}{"source": sampleSource})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := result.(map[string]interface{})
	scenarios, ok := payload["scenarios"].([]map[string]interface{})
	if !ok || len(scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %+v", payload["scenarios"])
	}
}

func TestRunScenarioTool(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.ExecuteTool("run-scenario", map[string]interface{}{
		"source":   sampleSource,
		"scenario": "capped",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := result.(map[string]interface{})
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %+v", payload)
	}
}

func TestRunScenarioToolUnknownScenario(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.ExecuteTool("run-scenario", map[string]interface{}{
		"source":   sampleSource,
		"scenario": "nonexistent",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := result.(map[string]interface{})
	if payload["ok"] != false {
		t.Fatalf("expected ok=false for unknown scenario, got %+v", payload)
	}
}

func TestRunBatchTool(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.ExecuteTool("run-batch", map[string]interface{}{
		"source":    sampleSource,
		"scenarios": []interface{}{"baseline", "capped"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := result.(map[string]interface{})
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %+v", payload)
	}
	scenarios, ok := payload["scenarios"].(map[string]interface{})
	if !ok || len(scenarios) != 2 {
		t.Fatalf("expected 2 scenario entries, got %+v", payload["scenarios"])
	}

	baseline, ok := scenarios["baseline"].(map[string]interface{})
	if !ok || baseline["ok"] != true {
		t.Fatalf("expected baseline ok=true, got %+v", scenarios["baseline"])
	}

	sessionID, ok := baseline["session_id"].(string)
	if !ok || sessionID == "" {
		t.Fatalf("expected session_id in batch entry, got %+v", baseline)
	}
	if _, ok := srv.getSession(sessionID); !ok {
		t.Error("expected batch session to be registered on the server")
	}
}
