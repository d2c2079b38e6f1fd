package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"qubectalk/internal/engine"
	"qubectalk/internal/facade"
	"qubectalk/internal/lint"
	"qubectalk/internal/qtcompile"
	"qubectalk/internal/qtparse"
	"qubectalk/internal/runner"
)

// ParseProgramTool parses source and reports either parse errors or a
// structural summary of the resulting program.
type ParseProgramTool struct{}

func (t *ParseProgramTool) Name() string { return "parse-program" }
func (t *ParseProgramTool) Description() string {
	return `Parse QubecTalk source and report either parse errors or a summary
of the resulting program (applications, substances, policies, scenarios).

USE THIS FIRST to check that source is syntactically valid before
validate-program or run-scenario.`
}
func (t *ParseProgramTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source": map[string]interface{}{
				"type":        "string",
				"description": "QubecTalk source text",
			},
		},
		"required": []string{"source"},
	}
}
func (t *ParseProgramTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	source := getStringArg(args, "source")
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}

	parseResult := qtparse.Parse(source)
	if parseResult.HasErrors() {
		return map[string]interface{}{
			"ok":     false,
			"errors": parseErrorStrings(parseResult.Errors()),
		}, nil
	}

	prog, _ := parseResult.Program()
	compiled, compileErrs := qtcompile.Compile(prog)
	if len(compileErrs) > 0 {
		return map[string]interface{}{
			"ok":             false,
			"compile_errors": compileErrorStrings(compileErrs),
		}, nil
	}

	return map[string]interface{}{
		"ok":           true,
		"applications": applicationNames(compiled),
		"policies":     policyNames(compiled),
		"scenarios":    scenarioNames(compiled),
	}, nil
}

// ValidateProgramTool parses, compiles, and lints source without executing
// anything, surfacing structural and Mangle-derived diagnostics together.
type ValidateProgramTool struct{}

func (t *ValidateProgramTool) Name() string { return "validate-program" }
func (t *ValidateProgramTool) Description() string {
	return `Parse, compile, and lint QubecTalk source without executing it.

Returns parse errors, compile errors, and Mangle-derived diagnostics
(unreachable policies, undefined policy references, same-pair application
conflicts) so a caller can fix a program before spending a run-scenario call
on it.`
}
func (t *ValidateProgramTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source": map[string]interface{}{
				"type":        "string",
				"description": "QubecTalk source text",
			},
		},
		"required": []string{"source"},
	}
}
func (t *ValidateProgramTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	source := getStringArg(args, "source")
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}

	parseResult := qtparse.Parse(source)
	if parseResult.HasErrors() {
		return map[string]interface{}{
			"ok":     false,
			"errors": parseErrorStrings(parseResult.Errors()),
		}, nil
	}

	prog, _ := parseResult.Program()
	compiled, compileErrs := qtcompile.Compile(prog)
	if len(compileErrs) > 0 {
		return map[string]interface{}{
			"ok":             false,
			"compile_errors": compileErrorStrings(compileErrs),
		}, nil
	}

	diags, err := lint.Lint(compiled)
	if err != nil {
		return map[string]interface{}{
			"ok":               true,
			"lint_unavailable": true,
			"lint_error":       err.Error(),
		}, nil
	}

	return map[string]interface{}{
		"ok":          true,
		"diagnostics": diagnosticPayloads(diags),
	}, nil
}

// ListScenariosTool enumerates a program's scenarios with their policy
// layering order.
type ListScenariosTool struct{}

func (t *ListScenariosTool) Name() string { return "list-scenarios" }
func (t *ListScenariosTool) Description() string {
	return `List every scenario a QubecTalk program declares, with its policy
layering order. Use this before run-scenario or run-batch to discover valid
scenario names.`
}
func (t *ListScenariosTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source": map[string]interface{}{
				"type":        "string",
				"description": "QubecTalk source text",
			},
		},
		"required": []string{"source"},
	}
}
func (t *ListScenariosTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	source := getStringArg(args, "source")
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}

	parseResult := qtparse.Parse(source)
	if parseResult.HasErrors() {
		return map[string]interface{}{
			"ok":     false,
			"errors": parseErrorStrings(parseResult.Errors()),
		}, nil
	}

	prog, _ := parseResult.Program()
	compiled, compileErrs := qtcompile.Compile(prog)
	if len(compileErrs) > 0 {
		return map[string]interface{}{
			"ok":             false,
			"compile_errors": compileErrorStrings(compileErrs),
		}, nil
	}

	scenarios := make([]map[string]interface{}, 0, len(compiled.Scenarios))
	for _, s := range compiled.Scenarios {
		scenarios = append(scenarios, map[string]interface{}{
			"name":     s.Name,
			"policies": s.Policies,
		})
	}

	return map[string]interface{}{"ok": true, "scenarios": scenarios}, nil
}

// RunScenarioTool runs one named scenario synchronously and returns its
// result rows.
type RunScenarioTool struct {
	server *Server
}

func (t *RunScenarioTool) Name() string { return "run-scenario" }
func (t *RunScenarioTool) Description() string {
	return `Run one named scenario from QubecTalk source and return its
result rows (one per application/substance/year).

On execution failure, returns the operation error with the failing
statement's kind and its index within its block.`
}
func (t *RunScenarioTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source": map[string]interface{}{
				"type":        "string",
				"description": "QubecTalk source text",
			},
			"scenario": map[string]interface{}{
				"type":        "string",
				"description": "Scenario name to run",
			},
			"strict": map[string]interface{}{
				"type":        "boolean",
				"description": "Treat cross-reference reads of an undefined (application, substance) as fatal",
			},
		},
		"required": []string{"source", "scenario"},
	}
}
func (t *RunScenarioTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	source := getStringArg(args, "source")
	scenarioName := getStringArg(args, "scenario")
	if source == "" || scenarioName == "" {
		return nil, fmt.Errorf("source and scenario are required")
	}

	f := &facade.Facade{Strict: getBoolArg(args, "strict", t.server.cfg.Simulation.Strict)}
	results, parseErrs, err := f.Run(source, scenarioName)
	if len(parseErrs) > 0 {
		return map[string]interface{}{"ok": false, "errors": parseErrorStrings(parseErrs)}, nil
	}
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}

	return map[string]interface{}{"ok": true, "results": results}, nil
}

// RunBatchTool runs several scenarios concurrently via internal/runner and
// returns a per-scenario result/error map.
type RunBatchTool struct {
	server *Server
}

func (t *RunBatchTool) Name() string { return "run-batch" }
func (t *RunBatchTool) Description() string {
	return `Run several scenarios from the same QubecTalk source concurrently
(one goroutine per scenario, via internal/runner.SessionManager) and return
a per-scenario result/error map.

A failure in one scenario never affects the others in the same batch
(spec.md §7). Each scenario's session is also registered for later lookup
via the qubectalk://session/{sessionId}/results resource.`
}
func (t *RunBatchTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source": map[string]interface{}{
				"type":        "string",
				"description": "QubecTalk source text",
			},
			"scenarios": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Scenario names to run concurrently",
			},
			"strict": map[string]interface{}{
				"type":        "boolean",
				"description": "Treat cross-reference reads of an undefined (application, substance) as fatal",
			},
		},
		"required": []string{"source", "scenarios"},
	}
}
func (t *RunBatchTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	source := getStringArg(args, "source")
	names := getStringSliceArg(args, "scenarios")
	if source == "" || len(names) == 0 {
		return nil, fmt.Errorf("source and scenarios are required")
	}

	parseResult := qtparse.Parse(source)
	if parseResult.HasErrors() {
		return map[string]interface{}{"ok": false, "errors": parseErrorStrings(parseResult.Errors())}, nil
	}
	prog, _ := parseResult.Program()
	compiled, compileErrs := qtcompile.Compile(prog)
	if len(compileErrs) > 0 {
		return map[string]interface{}{"ok": false, "compile_errors": compileErrorStrings(compileErrs)}, nil
	}

	strict := getBoolArg(args, "strict", t.server.cfg.Simulation.Strict)
	mgr := runner.NewSessionManager(compiled, nil, strict, nil)
	sessions := mgr.CreateBatch(names)

	out := make(map[string]interface{}, len(sessions))
	for _, sess := range sessions {
		t.server.putSession(sess)
		results, err := mgr.Attach(ctx, sess.ID)
		entry := map[string]interface{}{"session_id": sess.ID}
		if err != nil {
			entry["ok"] = false
			entry["error"] = err.Error()
		} else {
			entry["ok"] = true
			entry["results"] = results
		}
		out[sess.Scenario] = entry
	}

	return map[string]interface{}{"ok": true, "scenarios": out}, nil
}

func parseErrorStrings(errs []qtparse.ParseError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func compileErrorStrings(errs []qtcompile.CompileError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func applicationNames(prog *qtcompile.ParsedProgram) []string {
	return append([]string(nil), prog.Default.Order...)
}

func policyNames(prog *qtcompile.ParsedProgram) []string {
	out := make([]string, 0, len(prog.Policies))
	for name := range prog.Policies {
		out = append(out, name)
	}
	return out
}

func scenarioNames(prog *qtcompile.ParsedProgram) []string {
	out := make([]string, len(prog.Scenarios))
	for i, s := range prog.Scenarios {
		out[i] = s.Name
	}
	return out
}

func diagnosticPayloads(diags []lint.Diagnostic) []map[string]interface{} {
	out := make([]map[string]interface{}, len(diags))
	for i, d := range diags {
		severity := "warning"
		if d.Severity == lint.SeverityInfo {
			severity = "info"
		}
		out[i] = map[string]interface{}{
			"kind":     d.Kind,
			"message":  d.Message,
			"severity": severity,
		}
	}
	return out
}

func resultsForApplicationSubstance(results []engine.Result, application, substance string) []engine.Result {
	if application == "" && substance == "" {
		return results
	}
	out := make([]engine.Result, 0, len(results))
	for _, r := range results {
		if application != "" && !strings.EqualFold(r.Application, application) {
			continue
		}
		if substance != "" && !strings.EqualFold(r.Substance, substance) {
			continue
		}
		out = append(out, r)
	}
	return out
}
