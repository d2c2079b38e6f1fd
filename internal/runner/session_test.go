package runner

import (
	"context"
	"testing"
	"time"

	"qubectalk/internal/qtcompile"
	"qubectalk/internal/qtparse"
)

func mustCompile(t *testing.T, src string) *qtcompile.ParsedProgram {
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

const twoScenarioSrc = `
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
  simulate "baseline" from years 1 to 3
  simulate "capped" using "Cap" from years 1 to 3
end simulations
`

func TestCreateAndAttach(t *testing.T) {
	prog := mustCompile(t, twoScenarioSrc)
	mgr := NewSessionManager(prog, nil, false, nil)

	sess, err := mgr.Create("baseline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected non-empty session ID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	results, err := mgr.Attach(ctx, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 years of results, got %d", len(results))
	}
}

func TestCreateUnknownScenario(t *testing.T) {
	prog := mustCompile(t, twoScenarioSrc)
	mgr := NewSessionManager(prog, nil, false, nil)

	if _, err := mgr.Create("nonexistent"); err == nil {
		t.Fatal("expected error for unknown scenario")
	}
}

func TestCreateBatchIsolatesFailures(t *testing.T) {
	prog := mustCompile(t, twoScenarioSrc)
	mgr := NewSessionManager(prog, nil, false, nil)

	sessions := mgr.CreateBatch([]string{"baseline", "bogus", "capped"})
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := mgr.Attach(ctx, sessions[0].ID); err != nil {
		t.Errorf("baseline session unexpectedly failed: %v", err)
	}
	if sessions[1].Status != StatusFailed {
		t.Errorf("expected bogus session to be failed immediately, got %v", sessions[1].Status)
	}
	if _, err := mgr.Attach(ctx, sessions[2].ID); err != nil {
		t.Errorf("capped session unexpectedly failed: %v", err)
	}
}

func TestFork(t *testing.T) {
	prog := mustCompile(t, twoScenarioSrc)
	mgr := NewSessionManager(prog, nil, false, nil)

	sess, err := mgr.Create("baseline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := mgr.Attach(ctx, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	forked, err := mgr.Fork(sess.ID, []string{"Cap"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if forked.ID == sess.ID {
		t.Fatal("expected forked session to have a new ID")
	}

	results, err := mgr.Attach(ctx, forked.ID)
	if err != nil {
		t.Fatalf("unexpected error forking with policy: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 years of results, got %d", len(results))
	}
}

func TestForkWithUnknownPolicyFailsOnThatSession(t *testing.T) {
	prog := mustCompile(t, twoScenarioSrc)
	mgr := NewSessionManager(prog, nil, false, nil)

	sess, err := mgr.Create("baseline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := mgr.Attach(ctx, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	forked, err := mgr.Fork(sess.ID, []string{"NoSuchPolicy"})
	if err != nil {
		t.Fatalf("unexpected error starting fork: %v", err)
	}
	if _, err := mgr.Attach(ctx, forked.ID); err == nil {
		t.Error("expected error for unknown policy in forked scenario")
	}

	// original session must be unaffected.
	if _, err := mgr.Attach(ctx, sess.ID); err != nil {
		t.Errorf("original session affected by fork failure: %v", err)
	}
}

func TestCloseRemovesSession(t *testing.T) {
	prog := mustCompile(t, twoScenarioSrc)
	mgr := NewSessionManager(prog, nil, false, nil)

	sess, err := mgr.Create("baseline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := mgr.Attach(ctx, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mgr.Close(sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.Get(sess.ID); err == nil {
		t.Error("expected error getting closed session")
	}
	if err := mgr.Close(sess.ID); err == nil {
		t.Error("expected error closing already-closed session")
	}
}

func TestListReturnsAllSessions(t *testing.T) {
	prog := mustCompile(t, twoScenarioSrc)
	mgr := NewSessionManager(prog, nil, false, nil)

	if _, err := mgr.Create("baseline"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.Create("capped"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(mgr.List()); got != 2 {
		t.Fatalf("expected 2 sessions, got %d", got)
	}
}
