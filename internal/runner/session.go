// Package runner provides the outer-loop concurrency spec.md §5 anticipates
// but does not mandate: a SessionManager that runs a batch of named
// scenarios concurrently, one goroutine per scenario, each isolated from the
// others' failures. Grounded on the teacher's internal/browser.SessionManager
// (mutex-guarded session map, uuid-keyed sessions, Create/Attach/Fork/Close
// lifecycle, SPEC_FULL.md §4.7).
package runner

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"qubectalk/internal/engine"
	"qubectalk/internal/qtcompile"
	"qubectalk/internal/units"
)

// Status is a ScenarioSession's lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// ScenarioSession is one in-flight or completed scenario run.
type ScenarioSession struct {
	ID       string
	Scenario string
	Policies []string
	Status   Status

	mu      sync.Mutex
	results []engine.Result
	err     error
	done    chan struct{}
}

func (s *ScenarioSession) finish(results []engine.Result, err error) {
	s.mu.Lock()
	s.results = results
	s.err = err
	if err != nil {
		s.Status = StatusFailed
	} else {
		s.Status = StatusDone
	}
	s.mu.Unlock()
	close(s.done)
}

// snapshot returns the session's current status, results, and error without
// blocking for completion.
func (s *ScenarioSession) snapshot() (Status, []engine.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status, s.results, s.err
}

// Snapshot is the exported form of snapshot, for callers outside this
// package that want a non-blocking read (e.g. a resource handler rendering
// whatever is available right now).
func (s *ScenarioSession) Snapshot() (Status, []engine.Result, error) {
	return s.snapshot()
}

// Done returns a channel that closes once the session's run finishes,
// suitable for a select alongside a context's Done channel.
func (s *ScenarioSession) Done() <-chan struct{} {
	return s.done
}

// SessionManager owns a set of ScenarioSessions, each backed by its own
// goroutine running engine.RunScenario. A failure in one session's run is
// captured on that session alone and never propagates to others (spec.md
// §7, SPEC_FULL.md §4.7).
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ScenarioSession
	prog     *qtcompile.ParsedProgram
	rng      units.RNG
	strict   bool
	logger   *log.Logger
}

// NewSessionManager builds a manager bound to one compiled program. rng may
// be nil, defaulting to units.MeanRNG; logger may be nil, discarding
// warnings.
func NewSessionManager(prog *qtcompile.ParsedProgram, rng units.RNG, strict bool, logger *log.Logger) *SessionManager {
	if rng == nil {
		rng = units.MeanRNG{}
	}
	return &SessionManager{
		sessions: make(map[string]*ScenarioSession),
		prog:     prog,
		rng:      rng,
		strict:   strict,
		logger:   logger,
	}
}

func (m *SessionManager) findScenario(name string) (*qtcompile.ParsedScenario, error) {
	for _, s := range m.prog.Scenarios {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no such scenario %q", name)
}

// Create starts a new goroutine-backed run of the named scenario and
// returns its session immediately; the run proceeds in the background.
func (m *SessionManager) Create(scenarioName string) (*ScenarioSession, error) {
	scenario, err := m.findScenario(scenarioName)
	if err != nil {
		return nil, err
	}
	return m.start(scenario), nil
}

// CreateBatch starts one session per name in scenarioNames concurrently.
// Unknown scenario names produce a session that is immediately StatusFailed
// rather than aborting the whole batch.
func (m *SessionManager) CreateBatch(scenarioNames []string) []*ScenarioSession {
	out := make([]*ScenarioSession, len(scenarioNames))
	for i, name := range scenarioNames {
		sess, err := m.Create(name)
		if err != nil {
			sess = &ScenarioSession{
				ID:       uuid.NewString(),
				Scenario: name,
				Status:   StatusFailed,
				err:      err,
				done:     closedChan(),
			}
			m.register(sess)
		}
		out[i] = sess
	}
	return out
}

func (m *SessionManager) start(scenario *qtcompile.ParsedScenario) *ScenarioSession {
	sess := &ScenarioSession{
		ID:       uuid.NewString(),
		Scenario: scenario.Name,
		Policies: append([]string(nil), scenario.Policies...),
		Status:   StatusRunning,
		done:     make(chan struct{}),
	}
	m.register(sess)

	go func() {
		results, err := engine.RunScenario(m.prog, scenario, m.rng, m.strict, m.logger)
		sess.finish(results, err)
	}()

	return sess
}

func (m *SessionManager) register(sess *ScenarioSession) {
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Attach blocks until sessionID's run finishes (or ctx is cancelled) and
// returns its results.
func (m *SessionManager) Attach(ctx context.Context, sessionID string) ([]engine.Result, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	select {
	case <-sess.done:
		_, results, runErr := sess.snapshot()
		return results, runErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the session for sessionID, or an error if unknown.
func (m *SessionManager) Get(sessionID string) (*ScenarioSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %q", sessionID)
	}
	return sess, nil
}

// List returns every session the manager currently tracks.
func (m *SessionManager) List() []*ScenarioSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ScenarioSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Fork clones a finished session's scenario with a substituted policy list
// and starts a new run against the same compiled program, without
// re-parsing or re-compiling source. The original session's scenario
// definition in the program is left untouched; only the fork's in-memory
// copy carries newPolicies.
func (m *SessionManager) Fork(sessionID string, newPolicies []string) (*ScenarioSession, error) {
	orig, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	base, err := m.findScenario(orig.Scenario)
	if err != nil {
		return nil, err
	}
	forked := &qtcompile.ParsedScenario{
		Name:       base.Name,
		Policies:   append([]string(nil), newPolicies...),
		StartYear:  base.StartYear,
		EndYear:    base.EndYear,
		Trials:     base.Trials,
		GlobalDefs: base.GlobalDefs,
	}
	return m.start(forked), nil
}

// Close removes a session from the manager. It does not cancel an in-flight
// run; callers that want cancellation should not Attach first, since
// RunScenario does not currently accept a context.
func (m *SessionManager) Close(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("no such session %q", sessionID)
	}
	delete(m.sessions, sessionID)
	return nil
}
