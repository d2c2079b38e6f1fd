// Package recorder writes rotating JSON-lines trace files for scenario runs,
// a side channel an operator can inspect after the fact without re-running
// the simulation (SPEC_FULL.md §4.8). The engine never reads these back.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"qubectalk/internal/engine"
)

const (
	MaxRotatedFiles = 3
	TraceDir        = "data/traces"
)

// Header opens a trace file: the scenario's identity and year range, before
// any per-year result rows follow.
type Header struct {
	Scenario  string   `json:"scenario"`
	Policies  []string `json:"policies"`
	StartYear int      `json:"start_year"`
	EndYear   int      `json:"end_year"`
}

// Record is one line of a trace file: either a header or a result row.
type Record struct {
	Timestamp time.Time      `json:"ts"`
	Kind      string         `json:"kind"` // "header" or "result"
	Header    *Header        `json:"header,omitempty"`
	Result    *engine.Result `json:"result,omitempty"`
}

// Recorder manages one rotating trace file at a time.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
}

// NewRecorder creates a recorder rooted at basePath, creating the directory
// if needed. An empty basePath defaults to TraceDir.
func NewRecorder(basePath string) (*Recorder, error) {
	if basePath == "" {
		basePath = TraceDir
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: basePath}, nil
}

// Start begins a new trace for scenarioName, rotating prior traces for that
// same scenario and writing the header record.
func (r *Recorder) Start(scenarioName string, header Header) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	if err := r.rotate(scenarioName); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	filename := fmt.Sprintf("trace_%s_%s.jsonl", scenarioName, uuid.NewString())
	path := filepath.Join(r.basePath, filename)
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	return r.encoder.Encode(Record{Timestamp: time.Now(), Kind: "header", Header: &header})
}

// LogResult appends one engine.Result row to the current trace.
func (r *Recorder) LogResult(res engine.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Record{Timestamp: time.Now(), Kind: "result", Result: &res})
}

// rotate keeps only the newest MaxRotatedFiles-1 traces for scenarioName,
// making room for the one Start is about to create.
func (r *Recorder) rotate(scenarioName string) error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	prefix := fmt.Sprintf("trace_%s_", scenarioName)
	var traces []struct {
		Name string
		Time time.Time
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, struct {
			Name string
			Time time.Time
		}{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].Time.After(traces[j].Time)
	})

	if len(traces) >= MaxRotatedFiles {
		keep := MaxRotatedFiles - 1
		if keep < 0 {
			keep = 0
		}
		for i := keep; i < len(traces); i++ {
			_ = os.Remove(filepath.Join(r.basePath, traces[i].Name))
		}
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}
