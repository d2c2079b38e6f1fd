// Package config loads QubecTalk's runtime settings: defaults overlaid with
// an optional workspace file and an explicit --config flag, following the
// teacher's config.go merge order (SPEC_FULL.md §2.1).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level QubecTalk config.
	WorkspaceDirName = ".qubectalk"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the qubectalksim driver.
type Config struct {
	Runner     RunnerConfig     `yaml:"runner"`
	Simulation SimulationConfig `yaml:"simulation"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	MCP        MCPConfig        `yaml:"mcp"`
}

type RunnerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// SimulationConfig bounds how a scenario may be run when no explicit CLI
// flag overrides it.
type SimulationConfig struct {
	// DefaultTrials is loaded from the config file; the simulation driver
	// does not read it, and every scenario runs once.
	DefaultTrials int `yaml:"default_trials"`
	// Strict makes cross-substance reads of a nonexistent (application,
	// substance) fatal instead of a logged warning (spec.md §7).
	Strict bool `yaml:"strict"`
	// MaxYearSpan must be positive (see Validate); scenario `from years A
	// to B` ranges are not checked against it.
	MaxYearSpan int `yaml:"max_year_span"`
}

type RecorderConfig struct {
	TraceDir        string `yaml:"trace_dir"`
	MaxRotatedFiles int    `yaml:"max_rotated_files"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
	// ProgressiveOnly mirrors the teacher's progressive-disclosure toggle.
	// Tool registration does not read it; every tool is always registered.
	ProgressiveOnly *bool `yaml:"progressive_only"`
}

// DefaultConfig provides reasonable defaults for local use.
func DefaultConfig() Config {
	return Config{
		Runner: RunnerConfig{
			Name:    "qubectalksim",
			Version: "0.1.0",
			LogFile: "qubectalksim.log",
		},
		Simulation: SimulationConfig{
			DefaultTrials: 1,
			Strict:        false,
			MaxYearSpan:   500,
		},
		Recorder: RecorderConfig{
			TraceDir:        "data/traces",
			MaxRotatedFiles: 3,
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
	}
}

// Load reads YAML config from disk and overlays it onto the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .qubectalk/config.yaml file.
// Returns the workspace root directory (parent of .qubectalk/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements the multi-layer config merge:
//
//	DefaultConfig() <- .qubectalk/config.yaml <- explicit --config
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .qubectalk/ directory with a template config at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# QubecTalk project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.

# simulation:
#   default_trials: 10
#   strict: false
#   max_year_span: 200

# recorder:
#   trace_dir: ".qubectalk/data/traces"

# mcp:
#   sse_port: 0
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignoreContent := "# Runtime data (logs, traces) - do not version control\ndata/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Runner.LogFile = resolve(cfg.Runner.LogFile)
	cfg.Recorder.TraceDir = resolve(cfg.Recorder.TraceDir)
	return cfg
}

// Validate ensures required fields exist so the driver can start deterministically.
func (c *Config) Validate() error {
	if c.Runner.Name == "" {
		return errors.New("runner.name is required")
	}
	if c.Simulation.MaxYearSpan <= 0 {
		return errors.New("simulation.max_year_span must be positive")
	}
	return nil
}

// IsProgressiveOnly returns the ProgressiveOnly setting (default: true); tool registration does not consult it.
func (m MCPConfig) IsProgressiveOnly() bool {
	if m.ProgressiveOnly == nil {
		return true
	}
	return *m.ProgressiveOnly
}
