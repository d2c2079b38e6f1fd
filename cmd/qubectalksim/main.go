// Command qubectalksim is the QubecTalk driver: either run a scenario
// directly from a source file and print its results, or serve the MCP
// surface (stdio or SSE) for tool-driven access (SPEC_FULL.md §2.1).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qubectalk/internal/config"
	"qubectalk/internal/facade"
	"qubectalk/internal/mcpapi"
)

func main() {
	configPath := flag.String("config", "", "Path to the qubectalksim config file (overrides workspace config)")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	noWorkspace := flag.Bool("no-workspace", false, "Disable .qubectalk/ workspace discovery")
	workspaceDir := flag.String("workspace-dir", "", "Explicit workspace root (skip walk-up discovery)")
	initWorkspace := flag.Bool("init-workspace", false, "Create .qubectalk/ template in current directory and exit")
	runFile := flag.String("run-file", "", "Run a scenario directly from this source file instead of serving MCP")
	scenarioName := flag.String("scenario", "", "Scenario name to run with -run-file")
	strict := flag.Bool("strict", false, "Treat cross-reference reads of an undefined (application, substance) as fatal")
	flag.Parse()

	if *initWorkspace {
		root := "."
		if *workspaceDir != "" {
			root = *workspaceDir
		}
		if err := config.InitWorkspace(root); err != nil {
			log.Fatalf("failed to initialize workspace: %v", err)
		}
		log.Printf("created .qubectalk/ workspace in %s", root)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := config.WorkspaceOptions{
		Disable:     *noWorkspace,
		ExplicitDir: *workspaceDir,
	}

	cfg, wsDir, err := config.LoadWithWorkspace(*configPath, opts)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if wsDir != "" {
		log.Printf("using workspace config from %s", wsDir)
	}

	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	if *runFile != "" {
		runScenarioDirect(*runFile, *scenarioName, *strict || cfg.Simulation.Strict)
		return
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol).
	if cfg.MCP.SSEPort == 0 && cfg.Runner.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Runner.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}

	server, err := mcpapi.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to initialize MCP server: %v", err)
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting qubectalksim MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting qubectalksim MCP stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("server exited with error: %v", startErr)
	}
}

func runScenarioDirect(path, scenarioName string, strict bool) {
	if scenarioName == "" {
		log.Fatalf("-scenario is required with -run-file")
	}

	f := &facade.Facade{Strict: strict}
	results, parseErrs, err := f.RunFile(path, scenarioName)
	if len(parseErrs) > 0 {
		for _, pe := range parseErrs {
			fmt.Fprintln(os.Stderr, pe.Error())
		}
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Fatalf("failed to encode results: %v", err)
	}
}
