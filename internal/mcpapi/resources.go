package mcpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"qubectalk/internal/runner"
)

const resourceMIMEJSON = "application/json"

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"qubectalk://about",
			"QubecTalk About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("High-level server info and usage notes."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"qubectalk://session/{sessionId}/results{?application,substance}",
			"Session Results",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Read a run-batch session's result rows, optionally filtered by application/substance."),
		),
		s.handleSessionResultsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":    s.cfg.Runner.Name,
		"version": s.cfg.Runner.Version,
		"notes": []string{
			"Resources are read-only context endpoints; use tools for parsing, validating, and running programs.",
			"run-batch registers each scenario's session so its results can be re-read here without rerunning it.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}

	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func (s *Server) handleSessionResultsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessionID := argString(request.Params.Arguments["sessionId"])
	if sessionID == "" {
		return nil, fmt.Errorf("missing sessionId")
	}

	sess, ok := s.getSession(sessionID)
	if !ok {
		return nil, fmt.Errorf("no such session %q", sessionID)
	}

	application := argString(request.Params.Arguments["application"])
	substance := argString(request.Params.Arguments["substance"])

	payload := sessionResultsPayload(sess, application, substance)
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func sessionResultsPayload(sess *runner.ScenarioSession, application, substance string) map[string]interface{} {
	status, results, err := sess.Snapshot()

	select {
	case <-sess.Done():
	default:
		return map[string]interface{}{
			"session_id": sess.ID,
			"scenario":   sess.Scenario,
			"status":     string(status),
		}
	}

	if err != nil {
		return map[string]interface{}{
			"session_id": sess.ID,
			"scenario":   sess.Scenario,
			"status":     string(status),
			"error":      err.Error(),
		}
	}

	filtered := resultsForApplicationSubstance(results, application, substance)
	return map[string]interface{}{
		"session_id": sess.ID,
		"scenario":   sess.Scenario,
		"status":     string(status),
		"count":      len(filtered),
		"results":    filtered,
	}
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}
