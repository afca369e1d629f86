package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlueprintServer(t *testing.T) {
	s := newServer(t, nil)
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.notifier)
	assert.Same(t, s.mcpServer, s.MCPServer())
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		toolName    string
		description string
	}{
		{"blueprint.compile", "Compile a blueprint graph into source text"},
		{"blueprint.validate", "Validate a blueprint graph without compiling it"},
		{"blueprint.kinds", "List registered node kinds and their ports"},
		{"blueprint.diagram", "Render a blueprint graph as a diagram. Returns Mermaid flowchart syntax, ASCII art, or a base64-encoded PNG image"},
		{"blueprint.history", "List recent compile artifacts, newest first"},
	}

	s := newServer(t, nil)
	require.Len(t, s.mcpServer.ListTools(), len(tests))

	for _, tc := range tests {
		t.Run(tc.toolName, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
