package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/blueprint/internal/diagram"
	"github.com/rendis/blueprint/internal/graph"
	"github.com/rendis/blueprint/internal/loader"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/internal/store"
	"github.com/rendis/blueprint/pkg/schema"
)

const defaultHistoryLimit = 20

// handleCompile compiles a graph. A failed pass is returned as an error
// result that still carries the artifact and its diagnostics.
func (s *BlueprintServer) handleCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, errResult := definitionArg(req)
	if errResult != nil {
		return errResult, nil
	}

	artifact, err := s.compiler.Compile(ctx, def)
	if artifact == nil {
		return mcp.NewToolResultError(fmt.Sprintf("compile failed: %v", err)), nil
	}

	if nErr := s.notifier.Notify(ctx, map[string]any{
		"level":  "info",
		"logger": "blueprint",
		"data": map[string]any{
			"compile_id": artifact.ID,
			"graph":      artifact.GraphName,
			"status":     artifact.Status,
		},
	}); nErr != nil {
		s.logger.Debug("compile notification not sent", "error", nErr)
	}

	result, mErr := marshalResult(artifact)
	if mErr != nil || result == nil {
		return result, mErr
	}
	result.IsError = err != nil
	return result, nil
}

// handleValidate runs the validation pipeline and returns every diagnostic.
func (s *BlueprintServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, errResult := definitionArg(req)
	if errResult != nil {
		return errResult, nil
	}

	diags := s.compiler.Validate(ctx, def)
	return marshalResult(map[string]any{
		"valid":       diags.Valid(),
		"errors":      nonNil(diags.Errors),
		"warnings":    nonNil(diags.Warnings),
		"error_count": len(diags.Errors),
	})
}

// handleKinds lists the node kind catalog.
func (s *BlueprintServer) handleKinds(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.kinds == nil {
		return mcp.NewToolResultError("no node kind catalog configured"), nil
	}
	category := req.GetString("category", "")

	kinds := make([]nodes.KindInfo, 0)
	for _, k := range s.kinds.List() {
		if category != "" && k.Category != category {
			continue
		}
		kinds = append(kinds, k)
	}
	return marshalResult(map[string]any{"kinds": kinds, "count": len(kinds)})
}

// handleDiagram renders a graph, optionally with the outcome of a compile pass.
func (s *BlueprintServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, errResult := definitionArg(req)
	if errResult != nil {
		return errResult, nil
	}
	format := req.GetString("format", "mermaid")
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be mermaid, ascii, or image"), nil
	}

	var artifact *schema.CompiledArtifact
	if req.GetString("include_status", "false") == "true" {
		artifact, _ = s.compiler.Compile(ctx, def)
	}

	// Invalid graphs are still drawn; unknown kinds render as such.
	model, err := diagram.Build(graph.New(def, s.compiler.Resolver()), artifact)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "image":
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	default:
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	}
}

// handleHistory lists recent artifacts from the store.
func (s *BlueprintServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("compile history is not enabled"), nil
	}

	limit := defaultHistoryLimit
	if raw := req.GetString("limit", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return mcp.NewToolResultError("limit must be a positive integer"), nil
		}
		limit = n
	}

	artifacts, err := s.history.ListArtifacts(ctx, store.ArtifactFilter{
		GraphName: req.GetString("graph_name", ""),
		Status:    schema.CompileStatus(req.GetString("status", "")),
		Limit:     limit,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", err)), nil
	}
	if artifacts == nil {
		artifacts = []*schema.CompiledArtifact{}
	}
	return marshalResult(map[string]any{"artifacts": artifacts, "count": len(artifacts)})
}

// --- Helpers ---

// definitionArg decodes the "definition" argument strictly. The second
// return value is the tool error to send back when decoding fails.
func definitionArg(req mcp.CallToolRequest) (*schema.GraphDefinition, *mcp.CallToolResult) {
	raw := mcp.ParseStringMap(req, "definition", nil)
	if raw == nil {
		return nil, mcp.NewToolResultError("definition is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("definition is not valid JSON: %v", err))
	}
	def, err := loader.Decode(data)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err))
	}
	return def, nil
}

func nonNil(d []schema.Diagnostic) []schema.Diagnostic {
	if d == nil {
		return []schema.Diagnostic{}
	}
	return d
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
