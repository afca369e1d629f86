package validation

import (
	"context"
	"fmt"

	"github.com/rendis/blueprint/internal/expressions"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/pkg/schema"
)

type portKey struct {
	node string
	port string
}

// semanticChecker reports every semantic problem of a structurally valid graph.
type semanticChecker struct {
	kinds  nodes.Resolver
	schema *JSONSchemaValidator
	rules  *expressions.CELEngine
}

// validateSemantic checks node ids, kinds, configs, edge endpoints, port
// directions and port arity. Nothing short-circuits: every violation is reported.
func (sc *semanticChecker) validateSemantic(ctx context.Context, def *schema.GraphDefinition) *schema.Diagnostics {
	result := &schema.Diagnostics{}

	resolved := make(map[string]*nodes.Kind, len(def.Nodes))
	order := make([]string, 0, len(def.Nodes))

	for _, nd := range def.Nodes {
		if _, dup := resolved[nd.ID]; dup {
			result.AddError(schema.Diagnostic{
				Code:    schema.ErrCodeDuplicateNode,
				NodeID:  nd.ID,
				Message: fmt.Sprintf("node id %q is declared more than once", nd.ID),
			})
			continue
		}

		kind, err := sc.kinds.Resolve(nd.Kind)
		if err != nil {
			resolved[nd.ID] = nil
			order = append(order, nd.ID)
			result.AddError(schema.Diagnostic{
				Code:    schema.ErrCodeUnknownNodeKind,
				NodeID:  nd.ID,
				Message: fmt.Sprintf("node kind %q is not registered", nd.Kind),
			})
			continue
		}
		resolved[nd.ID] = kind
		order = append(order, nd.ID)

		for _, d := range sc.checkConfig(ctx, nd, kind) {
			result.AddError(d)
		}
	}

	inbound := make(map[portKey]int)
	outbound := make(map[portKey]int)
	var inboundOrder, outboundOrder []portKey
	connected := make(map[string]bool)

	for i, e := range def.Edges {
		connected[e.From] = true
		connected[e.To] = true

		fromKind, fromOK := resolved[e.From]
		toKind, toOK := resolved[e.To]
		if !fromOK {
			result.AddError(edgeDiag(schema.ErrCodeUnknownNode, e.From, "", i,
				fmt.Sprintf("source node %q does not exist", e.From)))
		}
		if !toOK {
			result.AddError(edgeDiag(schema.ErrCodeUnknownNode, e.To, "", i,
				fmt.Sprintf("target node %q does not exist", e.To)))
		}

		fromValid := fromKind != nil && checkEdgePort(result, fromKind, e.From, e.FromPort, nodes.DirectionOutput, i)
		toValid := toKind != nil && checkEdgePort(result, toKind, e.To, e.ToPort, nodes.DirectionInput, i)

		// Arity is counted over fully valid edges only.
		if !fromValid || !toValid {
			continue
		}
		out := portKey{e.From, e.FromPort}
		if outbound[out] == 0 {
			outboundOrder = append(outboundOrder, out)
		}
		outbound[out]++

		in := portKey{e.To, e.ToPort}
		if inbound[in] == 0 {
			inboundOrder = append(inboundOrder, in)
		}
		inbound[in]++
	}

	for _, k := range inboundOrder {
		if n := inbound[k]; n > 1 {
			result.AddError(schema.Diagnostic{
				Code:    schema.ErrCodeMultipleEdges,
				NodeID:  k.node,
				Port:    k.port,
				Message: fmt.Sprintf("input port receives %d edges; at most one is allowed", n),
			})
		}
	}
	for _, k := range outboundOrder {
		port, _ := resolved[k.node].Port(k.port)
		if n := outbound[k]; n > 1 && !port.AllowsMultiple() {
			result.AddError(schema.Diagnostic{
				Code:    schema.ErrCodeFanOutNotAllowed,
				NodeID:  k.node,
				Port:    k.port,
				Message: fmt.Sprintf("output port feeds %d edges but has single multiplicity", n),
			})
		}
	}

	for _, id := range order {
		kind := resolved[id]
		if kind == nil {
			continue
		}
		for _, p := range kind.Inputs() {
			if p.Optional || inbound[portKey{id, p.Name}] > 0 {
				continue
			}
			if kind.ImplicitDefaults && p.DefaultLiteral != "" {
				continue
			}
			result.AddError(schema.Diagnostic{
				Code:    schema.ErrCodeMissingInput,
				NodeID:  id,
				Port:    p.Name,
				Message: "required input port has no incoming edge",
			})
		}
	}

	if len(order) > 1 {
		for _, id := range order {
			if !connected[id] {
				result.AddWarning(schema.Diagnostic{
					Code:    schema.ErrCodeIsolatedNode,
					NodeID:  id,
					Message: "node has no edges",
				})
			}
		}
	}

	return result
}

// checkEdgePort verifies that port exists on kind with the wanted direction.
func checkEdgePort(result *schema.Diagnostics, kind *nodes.Kind, nodeID, port string, want nodes.Direction, edge int) bool {
	p, ok := kind.Port(port)
	if !ok {
		result.AddError(edgeDiag(schema.ErrCodeUnknownPort, nodeID, port, edge,
			fmt.Sprintf("kind %q has no port %q", kind.Name, port)))
		return false
	}
	if p.Direction != want {
		result.AddError(edgeDiag(schema.ErrCodePortDirection, nodeID, port, edge,
			fmt.Sprintf("port is an %s but the edge uses it as an %s", p.Direction, want)))
		return false
	}
	return true
}

func edgeDiag(code, nodeID, port string, edge int, msg string) schema.Diagnostic {
	return schema.Diagnostic{
		Code:    code,
		NodeID:  nodeID,
		Port:    port,
		Message: fmt.Sprintf("edges[%d]: %s", edge, msg),
	}
}

// checkConfig validates a node config against its kind's JSON Schema, CEL
// rules and factory. Rules and factory only run once the schema passes.
func (sc *semanticChecker) checkConfig(ctx context.Context, nd schema.NodeDefinition, kind *nodes.Kind) []schema.Diagnostic {
	var diags []schema.Diagnostic
	invalid := func(msg string) {
		diags = append(diags, schema.Diagnostic{
			Code:    schema.ErrCodeInvalidConfig,
			NodeID:  nd.ID,
			Message: msg,
		})
	}

	if err := sc.schema.ValidateConfig(nd.Config, kind.ConfigSchema); err != nil {
		for _, v := range violationsOf(err) {
			invalid(v)
		}
		return diags
	}

	cfg := nd.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	data := map[string]any{
		"config": cfg,
		"node":   map[string]any{"id": nd.ID, "kind": nd.Kind},
	}
	for _, rule := range kind.ConfigRules {
		ok, err := sc.rules.EvalBool(ctx, rule, data)
		switch {
		case err != nil:
			invalid(fmt.Sprintf("config rule %q: %v", rule, err))
		case !ok:
			invalid(fmt.Sprintf("config rule %q is not satisfied", rule))
		}
	}
	if len(diags) > 0 {
		return diags
	}

	if kind.Factory != nil {
		if _, err := kind.Behavior(cfg); err != nil {
			invalid(fmt.Sprintf("kind %q rejected config: %v", kind.Name, err))
		}
	}
	return diags
}
