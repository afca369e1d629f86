package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rendis/blueprint/pkg/schema"
)

// hashView is the part of a definition that affects compiler output.
// Name and metadata are excluded.
type hashView struct {
	Nodes []schema.NodeDefinition `json:"nodes"`
	Edges []schema.EdgeDefinition `json:"edges"`
}

// ComputeHash returns a stable SHA-256 of a definition's nodes and edges.
//
// The hash is independent of JSON formatting, map key order inside configs,
// the graph name and metadata. It changes when any node, config value or
// edge changes, and when nodes or edges are reordered, since order feeds
// cycle reporting and diagnostics.
func ComputeHash(def *schema.GraphDefinition) (string, error) {
	view := hashView{Nodes: def.Nodes, Edges: def.Edges}
	if view.Nodes == nil {
		view.Nodes = []schema.NodeDefinition{}
	}
	if view.Edges == nil {
		view.Edges = []schema.EdgeDefinition{}
	}

	data, err := json.Marshal(view)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeValidation, "failed to serialize graph for hashing").WithCause(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
