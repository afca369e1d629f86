package schema

// GraphDefinition is the JSON-serializable blueprint graph handed to the compiler
// by the graph editor or the asset pipeline.
type GraphDefinition struct {
	Name     string           `json:"name,omitempty"`
	Nodes    []NodeDefinition `json:"nodes"`
	Edges    []EdgeDefinition `json:"edges,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// NodeDefinition describes one node instance. Config carries the kind-specific
// literal parameters (operator enums, flags, constant values).
type NodeDefinition struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config,omitempty"`
}

// EdgeDefinition wires an output port of one node to an input port of another.
type EdgeDefinition struct {
	From     string `json:"from"`
	FromPort string `json:"from_port"`
	To       string `json:"to"`
	ToPort   string `json:"to_port"`
}
