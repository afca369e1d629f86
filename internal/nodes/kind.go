package nodes

import (
	"context"
	"encoding/json"

	"github.com/rendis/blueprint/internal/emit"
)

// DefaultIdentifierPrefix is used for output identifiers when a kind sets none.
const DefaultIdentifierPrefix = "v"

// Binding is the value attached to an input port during one compile pass:
// a generated identifier from the producing node or a literal default.
type Binding struct {
	Value   string `json:"value"`
	Literal bool   `json:"literal,omitempty"`
}

// ExecContext is everything a behavior sees while a node executes.
type ExecContext struct {
	Context context.Context
	NodeID  string
	Kind    *Kind
	Config  map[string]any
	Inputs  map[string]Binding
	Emitter emit.Emitter
}

// Input returns the bound value of an input port, or "" when the port is unknown.
func (ec *ExecContext) Input(name string) string {
	return ec.Inputs[name].Value
}

// Prefix returns the identifier prefix for this node's outputs.
func (ec *ExecContext) Prefix() string {
	if ec.Kind != nil && ec.Kind.IdentifierPrefix != "" {
		return ec.Kind.IdentifierPrefix
	}
	return DefaultIdentifierPrefix
}

// Behavior emits the statements of one node and returns an identifier for
// every declared output port.
type Behavior interface {
	Execute(ec *ExecContext) (map[string]string, error)
}

// BehaviorFunc adapts a function to the Behavior interface.
type BehaviorFunc func(ec *ExecContext) (map[string]string, error)

// Execute calls f(ec).
func (f BehaviorFunc) Execute(ec *ExecContext) (map[string]string, error) { return f(ec) }

// Factory builds the behavior of a node from its configuration.
type Factory func(config map[string]any) (Behavior, error)

// TemplateLine is one statement of a code template. Text may contain
// ${{ namespace.path }} placeholders; When is an optional guard expression.
type TemplateLine struct {
	Text string `json:"text"`
	When string `json:"when,omitempty"`
}

// Template is the ordered list of statements a kind emits.
type Template []TemplateLine

// Lines builds an unguarded template from raw statement texts.
func Lines(texts ...string) Template {
	t := make(Template, len(texts))
	for i, s := range texts {
		t[i] = TemplateLine{Text: s}
	}
	return t
}

// Kind is a registry entry: the declared ports of a node kind plus how it emits code.
type Kind struct {
	Name        string
	Description string
	Category    string
	Version     string

	Ports    []PortDescriptor
	Factory  Factory  // nil means the Template drives emission
	Template Template

	ConfigSchema json.RawMessage // JSON Schema for the node configuration
	ConfigRules  []string        // CEL predicates over `config` and `node`

	IdentifierPrefix string
	// ImplicitDefaults lets required inputs that declare a DefaultLiteral
	// fall back to it instead of failing validation.
	ImplicitDefaults bool
}

// Port looks up a declared port by name.
func (k *Kind) Port(name string) (PortDescriptor, bool) {
	for _, p := range k.Ports {
		if p.Name == name {
			return p, true
		}
	}
	return PortDescriptor{}, false
}

// Inputs returns the input ports in declaration order.
func (k *Kind) Inputs() []PortDescriptor {
	return k.filter(DirectionInput)
}

// Outputs returns the output ports in declaration order.
func (k *Kind) Outputs() []PortDescriptor {
	return k.filter(DirectionOutput)
}

func (k *Kind) filter(d Direction) []PortDescriptor {
	out := make([]PortDescriptor, 0, len(k.Ports))
	for _, p := range k.Ports {
		if p.Direction == d {
			out = append(out, p)
		}
	}
	return out
}

// Behavior returns the behavior for a node configured with config.
func (k *Kind) Behavior(config map[string]any) (Behavior, error) {
	if k.Factory != nil {
		return k.Factory(config)
	}
	return &templateBehavior{template: k.Template}, nil
}

// clone copies the slices of a kind so the registry owns its entry.
func (k Kind) clone() *Kind {
	k.Ports = append([]PortDescriptor(nil), k.Ports...)
	k.Template = append(Template(nil), k.Template...)
	k.ConfigRules = append([]string(nil), k.ConfigRules...)
	k.ConfigSchema = append(json.RawMessage(nil), k.ConfigSchema...)
	return &k
}
