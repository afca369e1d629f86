package nodes

// Direction tells whether a port consumes or produces a binding.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Multiplicity controls how many edges may leave an output port.
// Inputs always accept at most one edge regardless of multiplicity.
type Multiplicity string

const (
	MultiplicitySingle Multiplicity = "single"
	MultiplicityMulti  Multiplicity = "multi"
)

// PortDescriptor describes a typed connection point on a node kind.
type PortDescriptor struct {
	Name           string       `json:"name"`
	Direction      Direction    `json:"direction"`
	Multiplicity   Multiplicity `json:"multiplicity,omitempty"`
	Optional       bool         `json:"optional,omitempty"`
	DefaultLiteral string       `json:"default_literal,omitempty"`
	Type           string       `json:"type,omitempty"` // hint only, never checked
}

// IsInput reports whether the port is an input.
func (p PortDescriptor) IsInput() bool { return p.Direction == DirectionInput }

// IsOutput reports whether the port is an output.
func (p PortDescriptor) IsOutput() bool { return p.Direction == DirectionOutput }

// AllowsMultiple reports whether an output port may feed more than one edge.
func (p PortDescriptor) AllowsMultiple() bool { return p.Multiplicity == MultiplicityMulti }

// Input declares a required single input port.
func Input(name string) PortDescriptor {
	return PortDescriptor{Name: name, Direction: DirectionInput, Multiplicity: MultiplicitySingle}
}

// OptionalInput declares an input port that falls back to def when unconnected.
func OptionalInput(name, def string) PortDescriptor {
	p := Input(name)
	p.Optional = true
	p.DefaultLiteral = def
	return p
}

// Output declares an output port that may feed exactly one edge.
func Output(name string) PortDescriptor {
	return PortDescriptor{Name: name, Direction: DirectionOutput, Multiplicity: MultiplicitySingle}
}

// MultiOutput declares an output port that may feed any number of edges.
func MultiOutput(name string) PortDescriptor {
	p := Output(name)
	p.Multiplicity = MultiplicityMulti
	return p
}

// Typed returns a copy of p carrying a type hint.
func (p PortDescriptor) Typed(typ string) PortDescriptor {
	p.Type = typ
	return p
}
