package schema

import "time"

// CompiledArtifact is the outcome of one compile pass.
// On success Diagnostics holds no errors and SourceText is the emitted program.
// On failure SourceText is empty; Partial may hold the lines emitted before a
// node failed, for diagnostics only.
type CompiledArtifact struct {
	ID            string                       `json:"id"`
	GraphName     string                       `json:"graph_name,omitempty"`
	GraphHash     string                       `json:"graph_hash,omitempty"`
	Status        CompileStatus                `json:"status"`
	SourceText    string                       `json:"source_text"`
	Order         []string                     `json:"order,omitempty"`
	OutputsByNode map[string]map[string]string `json:"outputs_by_node,omitempty"`
	Diagnostics   Diagnostics                  `json:"diagnostics"`
	Partial       []string                     `json:"partial,omitempty"`
	Cached        bool                         `json:"cached,omitempty"`
	DurationMs    int64                        `json:"duration_ms"`
	CreatedAt     time.Time                    `json:"created_at"`
}

// Succeeded reports whether the pass reached the compiled state.
func (a *CompiledArtifact) Succeeded() bool {
	return a.Status == CompileStatusCompiled
}

// Err returns nil for a compiled artifact, otherwise the diagnostics as an error.
func (a *CompiledArtifact) Err() error {
	if a.Succeeded() {
		return nil
	}
	if err := a.Diagnostics.ToError(); err != nil {
		return err
	}
	return NewErrorf(ErrCodeValidation, "compile ended in state %s", a.Status)
}

// Clone returns a deep copy so cached artifacts are never shared mutably.
func (a *CompiledArtifact) Clone() *CompiledArtifact {
	if a == nil {
		return nil
	}
	c := *a
	c.Order = append([]string(nil), a.Order...)
	c.Partial = append([]string(nil), a.Partial...)
	c.Diagnostics = Diagnostics{
		Errors:   append([]Diagnostic(nil), a.Diagnostics.Errors...),
		Warnings: append([]Diagnostic(nil), a.Diagnostics.Warnings...),
	}
	if a.OutputsByNode != nil {
		c.OutputsByNode = make(map[string]map[string]string, len(a.OutputsByNode))
		for id, outs := range a.OutputsByNode {
			m := make(map[string]string, len(outs))
			for port, ident := range outs {
				m[port] = ident
			}
			c.OutputsByNode[id] = m
		}
	}
	return &c
}
