package schema

import (
	"fmt"
	"strings"
)

// DiagnosticSeverity indicates whether an issue is an error or warning.
type DiagnosticSeverity string

const (
	SeverityError   DiagnosticSeverity = "error"
	SeverityWarning DiagnosticSeverity = "warning"
)

// Diagnostic is a single structured problem found while validating or compiling a graph.
// Nodes is set for diagnostics that span several nodes (e.g. a cycle).
type Diagnostic struct {
	Code     string             `json:"code"`
	Severity DiagnosticSeverity `json:"severity"`
	NodeID   string             `json:"node_id,omitempty"`
	Port     string             `json:"port,omitempty"`
	Nodes    []string           `json:"nodes,omitempty"`
	Message  string             `json:"message"`
}

// String renders the diagnostic as a single human-readable line.
func (d Diagnostic) String() string {
	var loc string
	switch {
	case len(d.Nodes) > 0:
		loc = strings.Join(d.Nodes, " -> ")
	case d.NodeID != "" && d.Port != "":
		loc = d.NodeID + "." + d.Port
	case d.NodeID != "":
		loc = d.NodeID
	}
	if loc == "" {
		return fmt.Sprintf("%s [%s] %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", d.Severity, d.Code, loc, d.Message)
}

// Diagnostics aggregates all issues from the validation pipeline and the compile pass.
type Diagnostics struct {
	Errors   []Diagnostic `json:"errors,omitempty"`
	Warnings []Diagnostic `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (d *Diagnostics) Valid() bool {
	return len(d.Errors) == 0
}

// AddError appends an error-severity diagnostic.
func (d *Diagnostics) AddError(diag Diagnostic) {
	diag.Severity = SeverityError
	d.Errors = append(d.Errors, diag)
}

// AddWarning appends a warning-severity diagnostic.
func (d *Diagnostics) AddWarning(diag Diagnostic) {
	diag.Severity = SeverityWarning
	d.Warnings = append(d.Warnings, diag)
}

// Merge combines another Diagnostics into this one.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	d.Errors = append(d.Errors, other.Errors...)
	d.Warnings = append(d.Warnings, other.Warnings...)
}

// Count returns how many errors carry the given code.
func (d *Diagnostics) Count(code string) int {
	n := 0
	for _, e := range d.Errors {
		if e.Code == code {
			n++
		}
	}
	return n
}

// Has reports whether any error carries the given code.
func (d *Diagnostics) Has(code string) bool {
	return d.Count(code) > 0
}

// All returns errors followed by warnings.
func (d *Diagnostics) All() []Diagnostic {
	all := make([]Diagnostic, 0, len(d.Errors)+len(d.Warnings))
	all = append(all, d.Errors...)
	return append(all, d.Warnings...)
}

// ToError converts the diagnostics to a BlueprintError if invalid, nil if valid.
// A single error keeps its own code; several errors are reported as VALIDATION_ERROR.
func (d *Diagnostics) ToError() error {
	if d.Valid() {
		return nil
	}

	if len(d.Errors) == 1 {
		e := d.Errors[0]
		return NewError(e.Code, e.Message).
			WithNode(e.NodeID).
			WithPort(e.Port).
			WithDetails(map[string]any{
				"error_count":   1,
				"warning_count": len(d.Warnings),
				"errors":        d.Errors,
				"warnings":      d.Warnings,
			})
	}

	return NewErrorf(ErrCodeValidation, "compile failed with %d errors", len(d.Errors)).
		WithDetails(map[string]any{
			"error_count":   len(d.Errors),
			"warning_count": len(d.Warnings),
			"errors":        d.Errors,
			"warnings":      d.Warnings,
		})
}
