// Package loader reads graph definitions from JSON assets. An asset may hold
// a single graph or bundle several; a jq selector picks one out of a bundle.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rendis/blueprint/internal/expressions"
	"github.com/rendis/blueprint/pkg/schema"
)

// Loader decodes graph definitions, optionally filtering the document
// through a jq selector first. Safe for concurrent use.
type Loader struct {
	jq *expressions.GoJQEngine
}

// New creates a Loader.
func New() *Loader {
	return &Loader{jq: expressions.NewGoJQEngine()}
}

var defaultLoader = New()

// Load reads the graph at path with the default Loader.
func Load(ctx context.Context, path, selector string) (*schema.GraphDefinition, error) {
	return defaultLoader.Load(ctx, path, selector)
}

// Load reads a JSON file and decodes the graph it holds. When selector is set
// the document is filtered with it and must yield exactly one object.
func (l *Loader) Load(ctx context.Context, path, selector string) (*schema.GraphDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	def, err := l.Parse(ctx, data, selector)
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes data, applying selector when it is not empty.
func (l *Loader) Parse(ctx context.Context, data []byte, selector string) (*schema.GraphDefinition, error) {
	if selector == "" {
		return Decode(data)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid JSON: %s", err.Error()).WithCause(err)
	}

	results, err := l.jq.Query(ctx, selector, doc)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"selector %q yielded %d values, want exactly one graph", selector, len(results))
	}
	if _, ok := results[0].(map[string]any); !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"selector %q yielded %T, want a graph object", selector, results[0])
	}

	selected, err := json.Marshal(results[0])
	if err != nil {
		return nil, fmt.Errorf("re-encode selected graph: %w", err)
	}
	return Decode(selected)
}

// Decode strictly decodes a single graph definition: unknown fields and
// trailing data are rejected.
func Decode(data []byte) (*schema.GraphDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var def schema.GraphDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode graph: %s", err.Error()).WithCause(err)
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode graph: trailing data after graph object")
	}
	return &def, nil
}
