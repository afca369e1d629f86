package expressions

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/rendis/blueprint/pkg/schema"
)

// Template namespaces understood by the Interpolator.
const (
	NamespaceInputs  = "inputs"
	NamespaceOutputs = "outputs"
	NamespaceConfig  = "config"
	NamespaceNode    = "node"
)

var namespaces = []string{NamespaceInputs, NamespaceOutputs, NamespaceConfig, NamespaceNode}

// TemplateScope holds all data a code template line can reference.
type TemplateScope struct {
	Inputs  map[string]string // input port -> bound identifier or literal
	Outputs map[string]string // output port -> allocated identifier
	Config  map[string]any    // node configuration
	Node    map[string]any    // id, kind
}

// GuardData exposes the scope to guard expressions.
func (s *TemplateScope) GuardData() map[string]any {
	return map[string]any{
		NamespaceInputs:  toAnyMap(s.Inputs),
		NamespaceOutputs: toAnyMap(s.Outputs),
		NamespaceConfig:  s.Config,
		NamespaceNode:    s.Node,
	}
}

// Reference is one ${{ namespace.path }} token found in a template line.
type Reference struct {
	Namespace string
	Path      string
}

// Interpolator substitutes ${{ namespace.path }} tokens in template lines.
type Interpolator struct{}

// NewInterpolator returns an Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// Render replaces every ${{ namespace.path }} token in line with its value from scope.
func (interp *Interpolator) Render(line string, scope *TemplateScope) (string, error) {
	var result strings.Builder
	result.Grow(len(line))

	err := scanTokens(line, func(literal string, ref *Reference) error {
		result.WriteString(literal)
		if ref == nil {
			return nil
		}
		val, err := interp.resolve(*ref, scope)
		if err != nil {
			return err
		}
		result.WriteString(formatValue(val))
		return nil
	})
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// References parses a template line and returns its tokens without resolving them.
func References(line string) ([]Reference, error) {
	var refs []Reference
	err := scanTokens(line, func(_ string, ref *Reference) error {
		if ref != nil {
			refs = append(refs, *ref)
		}
		return nil
	})
	return refs, err
}

// HasInterpolation reports whether line contains a ${{ opener.
func HasInterpolation(line string) bool {
	return strings.Contains(line, openDelim)
}

const (
	openDelim  = "${{"
	closeDelim = "}}"
)

// scanTokens walks line, calling visit with each literal run and the reference
// that follows it (nil for the trailing literal).
func scanTokens(line string, visit func(literal string, ref *Reference) error) error {
	rest := line
	for rest != "" {
		before, after, found := strings.Cut(rest, openDelim)
		if !found {
			return visit(rest, nil)
		}
		body, tail, closed := strings.Cut(after, closeDelim)
		if !closed {
			return schema.NewError(schema.ErrCodeTemplate, "unclosed ${{ expression")
		}
		ref, err := parseReference(strings.TrimSpace(body))
		if err != nil {
			return err
		}
		if err := visit(before, ref); err != nil {
			return err
		}
		rest = tail
	}
	return nil
}

func parseReference(body string) (*Reference, error) {
	switch {
	case body == "":
		return nil, schema.NewError(schema.ErrCodeTemplate, "empty reference ${{ }}")
	case strings.Contains(body, openDelim):
		return nil, schema.NewErrorf(schema.ErrCodeTemplate, "nested ${{ in reference %q", body)
	}
	ns, path, ok := strings.Cut(body, ".")
	if !ok || path == "" {
		return nil, schema.NewErrorf(schema.ErrCodeTemplate,
			"reference %q must have the form <namespace>.<name>", body).
			WithDetails(map[string]any{"expression": body})
	}
	if !slices.Contains(namespaces, ns) {
		return nil, schema.NewErrorf(schema.ErrCodeTemplate,
			"reference %q uses unknown namespace %q (want one of %s)", body, ns, strings.Join(namespaces, ", ")).
			WithDetails(map[string]any{"expression": body, "available_namespaces": namespaces})
	}
	return &Reference{Namespace: ns, Path: path}, nil
}

// resolve looks up a single reference in the scope.
func (interp *Interpolator) resolve(ref Reference, scope *TemplateScope) (any, error) {
	expr := ref.Namespace + "." + ref.Path
	switch ref.Namespace {
	case NamespaceInputs:
		return lookupPort(scope.Inputs, ref.Path, expr)
	case NamespaceOutputs:
		return lookupPort(scope.Outputs, ref.Path, expr)
	case NamespaceConfig:
		return lookupField(scope.Config, ref.Path, expr)
	default:
		return lookupField(scope.Node, ref.Path, expr)
	}
}

func lookupPort(ports map[string]string, name, expr string) (any, error) {
	if v, ok := ports[name]; ok {
		return v, nil
	}
	known := slices.Sorted(maps.Keys(ports))
	return nil, schema.NewErrorf(schema.ErrCodeTemplate,
		"%s: port %q is not bound (have %v)", expr, name, known).
		WithDetails(map[string]any{"expression": expr, "available_ports": known})
}

// lookupField resolves a dotted path inside data. A key containing dots
// matches whole before the path is split.
func lookupField(data map[string]any, path, expr string) (any, error) {
	if v, ok := data[path]; ok {
		return v, nil
	}
	var cur any = data
	for seg := range strings.SplitSeq(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok || obj == nil {
			return nil, schema.NewErrorf(schema.ErrCodeTemplate,
				"%s: cannot descend into %T at %q", expr, cur, seg).
				WithDetails(map[string]any{"expression": expr})
		}
		next, ok := obj[seg]
		if !ok {
			known := slices.Sorted(maps.Keys(obj))
			return nil, schema.NewErrorf(schema.ErrCodeTemplate,
				"%s: no field %q (have %v)", expr, seg, known).
				WithDetails(map[string]any{"expression": expr, "available_fields": known})
		}
		cur = next
	}
	return cur, nil
}

// formatValue renders a resolved value as source text. Strings go in
// verbatim; templates quote them where the target syntax needs it.
func formatValue(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	}
	if b, err := json.Marshal(val); err == nil {
		return string(b)
	}
	return fmt.Sprint(val)
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
