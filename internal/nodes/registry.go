package nodes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rendis/blueprint/internal/expressions"
	"github.com/rendis/blueprint/pkg/schema"
)

// Resolver looks up node kinds by name.
type Resolver interface {
	Resolve(kind string) (*Kind, error)
}

// KindInfo is a summary of a registered kind for listing.
type KindInfo struct {
	Name        string           `json:"name"`
	Category    string           `json:"category,omitempty"`
	Description string           `json:"description,omitempty"`
	Inputs      []PortDescriptor `json:"inputs"`
	Outputs     []PortDescriptor `json:"outputs"`
	Templated   bool             `json:"templated"`
}

// Registry is the thread-safe catalog of node kinds.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Kind
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]*Kind),
	}
}

// Register adds a kind. The kind is checked for well-formed ports and
// template references before it becomes visible.
func (r *Registry) Register(kind Kind) error {
	if err := checkKind(&kind); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[kind.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "node kind %q already registered", kind.Name)
	}
	r.kinds[kind.Name] = kind.clone()
	return nil
}

// MustRegister is Register for static catalogs; it panics on error.
func (r *Registry) MustRegister(kinds ...Kind) {
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
}

// Resolve returns a copy of the kind registered under name. Changing the
// copy never affects the registry or passes running concurrently.
func (r *Registry) Resolve(name string) (*Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.kinds[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownNodeKind, "node kind %q not registered", name)
	}
	return k.clone(), nil
}

// Has checks if a kind is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[name]
	return ok
}

// Count returns the number of registered kinds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}

// List returns info for all registered kinds, sorted by name.
func (r *Registry) List() []KindInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]KindInfo, 0, len(r.kinds))
	for _, k := range r.kinds {
		infos = append(infos, KindInfo{
			Name:        k.Name,
			Category:    k.Category,
			Description: k.Description,
			Inputs:      k.Inputs(),
			Outputs:     k.Outputs(),
			Templated:   k.Factory == nil,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// RegisterPlugin bulk-registers kinds under a prefixed namespace.
// Each kind name becomes "prefix.originalName" (e.g. "unity.Spawn").
func (r *Registry) RegisterPlugin(prefix string, kinds []Kind) (int, error) {
	if prefix == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "plugin prefix is empty")
	}

	registered := 0
	for _, k := range kinds {
		k.Name = fmt.Sprintf("%s.%s", prefix, k.Name)
		if err := r.Register(k); err != nil {
			return registered, err
		}
		registered++
	}
	return registered, nil
}

// Fingerprint hashes the declared shape of every registered kind. Two
// registries with the same fingerprint produce identical code for the
// same graph, provided factory-backed kinds bump Version when they change.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	type kindShape struct {
		Name     string           `json:"name"`
		Version  string           `json:"version,omitempty"`
		Ports    []PortDescriptor `json:"ports"`
		Template Template         `json:"template,omitempty"`
		Factory  bool             `json:"factory,omitempty"`
		Schema   json.RawMessage  `json:"schema,omitempty"`
		Rules    []string         `json:"rules,omitempty"`
		Prefix   string           `json:"prefix,omitempty"`
		Implicit bool             `json:"implicit,omitempty"`
	}
	shapes := make([]kindShape, 0, len(names))
	for _, name := range names {
		k := r.kinds[name]
		shapes = append(shapes, kindShape{
			Name:     k.Name,
			Version:  k.Version,
			Ports:    k.Ports,
			Template: k.Template,
			Factory:  k.Factory != nil,
			Schema:   k.ConfigSchema,
			Rules:    k.ConfigRules,
			Prefix:   k.IdentifierPrefix,
			Implicit: k.ImplicitDefaults,
		})
	}

	data, _ := json.Marshal(shapes)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// checkKind rejects kinds that could never be executed correctly.
func checkKind(k *Kind) error {
	if k.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "node kind name is empty")
	}
	if k.Factory == nil && len(k.Template) == 0 && len(k.Outputs()) > 0 {
		return kindError(k, "has outputs but neither a factory nor a template")
	}
	if len(k.ConfigSchema) > 0 && !json.Valid(k.ConfigSchema) {
		return kindError(k, "config schema is not valid JSON")
	}

	seen := make(map[string]bool, len(k.Ports))
	for i := range k.Ports {
		p := &k.Ports[i]
		switch {
		case p.Name == "":
			return kindError(k, "declares a port with an empty name")
		case seen[p.Name]:
			return kindError(k, fmt.Sprintf("declares port %q twice", p.Name))
		case p.Direction != DirectionInput && p.Direction != DirectionOutput:
			return kindError(k, fmt.Sprintf("port %q has unknown direction %q", p.Name, p.Direction))
		case p.IsOutput() && p.Optional:
			return kindError(k, fmt.Sprintf("output port %q cannot be optional", p.Name))
		}
		if p.Multiplicity == "" {
			p.Multiplicity = MultiplicitySingle
		}
		seen[p.Name] = true
	}

	if len(k.ConfigRules) > 0 {
		rules, err := configRules()
		if err != nil {
			return err
		}
		for _, rule := range k.ConfigRules {
			if err := rules.Check(rule); err != nil {
				return kindError(k, fmt.Sprintf("config rule %q: %v", rule, err))
			}
		}
	}

	for i, line := range k.Template {
		refs, err := expressions.References(line.Text)
		if err != nil {
			return kindError(k, fmt.Sprintf("template line %d: %v", i, err))
		}
		for _, ref := range refs {
			if err := checkReference(k, ref); err != nil {
				return kindError(k, fmt.Sprintf("template line %d: %v", i, err))
			}
		}
		if line.When != "" {
			if err := guards.Check(line.When); err != nil {
				return kindError(k, fmt.Sprintf("template line %d guard: %v", i, err))
			}
		}
	}
	return nil
}

func checkReference(k *Kind, ref expressions.Reference) error {
	var want Direction
	switch ref.Namespace {
	case expressions.NamespaceInputs:
		want = DirectionInput
	case expressions.NamespaceOutputs:
		want = DirectionOutput
	default:
		return nil
	}
	p, ok := k.Port(ref.Path)
	if !ok || p.Direction != want {
		return fmt.Errorf("references undeclared %s port %q", want, ref.Path)
	}
	return nil
}

func kindError(k *Kind, msg string) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "node kind %q %s", k.Name, msg)
}

var _ Resolver = (*Registry)(nil)
