package plugins

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/blueprint/internal/nodes"
)

const manifestSchemaURL = "https://blueprint.dev/schemas/kind-pack.json"

// manifestSchemaJSON describes a kind pack file.
const manifestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["prefix", "kinds"],
  "additionalProperties": false,
  "properties": {
    "prefix": {"type": "string", "pattern": "^[A-Za-z][A-Za-z0-9_]*$"},
    "description": {"type": "string"},
    "kinds": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "template"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "category": {"type": "string"},
          "version": {"type": "string"},
          "ports": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "direction"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "direction": {"enum": ["input", "output"]},
                "multiplicity": {"enum": ["single", "multi"]},
                "optional": {"type": "boolean"},
                "default_literal": {"type": "string"},
                "type": {"type": "string"}
              }
            }
          },
          "template": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["text"],
              "properties": {
                "text": {"type": "string"},
                "when": {"type": "string"}
              }
            }
          },
          "config_schema": {"type": "object"},
          "config_rules": {"type": "array", "items": {"type": "string"}},
          "identifier_prefix": {"type": "string"},
          "implicit_defaults": {"type": "boolean"}
        }
      }
    }
  }
}`

// Manifest is a kind pack: template-driven node kinds registered under Prefix.
type Manifest struct {
	Prefix      string         `json:"prefix"`
	Description string         `json:"description,omitempty"`
	Kinds       []KindManifest `json:"kinds"`
}

// KindManifest is the JSON form of a template-driven nodes.Kind.
type KindManifest struct {
	Name             string                 `json:"name"`
	Description      string                 `json:"description,omitempty"`
	Category         string                 `json:"category,omitempty"`
	Version          string                 `json:"version,omitempty"`
	Ports            []nodes.PortDescriptor `json:"ports,omitempty"`
	Template         nodes.Template         `json:"template"`
	ConfigSchema     json.RawMessage        `json:"config_schema,omitempty"`
	ConfigRules      []string               `json:"config_rules,omitempty"`
	IdentifierPrefix string                 `json:"identifier_prefix,omitempty"`
	ImplicitDefaults bool                   `json:"implicit_defaults,omitempty"`
}

// Kind converts the manifest entry into a registry kind.
func (m KindManifest) Kind() nodes.Kind {
	ports := make([]nodes.PortDescriptor, len(m.Ports))
	for i, p := range m.Ports {
		if p.Multiplicity == "" {
			p.Multiplicity = nodes.MultiplicitySingle
		}
		ports[i] = p
	}
	return nodes.Kind{
		Name:             m.Name,
		Description:      m.Description,
		Category:         m.Category,
		Version:          m.Version,
		Ports:            ports,
		Template:         m.Template,
		ConfigSchema:     m.ConfigSchema,
		ConfigRules:      m.ConfigRules,
		IdentifierPrefix: m.IdentifierPrefix,
		ImplicitDefaults: m.ImplicitDefaults,
	}
}

// NodeKinds converts every entry of the pack.
func (m *Manifest) NodeKinds() []nodes.Kind {
	kinds := make([]nodes.Kind, len(m.Kinds))
	for i, k := range m.Kinds {
		kinds[i] = k.Kind()
	}
	return kinds
}

func compileManifestSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal manifest schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(manifestSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add manifest schema resource: %w", err)
	}
	return c.Compile(manifestSchemaURL)
}

// parseManifest checks data against the pack schema, then decodes it.
func parseManifest(s *jsonschema.Schema, data []byte) (*Manifest, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
