package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/pluma/pkg/errorsx"
)

// Primitive property types accepted in a tool declaration.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// ToolDeclaration is the model-facing description of a callable tool.
type ToolDeclaration struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Parameters  Parameters `json:"parameters" yaml:"parameters"`
}

// Parameters is the JSON-schema-like object describing tool arguments.
type Parameters struct {
	Type       string              `json:"type" yaml:"type"`
	Properties map[string]Property `json:"properties" yaml:"properties"`
	Required   []string            `json:"required" yaml:"required"`
}

type Property struct {
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []string `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// Object builds a Parameters value with type "object".
func Object(properties map[string]Property, required ...string) Parameters {
	if properties == nil {
		properties = map[string]Property{}
	}
	if required == nil {
		required = []string{}
	}
	return Parameters{Type: TypeObject, Properties: properties, Required: required}
}

func String(description string, enum ...string) Property {
	return Property{Type: TypeString, Description: description, Enum: enum}
}

func Integer(description string) Property {
	return Property{Type: TypeInteger, Description: description}
}

func Number(description string) Property {
	return Property{Type: TypeNumber, Description: description}
}

func Boolean(description string) Property {
	return Property{Type: TypeBoolean, Description: description}
}

// Validate checks the declaration invariants: a non-empty name, an object
// parameter type, known property types, and required names that exist.
func (d ToolDeclaration) Validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return &errorsx.ValidationError{Field: "name", Problem: "is required"}
	}
	if d.Parameters.Type != "" && d.Parameters.Type != TypeObject {
		return &errorsx.ValidationError{Tool: name, Field: "parameters.type", Problem: fmt.Sprintf("must be object, got %q", d.Parameters.Type)}
	}
	keys := make([]string, 0, len(d.Parameters.Properties))
	for k := range d.Parameters.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !knownType(d.Parameters.Properties[k].Type) {
			return &errorsx.ValidationError{Tool: name, Field: "parameters.properties." + k, Problem: fmt.Sprintf("unsupported type %q", d.Parameters.Properties[k].Type)}
		}
	}
	for _, req := range d.Parameters.Required {
		if _, ok := d.Parameters.Properties[req]; !ok {
			return &errorsx.ValidationError{Tool: name, Field: "parameters.required", Problem: fmt.Sprintf("%q is not a declared property", req)}
		}
	}
	return nil
}

// Normalized returns a copy with empty collections filled in so the
// declaration always serializes with every fixed field present.
func (d ToolDeclaration) Normalized() ToolDeclaration {
	out := d
	if out.Parameters.Type == "" {
		out.Parameters.Type = TypeObject
	}
	props := make(map[string]Property, len(d.Parameters.Properties))
	for k, v := range d.Parameters.Properties {
		v.Enum = append([]string(nil), v.Enum...)
		props[k] = v
	}
	out.Parameters.Properties = props
	out.Parameters.Required = append([]string{}, d.Parameters.Required...)
	return out
}

func knownType(t string) bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}
