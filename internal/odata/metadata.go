package odata

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Metadata is the parsed service document returned by $metadata (CSDL XML).
type Metadata struct {
	Version string   `xml:"Version,attr"`
	Schemas []Schema `xml:"DataServices>Schema"`
}

// Schema is one CSDL namespace.
type Schema struct {
	Namespace        string            `xml:"Namespace,attr"`
	EntityTypes      []EntityType      `xml:"EntityType"`
	ComplexTypes     []ComplexType     `xml:"ComplexType"`
	EnumTypes        []EnumType        `xml:"EnumType"`
	Actions          []Action          `xml:"Action"`
	EntityContainers []EntityContainer `xml:"EntityContainer"`
}

// EntityType is a keyed structured type that entity sets are declared over.
type EntityType struct {
	Name                 string               `xml:"Name,attr"`
	Key                  []PropertyRef        `xml:"Key>PropertyRef"`
	Properties           []Property           `xml:"Property"`
	NavigationProperties []NavigationProperty `xml:"NavigationProperty"`
}

// ComplexType is a structured type without a key.
type ComplexType struct {
	Name       string     `xml:"Name,attr"`
	Properties []Property `xml:"Property"`
}

// EnumType lists named values.
type EnumType struct {
	Name    string   `xml:"Name,attr"`
	Members []Member `xml:"Member"`
}

// Member is one EnumType value.
type Member struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
}

// PropertyRef names a key property.
type PropertyRef struct {
	Name string `xml:"Name,attr"`
}

// Property is a structural property. Nullable is kept as written, empty means true.
type Property struct {
	Name     string `xml:"Name,attr"`
	Type     string `xml:"Type,attr"`
	Nullable string `xml:"Nullable,attr"`
}

// NavigationProperty links to a related entity or collection of entities.
type NavigationProperty struct {
	Name           string `xml:"Name,attr"`
	Type           string `xml:"Type,attr"`
	ContainsTarget bool   `xml:"ContainsTarget,attr"`
}

// Action is a CSDL action. Bound actions take the binding entity as first parameter.
type Action struct {
	Name       string      `xml:"Name,attr"`
	IsBound    bool        `xml:"IsBound,attr"`
	Parameters []Parameter `xml:"Parameter"`
}

// Parameter is an Action parameter.
type Parameter struct {
	Name string `xml:"Name,attr"`
	Type string `xml:"Type,attr"`
}

// EntityContainer groups the entity sets the service exposes.
type EntityContainer struct {
	Name       string      `xml:"Name,attr"`
	EntitySets []EntitySet `xml:"EntitySet"`
}

// EntitySet is an addressable collection of EntityType instances.
type EntitySet struct {
	Name       string `xml:"Name,attr"`
	EntityType string `xml:"EntityType,attr"`
}

// ParseMetadata decodes a CSDL XML document.
func ParseMetadata(r io.Reader) (*Metadata, error) {
	var m Metadata
	if err := xml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if len(m.Schemas) == 0 {
		return nil, fmt.Errorf("decoding metadata: no schema found")
	}
	return &m, nil
}

// KeyNames returns the names of the key properties.
func (t EntityType) KeyNames() []string {
	names := make([]string, len(t.Key))
	for i, ref := range t.Key {
		names[i] = ref.Name
	}
	return names
}

// Property looks up a structural property by name.
func (t EntityType) Property(name string) (Property, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// BindingParameterType returns the type an action is bound to, or "" for unbound actions.
func (a Action) BindingParameterType() string {
	if !a.IsBound || len(a.Parameters) == 0 {
		return ""
	}
	return a.Parameters[0].Type
}

// EntityTypeNames returns the qualified names of all entity types, in document order.
func (m *Metadata) EntityTypeNames() []string {
	var names []string
	for _, s := range m.Schemas {
		for _, t := range s.EntityTypes {
			names = append(names, qualify(s.Namespace, t.Name))
		}
	}
	return names
}

// ComplexTypeNames returns the qualified names of all complex types, in document order.
func (m *Metadata) ComplexTypeNames() []string {
	var names []string
	for _, s := range m.Schemas {
		for _, t := range s.ComplexTypes {
			names = append(names, qualify(s.Namespace, t.Name))
		}
	}
	return names
}

// Actions returns every action across all schemas.
func (m *Metadata) Actions() []Action {
	var actions []Action
	for _, s := range m.Schemas {
		actions = append(actions, s.Actions...)
	}
	return actions
}

// EntityType looks up an entity type by qualified name.
func (m *Metadata) EntityType(qualifiedName string) (EntityType, bool) {
	for _, s := range m.Schemas {
		for _, t := range s.EntityTypes {
			if qualify(s.Namespace, t.Name) == qualifiedName {
				return t, true
			}
		}
	}
	return EntityType{}, false
}

// EntitySet looks up an entity set by name in any container.
func (m *Metadata) EntitySet(name string) (EntitySet, bool) {
	for _, s := range m.Schemas {
		for _, c := range s.EntityContainers {
			for _, set := range c.EntitySets {
				if set.Name == name {
					return set, true
				}
			}
		}
	}
	return EntitySet{}, false
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}
