package indexed

import (
	"strings"
)

// Model is an indexed entity type. Subtypes point at their Parent and are
// stored in the same index as the root type.
type Model struct {
	AppLabel string
	Name     string
	Parent   *Model
	Index    *IndexManager
}

// Label returns "app.model".
func (m *Model) Label() string {
	return strings.ToLower(m.AppLabel) + "." + strings.ToLower(m.Name)
}

// Root returns the top of m's inheritance chain.
func (m *Model) Root() *Model {
	cur := m
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// ContentTypes returns the labels from the root down to m. Documents of m
// carry all of them in their content_type field.
func (m *Model) ContentTypes() []string {
	var chain []string
	for cur := m; cur != nil; cur = cur.Parent {
		chain = append(chain, cur.Label())
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// IsSubclassOf reports whether other is a strict ancestor of m.
func (m *Model) IsSubclassOf(other *Model) bool {
	for cur := m.Parent; cur != nil; cur = cur.Parent {
		if cur == other {
			return true
		}
	}
	return false
}

func (m *Model) String() string { return m.Label() }

// IndexManager holds the ordered field declarations of one model.
type IndexManager struct {
	Fields []Field
	// InheritFields prepends the parent's mappings, minus any the model
	// redeclares by name.
	InheritFields bool
}

// NewIndexManager declares fields that extend the parent's.
func NewIndexManager(fields ...Field) *IndexManager {
	return &IndexManager{Fields: fields, InheritFields: true}
}

// Mappings returns the field mappings of model in declaration order.
func (im *IndexManager) Mappings(model *Model) []Mapping {
	var out []Mapping
	own := make(map[string]bool, len(im.Fields))
	for _, f := range im.Fields {
		own[f.FieldName()] = true
	}

	if im.InheritFields && model != nil && model.Parent != nil && model.Parent.Index != nil {
		for _, pm := range model.Parent.Index.Mappings(model.Parent) {
			if !own[pm.Name] {
				out = append(out, pm)
			}
		}
	}
	for _, f := range im.Fields {
		m := f.Mapping()
		m.DefinedOn = model
		out = append(out, m)
	}
	return out
}

// Mappings returns the model's field mappings, or nil when it has no
// index manager.
func (m *Model) Mappings() []Mapping {
	if m.Index == nil {
		return nil
	}
	return m.Index.Mappings(m)
}
