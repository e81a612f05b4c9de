package indexed

import (
	"errors"
	"fmt"
	"strings"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

// FieldKind classifies a physical index field.
type FieldKind string

const (
	KindSearch       FieldKind = "search"
	KindAutocomplete FieldKind = "autocomplete"
	KindFilter       FieldKind = "filter"
	KindRelated      FieldKind = "related"
)

// PhysicalField is one field of the engine schema.
type PhysicalField struct {
	Kind FieldKind `json:"kind"`
	// Name is {model_field_name}{suffix}, the name queries scope to.
	Name string `json:"name"`
	// FieldName is the declared field name the physical field came from.
	FieldName      string  `json:"field_name"`
	ModelFieldName string  `json:"model_field_name"`
	Suffix         string  `json:"suffix,omitempty"`
	Analyzer       string  `json:"analyzer,omitempty"`
	AnalyzerType   string  `json:"analyzer_type,omitempty"`
	Boost          float64 `json:"boost"`
	Fuzzy          bool    `json:"fuzzy,omitempty"`
	// Proximity marks a date filter column that decay functions score on.
	Proximity bool `json:"proximity,omitempty"`

	DefinedOn *Model          `json:"-"`
	Children  []PhysicalField `json:"children,omitempty"`
}

// ColumnName is the name of the field in the index. Fields declared on a
// subtype live in the shared index under "{app}_{model}__{name}".
func (p PhysicalField) ColumnName() string {
	return ColumnFor(p.DefinedOn, p.Name)
}

// ColumnFor returns the index column of a field named name declared on
// model. Only the root model's fields keep their bare name.
func ColumnFor(model *Model, name string) string {
	if model == nil || model.Parent == nil {
		return name
	}
	return strings.ToLower(model.AppLabel) + "_" + strings.ToLower(model.Name) + "__" + name
}

// SearchFields expands the model's mappings into physical fields.
func (im *IndexManager) SearchFields(model *Model, p settings.Provider) ([]PhysicalField, error) {
	return expandMappings(im.Mappings(model), p)
}

// SearchFields expands m's mappings into physical fields.
func (m *Model) SearchFields(p settings.Provider) ([]PhysicalField, error) {
	if m.Index == nil {
		return nil, nil
	}
	return m.Index.SearchFields(m, p)
}

func expandMappings(mappings []Mapping, p settings.Provider) ([]PhysicalField, error) {
	var out []PhysicalField
	for _, m := range mappings {
		fields, err := expandMapping(m, p)
		if err != nil {
			return nil, err
		}
		out = append(out, fields...)
	}
	return out, nil
}

// expandMapping emits, in order: a nested group for related fields, one
// search field per analyzer, one autocomplete field per analyzer, and an
// unsuffixed filter field. The facets are independent.
func expandMapping(m Mapping, p settings.Provider) ([]PhysicalField, error) {
	var out []PhysicalField

	if m.IsRelated() {
		children, err := expandMappings(m.Related, p)
		if err != nil {
			return nil, err
		}
		out = append(out, PhysicalField{
			Kind:           KindRelated,
			Name:           m.ModelFieldName,
			FieldName:      m.Name,
			ModelFieldName: m.ModelFieldName,
			Boost:          m.Boost,
			DefinedOn:      m.DefinedOn,
			Children:       children,
		})
	}

	if m.Search != nil {
		analyzers := m.Search
		if len(analyzers) == 0 {
			analyzers = []string{settings.AnalyzerTokenized}
		}
		for _, a := range analyzers {
			pf, err := analyzedField(KindSearch, m, a, p)
			if err != nil {
				return nil, err
			}
			out = append(out, pf)
		}
	}

	for _, a := range m.Autocomplete {
		pf, err := analyzedField(KindAutocomplete, m, a, p)
		if err != nil {
			return nil, err
		}
		out = append(out, pf)
	}

	if m.Filter {
		out = append(out, PhysicalField{
			Kind:           KindFilter,
			Name:           m.ModelFieldName,
			FieldName:      m.Name,
			ModelFieldName: m.ModelFieldName,
			Boost:          m.Boost,
			Proximity:      m.Proximity,
			DefinedOn:      m.DefinedOn,
		})
	}
	return out, nil
}

func analyzedField(kind FieldKind, m Mapping, analyzerType string, p settings.Provider) (PhysicalField, error) {
	base := "analyzers" + settings.Separator + analyzerType + settings.Separator
	analyzer, err := p.String(base + "es_analyzer")
	if err != nil {
		return PhysicalField{}, fmt.Errorf("field %s: %w", m.Name, err)
	}
	suffix, err := AnalyzerSuffix(p, analyzerType)
	if err != nil {
		return PhysicalField{}, fmt.Errorf("field %s: %w", m.Name, err)
	}

	return PhysicalField{
		Kind:           kind,
		Name:           m.ModelFieldName + suffix,
		FieldName:      m.Name,
		ModelFieldName: m.ModelFieldName,
		Suffix:         suffix,
		Analyzer:       analyzer,
		AnalyzerType:   analyzerType,
		Boost:          m.Boost,
		Fuzzy:          m.Fuzzy,
		DefinedOn:      m.DefinedOn,
	}, nil
}

// AnalyzerSuffix returns the field name suffix of an analyzer type; types
// without an index_fieldname_suffix setting have none.
func AnalyzerSuffix(p settings.Provider, analyzerType string) (string, error) {
	key := "analyzers" + settings.Separator + analyzerType + settings.Separator + "index_fieldname_suffix"
	suffix, err := p.String(key)
	if errors.Is(err, exterrors.ErrSettingNotFound) {
		return "", nil
	}
	return suffix, err
}
