// Package indexed declares which model fields are searchable and how.
//
// Each indexed model carries an IndexManager listing Field descriptors.
// Descriptors summarise themselves as a Mapping, and the manager expands
// mappings into the physical fields a search engine index must hold: one
// per analyzer variant, plus autocomplete, filter and nested groups.
package indexed

import (
	"github.com/Aman-CERP/extsearch/internal/settings"
)

// Field is a declared index field.
type Field interface {
	FieldName() string
	Mapping() Mapping
}

// Mapping is the plain summary of one declared field. Search and
// Autocomplete list analyzer types; Related holds child mappings of a
// RelatedIndexedFields group.
type Mapping struct {
	Name           string    `json:"name" yaml:"name"`
	ModelFieldName string    `json:"model_field_name" yaml:"model_field_name"`
	Boost          float64   `json:"boost" yaml:"boost"`
	Search         []string  `json:"search,omitempty" yaml:"search,omitempty"`
	Autocomplete   []string  `json:"autocomplete,omitempty" yaml:"autocomplete,omitempty"`
	Filter         bool      `json:"filter,omitempty" yaml:"filter,omitempty"`
	Fuzzy          bool      `json:"fuzzy,omitempty" yaml:"fuzzy,omitempty"`
	Proximity      bool      `json:"proximity,omitempty" yaml:"proximity,omitempty"`
	Related        []Mapping `json:"related_fields,omitempty" yaml:"related_fields,omitempty"`

	// DefinedOn is the model whose IndexManager declared the field.
	DefinedOn *Model `json:"-" yaml:"-"`
}

// IsRelated reports whether m is a nested group.
func (m Mapping) IsRelated() bool { return len(m.Related) > 0 }

// IndexedField is a searchable field. Flags imply one another:
// tokenized, explicit or keyword make the field searchable, fuzzy implies
// tokenized, and proximity implies filter.
type IndexedField struct {
	Name           string
	ModelFieldName string
	Boost          float64

	Tokenized    bool
	Explicit     bool
	Keyword      bool
	Fuzzy        bool
	Proximity    bool
	Filter       bool
	Autocomplete bool
}

// FieldOption configures an IndexedField.
type FieldOption func(*IndexedField)

// WithBoost sets the field boost (default 1.0).
func WithBoost(b float64) FieldOption { return func(f *IndexedField) { f.Boost = b } }

// WithModelFieldName sets the model attribute the field is read from when
// it differs from the indexed name.
func WithModelFieldName(n string) FieldOption {
	return func(f *IndexedField) { f.ModelFieldName = n }
}

func Tokenized() FieldOption    { return func(f *IndexedField) { f.Tokenized = true } }
func Explicit() FieldOption     { return func(f *IndexedField) { f.Explicit = true } }
func Keyword() FieldOption      { return func(f *IndexedField) { f.Keyword = true } }
func Fuzzy() FieldOption        { return func(f *IndexedField) { f.Fuzzy = true } }
func Proximity() FieldOption    { return func(f *IndexedField) { f.Proximity = true } }
func Filter() FieldOption       { return func(f *IndexedField) { f.Filter = true } }
func Autocomplete() FieldOption { return func(f *IndexedField) { f.Autocomplete = true } }

// NewIndexedField declares field name.
func NewIndexedField(name string, opts ...FieldOption) *IndexedField {
	f := &IndexedField{Name: name, Boost: 1.0}
	for _, opt := range opts {
		opt(f)
	}
	if f.Fuzzy {
		f.Tokenized = true
	}
	if f.Proximity {
		f.Filter = true
	}
	return f
}

// FieldName implements Field.
func (f *IndexedField) FieldName() string { return f.Name }

// Search reports whether the field takes part in full-text search.
func (f *IndexedField) Search() bool {
	return f.Tokenized || f.Explicit || f.Keyword
}

func (f *IndexedField) modelFieldName() string {
	if f.ModelFieldName != "" {
		return f.ModelFieldName
	}
	return f.Name
}

// Mapping implements Field.
func (f *IndexedField) Mapping() Mapping {
	m := Mapping{
		Name:           f.Name,
		ModelFieldName: f.modelFieldName(),
		Boost:          f.Boost,
		Filter:         f.Filter,
		Fuzzy:          f.Fuzzy,
		Proximity:      f.Proximity,
	}
	if f.Search() {
		if f.Tokenized {
			m.Search = append(m.Search, settings.AnalyzerTokenized)
		}
		if f.Explicit {
			m.Search = append(m.Search, settings.AnalyzerExplicit)
		}
		if f.Keyword {
			m.Search = append(m.Search, settings.AnalyzerKeyword)
		}
	}
	if f.Autocomplete {
		m.Autocomplete = []string{settings.AnalyzerAutocomplete}
	}
	return m
}

// BaseIndexedField is an unanalysed identity field, stored for exact
// filtering only (ids, slugs, flags).
type BaseIndexedField struct {
	Name           string
	ModelFieldName string
}

// NewBaseIndexedField declares an identity field.
func NewBaseIndexedField(name string) *BaseIndexedField {
	return &BaseIndexedField{Name: name}
}

// FieldName implements Field.
func (f *BaseIndexedField) FieldName() string { return f.Name }

// Mapping implements Field.
func (f *BaseIndexedField) Mapping() Mapping {
	mfn := f.ModelFieldName
	if mfn == "" {
		mfn = f.Name
	}
	return Mapping{Name: f.Name, ModelFieldName: mfn, Boost: 1.0, Filter: true}
}

// RelatedIndexedFields groups fields of a related object under the
// relation name. Groups may nest.
type RelatedIndexedFields struct {
	Name           string
	ModelFieldName string
	Fields         []Field
}

// NewRelatedIndexedFields declares a nested group.
func NewRelatedIndexedFields(name string, fields ...Field) *RelatedIndexedFields {
	return &RelatedIndexedFields{Name: name, Fields: fields}
}

// FieldName implements Field.
func (r *RelatedIndexedFields) FieldName() string { return r.Name }

// Mapping implements Field.
func (r *RelatedIndexedFields) Mapping() Mapping {
	mfn := r.ModelFieldName
	if mfn == "" {
		mfn = r.Name
	}
	m := Mapping{Name: r.Name, ModelFieldName: mfn, Boost: 1.0}
	for _, f := range r.Fields {
		m.Related = append(m.Related, f.Mapping())
	}
	return m
}
