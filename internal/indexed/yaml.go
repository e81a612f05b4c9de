package indexed

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
)

// modelsFile is the YAML shape of model declarations:
//
//	models:
//	  - app: people
//	    name: person
//	    parent: ""
//	    fields:
//	      - {name: full_name, tokenized: true, explicit: true, boost: 7}
//	      - name: teams
//	        related:
//	          - {name: name, tokenized: true}
type modelsFile struct {
	Models []modelDecl `yaml:"models"`
}

type modelDecl struct {
	App           string      `yaml:"app"`
	Name          string      `yaml:"name"`
	Parent        string      `yaml:"parent"`
	InheritFields *bool       `yaml:"inherit_fields"`
	Fields        []fieldDecl `yaml:"fields"`
}

type fieldDecl struct {
	Name           string      `yaml:"name"`
	ModelFieldName string      `yaml:"model_field_name"`
	Boost          *float64    `yaml:"boost"`
	Base           bool        `yaml:"base"`
	Tokenized      bool        `yaml:"tokenized"`
	Explicit       bool        `yaml:"explicit"`
	Keyword        bool        `yaml:"keyword"`
	Fuzzy          bool        `yaml:"fuzzy"`
	Proximity      bool        `yaml:"proximity"`
	Filter         bool        `yaml:"filter"`
	Autocomplete   bool        `yaml:"autocomplete"`
	Related        []fieldDecl `yaml:"related"`
}

// LoadYAMLFile reads model declarations from path into a new registry.
func LoadYAMLFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, exterrors.New(exterrors.ErrCodeFileNotFound, fmt.Sprintf("cannot open models file %s", path), err)
	}
	defer f.Close()

	r, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := r.LoadYAML(f); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadYAML registers the models declared in rd. A parent must be
// declared before its subtypes, or already be registered.
func (r *Registry) LoadYAML(rd io.Reader) error {
	var file modelsFile
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return exterrors.ConfigError("invalid models file", err)
	}

	for _, decl := range file.Models {
		var parent *Model
		if decl.Parent != "" {
			p, err := r.Get(decl.Parent)
			if err != nil {
				return fmt.Errorf("model %s.%s: %w", decl.App, decl.Name, err)
			}
			parent = p
		}

		fields := make([]Field, 0, len(decl.Fields))
		for _, fd := range decl.Fields {
			f, err := fd.build()
			if err != nil {
				return fmt.Errorf("model %s.%s: %w", decl.App, decl.Name, err)
			}
			fields = append(fields, f)
		}

		im := NewIndexManager(fields...)
		if decl.InheritFields != nil {
			im.InheritFields = *decl.InheritFields
		}
		if err := r.Register(&Model{AppLabel: decl.App, Name: decl.Name, Parent: parent, Index: im}); err != nil {
			return err
		}
	}
	return nil
}

func (fd fieldDecl) build() (Field, error) {
	if fd.Name == "" {
		return nil, exterrors.ConfigError("field without a name", nil)
	}

	switch {
	case len(fd.Related) > 0:
		rel := NewRelatedIndexedFields(fd.Name)
		rel.ModelFieldName = fd.ModelFieldName
		for _, child := range fd.Related {
			f, err := child.build()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fd.Name, err)
			}
			rel.Fields = append(rel.Fields, f)
		}
		return rel, nil
	case fd.Base:
		b := NewBaseIndexedField(fd.Name)
		b.ModelFieldName = fd.ModelFieldName
		return b, nil
	}

	var opts []FieldOption
	if fd.Boost != nil {
		opts = append(opts, WithBoost(*fd.Boost))
	}
	if fd.ModelFieldName != "" {
		opts = append(opts, WithModelFieldName(fd.ModelFieldName))
	}
	flags := []struct {
		set bool
		opt FieldOption
	}{
		{fd.Tokenized, Tokenized()},
		{fd.Explicit, Explicit()},
		{fd.Keyword, Keyword()},
		{fd.Fuzzy, Fuzzy()},
		{fd.Proximity, Proximity()},
		{fd.Filter, Filter()},
		{fd.Autocomplete, Autocomplete()},
	}
	for _, fl := range flags {
		if fl.set {
			opts = append(opts, fl.opt)
		}
	}
	return NewIndexedField(fd.Name, opts...), nil
}
