package backend

import (
	"strings"

	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

// Analyzer names that need a definition in the index settings.
const (
	AnalyzerNoSpaces  = "no_spaces"
	AnalyzerEdgeNGram = "edgengram_analyzer"
)

// CollectFields returns the physical fields of models, deduplicated by
// column name, in model then declaration order. The shared index of a
// model hierarchy needs the union.
func CollectFields(models []*indexed.Model, p settings.Provider) ([]indexed.PhysicalField, error) {
	var out []indexed.PhysicalField
	seen := make(map[string]bool)
	for _, m := range models {
		fields, err := m.SearchFields(p)
		if err != nil {
			return nil, err
		}
		for _, pf := range fields {
			key := string(pf.Kind) + ":" + pf.ColumnName()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, pf)
		}
	}
	return out, nil
}

// BuildMapping returns an Elasticsearch 7 index creation body for fields.
func BuildMapping(fields []indexed.PhysicalField) map[string]any {
	props := map[string]any{
		ContentTypeField: map[string]any{"type": "keyword"},
		AllTextField:     map[string]any{"type": "text", "analyzer": "snowball"},
	}
	addProperties(props, fields, rawColumns(fields, ""))

	return map[string]any{
		"settings": map[string]any{
			"analysis": map[string]any{
				"analyzer": map[string]any{
					AnalyzerNoSpaces: map[string]any{
						"type":      "custom",
						"tokenizer": "keyword",
						"filter":    []any{"lowercase"},
					},
					AnalyzerEdgeNGram: map[string]any{
						"type":      "custom",
						"tokenizer": "lowercase",
						"filter":    []any{"asciifolding", "edgengram"},
					},
				},
				"filter": map[string]any{
					"edgengram": map[string]any{
						"type":     "edge_ngram",
						"min_gram": 1,
						"max_gram": 15,
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": props,
		},
	}
}

func addProperties(props map[string]any, fields []indexed.PhysicalField, raw map[string]bool) {
	for _, pf := range fields {
		col := pf.ColumnName()
		switch pf.Kind {
		case indexed.KindRelated:
			nested := map[string]any{}
			addProperties(nested, pf.Children, rawColumns(pf.Children, ""))
			props[col] = map[string]any{"type": "nested", "properties": nested}
		case indexed.KindFilter:
			if pf.Proximity {
				props[col] = map[string]any{"type": "date"}
				continue
			}
			if _, exists := props[col]; !exists {
				props[col] = map[string]any{"type": "keyword"}
			}
		case indexed.KindAutocomplete:
			props[col] = map[string]any{
				"type":            "text",
				"analyzer":        pf.Analyzer,
				"search_analyzer": "standard",
			}
		default:
			prop := map[string]any{"type": "text", "analyzer": pf.Analyzer}
			if pf.Boost != 1.0 {
				prop["boost"] = pf.Boost
			}
			if raw[col] {
				prop["fields"] = map[string]any{
					strings.TrimPrefix(RawSuffix, "."): map[string]any{"type": "keyword", "ignore_above": 256},
				}
			}
			props[col] = prop
		}
	}
}
