package settings

// Query types understood by the query builder.
const (
	QueryPhrase = "phrase"
	QueryAnd    = "query_and"
	QueryOr     = "query_or"
	QueryFuzzy  = "fuzzy"
)

// Analyzer types a field can be indexed with.
const (
	AnalyzerTokenized    = "tokenized"
	AnalyzerExplicit     = "explicit"
	AnalyzerKeyword      = "keyword"
	AnalyzerAutocomplete = "autocomplete"
)

// EnvNamespace prefixes environment overrides: SEARCH_EXTENDED__<key>.
const EnvNamespace = "SEARCH_EXTENDED"

// Defaults returns a fresh copy of the built-in settings tree.
func Defaults() map[string]any {
	return map[string]any{
		"boost_parts": map[string]any{
			"query_types": map[string]any{
				QueryPhrase: 10.0,
				QueryAnd:    2.5,
				QueryOr:     1.0,
				QueryFuzzy:  0.1,
			},
			"analyzers": map[string]any{
				AnalyzerTokenized:    1.0,
				AnalyzerExplicit:     3.5,
				AnalyzerKeyword:      1.0,
				AnalyzerAutocomplete: 1.0,
			},
			"extras": map[string]any{},
			"fields": map[string]any{},
		},
		"analyzers": map[string]any{
			AnalyzerTokenized: map[string]any{
				"es_analyzer": "snowball",
				"query_types": []any{QueryPhrase, QueryAnd, QueryOr, QueryFuzzy},
			},
			AnalyzerExplicit: map[string]any{
				"es_analyzer":            "simple",
				"index_fieldname_suffix": "_explicit",
				"query_types":            []any{QueryPhrase, QueryAnd, QueryOr},
			},
			AnalyzerKeyword: map[string]any{
				"es_analyzer":            "no_spaces",
				"index_fieldname_suffix": "_keyword",
				"query_types":            []any{QueryOr},
			},
			AnalyzerAutocomplete: map[string]any{
				"es_analyzer":            "edgengram_analyzer",
				"index_fieldname_suffix": "_edgengrams",
				"query_types":            []any{},
			},
		},
		"scoring_functions": map[string]any{
			"gauss": map[string]any{
				"scale":  "365d",
				"offset": "14d",
				"decay":  0.5,
			},
		},
	}
}

// FieldBoostKey is the flattened key of a per-field boost.
func FieldBoostKey(label string) string {
	return "boost_parts" + Separator + "fields" + Separator + label
}
