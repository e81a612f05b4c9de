package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

func TestBuildMapping_Properties(t *testing.T) {
	body := BuildMapping(personFields(t))
	props := dig(t, body, "mappings", "properties").(map[string]any)

	assert.Equal(t, map[string]any{"type": "keyword"}, props[ContentTypeField])
	assert.Equal(t, map[string]any{"type": "text", "analyzer": "snowball", "boost": 7.0}, props["full_name"])
	assert.Equal(t, map[string]any{"type": "text", "analyzer": "simple", "boost": 7.0}, props["full_name_explicit"])
	assert.Equal(t, map[string]any{
		"type":            "text",
		"analyzer":        AnalyzerEdgeNGram,
		"search_analyzer": "standard",
	}, props["full_name_edgengrams"])
	assert.Equal(t, "no_spaces", dig(t, props, "email_keyword", "analyzer"))
	assert.Equal(t, map[string]any{"type": "date"}, props["updated"])
	assert.Equal(t, map[string]any{"type": "keyword"}, props["slug"])

	teams := props["teams"].(map[string]any)
	assert.Equal(t, "nested", teams["type"])
	assert.Contains(t, teams["properties"], "name")
	assert.Contains(t, teams["properties"], "id")
}

func TestBuildMapping_Analysis(t *testing.T) {
	body := BuildMapping(nil)
	analyzers := dig(t, body, "settings", "analysis", "analyzer").(map[string]any)
	assert.Contains(t, analyzers, AnalyzerNoSpaces)
	assert.Contains(t, analyzers, AnalyzerEdgeNGram)
	assert.Equal(t, "edge_ngram", dig(t, body, "settings", "analysis", "filter", "edgengram", "type"))
}

func TestBuildMapping_FilterOnTextColumnGetsRawSubfield(t *testing.T) {
	m := &indexed.Model{AppLabel: "news", Name: "Article", Index: indexed.NewIndexManager(
		indexed.NewIndexedField("title", indexed.Tokenized(), indexed.Filter()),
	)}
	fields, err := m.SearchFields(settings.New())
	require.NoError(t, err)

	props := dig(t, BuildMapping(fields), "mappings", "properties").(map[string]any)
	assert.Equal(t, "text", dig(t, props, "title", "type"))
	assert.Equal(t, "keyword", dig(t, props, "title", "fields", "raw", "type"))
}

func TestCollectFields_SubclassColumns(t *testing.T) {
	base := &indexed.Model{AppLabel: "content", Name: "Page", Index: indexed.NewIndexManager(
		indexed.NewIndexedField("title", indexed.Tokenized()),
	)}
	news := &indexed.Model{AppLabel: "news", Name: "NewsPage", Parent: base, Index: indexed.NewIndexManager(
		indexed.NewIndexedField("summary", indexed.Tokenized()),
	)}

	fields, err := CollectFields([]*indexed.Model{base, news}, settings.New())
	require.NoError(t, err)

	var cols []string
	for _, f := range fields {
		cols = append(cols, f.ColumnName())
	}
	assert.Equal(t, []string{"title", "news_newspage__summary"}, cols)
}

func TestBuildMapping_ProximityColumnsAreDates(t *testing.T) {
	fields := personFields(t)

	props := dig(t, BuildMapping(fields), "mappings", "properties").(map[string]any)
	assert.Equal(t, "date", dig(t, props, "updated", "type"))
	assert.Equal(t, "keyword", dig(t, props, "slug", "type"))

	im, err := BuildBleveMapping(fields)
	require.NoError(t, err)
	updated := im.DefaultMapping.Properties["updated"]
	require.NotNil(t, updated)
	require.Len(t, updated.Fields, 1)
	assert.Equal(t, "datetime", updated.Fields[0].Type)
	assert.Equal(t, "text", im.DefaultMapping.Properties["slug"].Fields[0].Type)
}
