package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/query"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

func personModel() *indexed.Model {
	return &indexed.Model{AppLabel: "people", Name: "Person", Index: indexed.NewIndexManager(
		indexed.NewIndexedField("full_name", indexed.Tokenized(), indexed.Explicit(), indexed.Autocomplete(), indexed.WithBoost(7.0)),
		indexed.NewIndexedField("email", indexed.Keyword(), indexed.WithBoost(4.0)),
		indexed.NewIndexedField("updated", indexed.Proximity()),
		indexed.NewBaseIndexedField("slug"),
		indexed.NewRelatedIndexedFields("teams",
			indexed.NewIndexedField("name", indexed.Tokenized()),
			indexed.NewBaseIndexedField("id"),
		),
	)}
}

func personFields(t *testing.T) []indexed.PhysicalField {
	t.Helper()
	fields, err := personModel().SearchFields(settings.New())
	require.NoError(t, err)
	return fields
}

func text(q string) query.Node {
	return query.Must(query.NewPlainText(q, ""))
}

func only(n query.Node, fields ...string) query.Node {
	return query.Must(query.NewOnlyFields(n, fields...))
}

func boost(n query.Node, b float64) query.Node {
	return query.Must(query.NewBoost(n, b))
}

// dig walks nested maps by key.
func dig(t *testing.T, m map[string]any, keys ...string) any {
	t.Helper()
	var cur any = m
	for _, k := range keys {
		mm, ok := cur.(map[string]any)
		require.True(t, ok, "expected object at %q, got %T", k, cur)
		cur, ok = mm[k]
		require.True(t, ok, "missing key %q in %v", k, mm)
	}
	return cur
}
