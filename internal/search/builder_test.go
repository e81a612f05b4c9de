package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/query"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

func TestBuildSearchQuery_PersonTree(t *testing.T) {
	f := newFixture(t)
	b := f.builder(DefaultOptions())

	tree, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)

	v := func(qt string) string { return `Variable("search_query", "` + qt + `")` }
	want := `FunctionScore(Or(` +
		`DisMax(` +
		`OnlyFields(Boost(` + v("phrase") + `, 70), fields=["full_name"]), ` +
		`OnlyFields(Boost(` + v("query_and") + `, 17.5), fields=["full_name"]), ` +
		`OnlyFields(Boost(` + v("query_or") + `, 7), fields=["full_name"]), ` +
		`OnlyFields(Boost(` + v("phrase") + `, 245), fields=["full_name_explicit"]), ` +
		`OnlyFields(Boost(` + v("query_and") + `, 61.25), fields=["full_name_explicit"]), ` +
		`OnlyFields(Boost(` + v("query_or") + `, 24.5), fields=["full_name_explicit"])` +
		`), ` +
		`OnlyFields(Boost(` + v("query_or") + `, 4), fields=["email_keyword"]), ` +
		`Nested(DisMax(` +
		`OnlyFields(Boost(` + v("phrase") + `, 10), fields=["teams.name"]), ` +
		`OnlyFields(Boost(` + v("query_and") + `, 2.5), fields=["teams.name"]), ` +
		`OnlyFields(Boost(` + v("query_or") + `, 1), fields=["teams.name"])` +
		`), path="teams")` +
		`), "gauss", "updated", {decay=0.5, offset="14d", scale="365d"})`
	assert.Equal(t, want, tree.String())
}

func TestBuildSearchQuery_FuzzyOnlyOnFuzzyFields(t *testing.T) {
	f := newFixture(t)
	tree, err := f.builder(DefaultOptions()).BuildSearchQuery(f.event, false)
	require.NoError(t, err)

	var fuzzyFields []string
	query.Walk(tree, func(n query.Node) bool {
		of, ok := n.(*query.OnlyFields)
		if !ok {
			return true
		}
		if strings.Contains(of.String(), `"fuzzy"`) {
			fuzzyFields = append(fuzzyFields, of.Fields...)
		}
		return false
	})
	assert.Equal(t, []string{"title"}, fuzzyFields)
	assert.Contains(t, tree.String(), `Boost(Variable("search_query", "fuzzy"), 0.2)`)
}

func TestBuildSearchQuery_SubtypePartitioning(t *testing.T) {
	f := newFixture(t)
	tree, err := f.builder(DefaultOptions()).BuildSearchQuery(f.page, false)
	require.NoError(t, err)

	or, ok := tree.(*query.Or)
	require.True(t, ok, "expected Or, got %s", tree)
	require.Len(t, or.Subqueries, 2)

	newsBranch, ok := or.Subqueries[0].(*query.Filtered)
	require.True(t, ok)
	assert.Equal(t, []query.Filter{{Field: "content_type", Lookup: query.LookupContains, Value: "news.newspage"}}, newsBranch.Filters)
	assert.Contains(t, newsBranch.Subquery.String(), `"news_newspage__topics_keyword"`)
	assert.Contains(t, newsBranch.Subquery.String(), `fields=["title"]`)

	pageBranch, ok := or.Subqueries[1].(*query.Filtered)
	require.True(t, ok)
	assert.Equal(t, []query.Filter{{Field: "content_type", Lookup: query.LookupExcludes, Value: []string{"news.newspage"}}}, pageBranch.Filters)
	assert.NotContains(t, pageBranch.Subquery.String(), "news_newspage__topics")

	// Event pages add nothing of their own and share the base branch.
	assert.NotContains(t, tree.String(), "events.eventpage")
	assert.Equal(t, 2, query.Count(tree, func(n query.Node) bool {
		_, ok := n.(*query.Filtered)
		return ok
	}))
}

func TestBuildSearchQuery_SubtypeOverridesBoost(t *testing.T) {
	f := newFixture(t, settings.WithLookupEnv(func(key string) (string, bool) {
		if key == settings.EnvNamespace+settings.Separator+settings.FieldBoostKey("news.newspage.title") {
			return "5", true
		}
		return "", false
	}))

	tree, err := f.builder(DefaultOptions()).BuildSearchQuery(f.page, false)
	require.NoError(t, err)

	or := tree.(*query.Or)
	news := or.Subqueries[0].String()
	base := or.Subqueries[1].String()
	assert.Contains(t, news, `Boost(Variable("search_query", "phrase"), 50), fields=["title"]`)
	assert.Contains(t, base, `Boost(Variable("search_query", "phrase"), 20), fields=["title"]`)
}

func TestBuildSearchQuery_NoSearchableFields(t *testing.T) {
	f := newFixture(t)
	tag := &indexed.Model{AppLabel: "tags", Name: "Tag", Index: indexed.NewIndexManager(indexed.NewBaseIndexedField("slug"))}
	require.NoError(t, f.registry.Register(tag))

	tree, err := f.builder(DefaultOptions()).BuildSearchQuery(tag, false)
	require.NoError(t, err)
	assert.Nil(t, tree)
}

func TestBuildSearchQuery_ZeroBoostDropsClause(t *testing.T) {
	f := newFixture(t, settings.WithDjangoSettings(map[string]any{
		"boost_parts": map[string]any{"query_types": map[string]any{"query_and": 0.0}},
	}))
	tree, err := f.builder(DefaultOptions()).BuildSearchQuery(f.person, false)
	require.NoError(t, err)
	assert.NotContains(t, tree.String(), "query_and")
}

func TestBuildSearchQuery_NegativeBoostFails(t *testing.T) {
	f := newFixture(t, settings.WithDjangoSettings(map[string]any{
		"boost_parts": map[string]any{"analyzers": map[string]any{"keyword": -1.0}},
	}))
	_, err := f.builder(DefaultOptions()).BuildSearchQuery(f.person, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, exterrors.ErrInvalidQueryNode)
}

func TestBuildSearchQuery_MissingFieldBoostPropagates(t *testing.T) {
	f := newFixture(t)
	f.settings.InitialiseFieldDict(nilBoosts{})

	_, err := f.builder(DefaultOptions()).BuildSearchQuery(f.person, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, exterrors.ErrSettingNotFound)
}

type nilBoosts struct{}

func (nilBoosts) FieldBoosts() []settings.FieldBoost { return nil }

func TestBuildSearchQuery_Cache(t *testing.T) {
	f := newFixture(t)
	obs := newCountingObserver()
	opts := DefaultOptions()
	opts.Observer = obs
	b := f.builder(opts)

	first, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)
	second, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)
	assert.Same(t, first, second)

	rebuilt, err := b.BuildSearchQuery(f.person, true)
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
	assert.True(t, query.Equal(first, rebuilt))

	assert.Equal(t, 2, obs.built["people.person"])
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 2, obs.misses)
	assert.Equal(t, "workspace__people.person", b.CacheKey(f.person))
}

func TestBuildSearchQuery_InvalidateOneModel(t *testing.T) {
	f := newFixture(t)
	b := f.builder(DefaultOptions())

	person, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)
	page, err := b.BuildSearchQuery(f.page, false)
	require.NoError(t, err)

	b.Invalidate(f.person)

	again, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)
	assert.NotSame(t, person, again)
	samePage, err := b.BuildSearchQuery(f.page, false)
	require.NoError(t, err)
	assert.Same(t, page, samePage)
}

func TestBuildSearchQuery_CacheDisabled(t *testing.T) {
	f := newFixture(t)
	b := f.builder(Options{CacheEnabled: false})

	first, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)
	second, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, query.Equal(first, second))
}

func TestBuildSearchQuery_SettingsRefreshPurgesCache(t *testing.T) {
	f := newFixture(t)
	b := f.builder(DefaultOptions())

	before, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)

	f.settings.InitialiseDjangoSettings(map[string]any{
		"boost_parts": map[string]any{"query_types": map[string]any{"phrase": 20.0}},
	})

	after, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Contains(t, after.String(), `Boost(Variable("search_query", "phrase"), 140), fields=["full_name"]`)
}

func TestBuildVariableQuery(t *testing.T) {
	tests := []struct {
		queryType string
		q         string
		want      string
	}{
		{settings.QueryPhrase, "jane doe", `Phrase("jane doe")`},
		{settings.QueryAnd, "jane doe", `PlainText("jane doe", operator="and")`},
		{settings.QueryOr, "jane doe", `PlainText("jane doe", operator="or")`},
		{settings.QueryFuzzy, "jnae", `Fuzzy("jnae")`},
	}
	for _, tt := range tests {
		t.Run(tt.queryType, func(t *testing.T) {
			n, err := BuildVariableQuery(tt.queryType, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.String())
		})
	}
}

func TestBuildVariableQuery_SingleTermAndIsNil(t *testing.T) {
	n, err := BuildVariableQuery(settings.QueryAnd, "  jane ")
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestBuildVariableQuery_UnknownType(t *testing.T) {
	_, err := BuildVariableQuery("regex", "j.*")
	require.Error(t, err)
	assert.Equal(t, exterrors.ErrCodeInvalidQuery, exterrors.GetCode(err))
}

func TestGetSearchQuery_BindsAndPrunes(t *testing.T) {
	f := newFixture(t)
	b := f.builder(DefaultOptions())

	tree, err := b.GetSearchQuery(f.person, "jane")
	require.NoError(t, err)
	s := tree.String()
	assert.NotContains(t, s, "Variable(")
	assert.NotContains(t, s, `operator="and"`)
	assert.Contains(t, s, `OnlyFields(Boost(Phrase("jane"), 245), fields=["full_name_explicit"])`)
	assert.Contains(t, s, `OnlyFields(Boost(PlainText("jane", operator="or"), 4), fields=["email_keyword"])`)

	multi, err := b.GetSearchQuery(f.person, "jane doe")
	require.NoError(t, err)
	assert.Contains(t, multi.String(), `OnlyFields(Boost(PlainText("jane doe", operator="and"), 61.25), fields=["full_name_explicit"])`)

	// The cached tree keeps its placeholders.
	cached, err := b.BuildSearchQuery(f.person, false)
	require.NoError(t, err)
	assert.Contains(t, cached.String(), "Variable(")
}

func TestGetSearchQuery_EmptyQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.builder(DefaultOptions()).GetSearchQuery(f.person, "   ")
	require.Error(t, err)
	assert.Equal(t, exterrors.ErrCodeQueryEmpty, exterrors.GetCode(err))
}

func TestBind_OnlyAndPlaceholdersPruned(t *testing.T) {
	tree := query.Must(query.NewOnlyFields(
		query.Must(query.NewBoost(query.Must(query.NewVariable(VariableName, settings.QueryAnd)), 2.5)), "title"))

	bound, err := Bind(tree, "budget")
	require.NoError(t, err)
	assert.Nil(t, bound)
}

func TestBuildAutocompleteQuery(t *testing.T) {
	f := newFixture(t)
	b := f.builder(DefaultOptions())

	n, err := b.BuildAutocompleteQuery(f.person, "ja do")
	require.NoError(t, err)
	assert.Equal(t, `OnlyFields(Boost(PlainText("ja do", operator="and"), 7), fields=["full_name_edgengrams"])`, n.String())

	none, err := b.BuildAutocompleteQuery(f.page, "bud")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFieldsFor_IncludesSubtypeColumns(t *testing.T) {
	f := newFixture(t)
	fields, err := f.builder(DefaultOptions()).FieldsFor(f.page)
	require.NoError(t, err)

	var cols []string
	for _, pf := range fields {
		cols = append(cols, pf.ColumnName())
	}
	assert.Contains(t, cols, "title")
	assert.Contains(t, cols, "news_newspage__topics_keyword")
}

func TestWarmCache(t *testing.T) {
	f := newFixture(t)
	obs := newCountingObserver()
	opts := DefaultOptions()
	opts.Observer = obs
	b := f.builder(opts)

	require.NoError(t, b.WarmCache(context.Background()))
	for _, m := range f.registry.Models() {
		assert.Equal(t, 1, obs.built[m.Label()], m.Label())
	}

	_, err := b.BuildSearchQuery(f.page, false)
	require.NoError(t, err)
	assert.Equal(t, 1, obs.hits)
}
