// Package search builds query trees for indexed models and runs them.
//
// QueryBuilder turns field declarations and the resolved search settings
// into a tree with Variable placeholders, caches it per index and model,
// and binds it to a query string on each request. Service drives a search
// end to end against a backend engine.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/extsearch/internal/backend"
	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/query"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

// VariableName names the placeholder bound to the user's query string.
const VariableName = "search_query"

// DefaultIndexName is the index queries are cached for when none is set.
const DefaultIndexName = "workspace"

// BuildObserver is told about cache lookups and fresh builds.
type BuildObserver interface {
	QueryBuilt(model string)
	CacheHit()
	CacheMiss()
}

// Options configures a QueryBuilder.
type Options struct {
	IndexName    string
	CacheEnabled bool
	CacheSize    int
	Observer     BuildObserver
}

// DefaultOptions returns caching options for the default index.
func DefaultOptions() Options {
	return Options{
		IndexName:    DefaultIndexName,
		CacheEnabled: true,
		CacheSize:    DefaultCacheSize,
	}
}

// changeNotifier is implemented by settings that report layer refreshes.
type changeNotifier interface {
	OnChange(fn func(layer string))
}

// QueryBuilder builds and caches query trees. Safe for concurrent use.
type QueryBuilder struct {
	settings settings.Provider
	registry *indexed.Registry
	opts     Options
	cache    *QueryCache
}

// NewQueryBuilder creates a builder over the models of registry. When p
// reports layer refreshes, every refresh purges the cache.
func NewQueryBuilder(p settings.Provider, registry *indexed.Registry, opts Options) *QueryBuilder {
	if opts.IndexName == "" {
		opts.IndexName = DefaultIndexName
	}
	b := &QueryBuilder{settings: p, registry: registry, opts: opts}
	if opts.CacheEnabled {
		b.cache = NewQueryCache(opts.CacheSize)
	}
	if n, ok := p.(changeNotifier); ok {
		n.OnChange(func(layer string) {
			slog.Debug("search_query_cache_purged", slog.String("layer", layer))
			b.Purge()
		})
	}
	return b
}

// Registry returns the models the builder serves.
func (b *QueryBuilder) Registry() *indexed.Registry { return b.registry }

// Settings returns the settings the builder resolves boosts from.
func (b *QueryBuilder) Settings() settings.Provider { return b.settings }

// CacheKey returns the cache key of m's tree.
func (b *QueryBuilder) CacheKey(m *indexed.Model) string {
	return b.opts.IndexName + "__" + m.Label()
}

// Invalidate drops the cached tree of m.
func (b *QueryBuilder) Invalidate(m *indexed.Model) {
	if b.cache != nil {
		b.cache.Remove(b.CacheKey(m))
	}
}

// Purge drops every cached tree.
func (b *QueryBuilder) Purge() {
	if b.cache != nil {
		b.cache.Purge()
	}
}

// BuildSearchQuery returns the query tree of m, or nil when m has no
// searchable fields. ignoreCache forces a rebuild that replaces the
// cached tree.
func (b *QueryBuilder) BuildSearchQuery(m *indexed.Model, ignoreCache bool) (query.Node, error) {
	n, _, err := b.buildCached(m, ignoreCache)
	return n, err
}

func (b *QueryBuilder) buildCached(m *indexed.Model, ignoreCache bool) (query.Node, bool, error) {
	if b.cache == nil {
		n, err := b.buildModel(m)
		return n, false, err
	}

	key := b.CacheKey(m)
	if ignoreCache {
		b.cache.Remove(key)
	}
	n, hit, err := b.cache.Load(key, func() (query.Node, error) {
		return b.buildModel(m)
	})
	if err != nil {
		return nil, false, err
	}
	if b.opts.Observer != nil {
		if hit {
			b.opts.Observer.CacheHit()
		} else {
			b.opts.Observer.CacheMiss()
		}
	}
	if hit {
		slog.Debug("search_query_cache_hit", slog.String("key", key))
	}
	return n, hit, nil
}

func (b *QueryBuilder) buildModel(m *indexed.Model) (query.Node, error) {
	n, err := b.build(m)
	if err != nil {
		return nil, fmt.Errorf("build query for %s: %w", m.Label(), err)
	}

	slog.Debug("search_query_built",
		slog.String("model", m.Label()),
		slog.Int("nodes", query.Count(n, func(query.Node) bool { return true })))
	if b.opts.Observer != nil {
		b.opts.Observer.QueryBuilt(m.Label())
	}
	return n, nil
}

// build composes m's tree. Subtypes declaring fields of their own get a
// branch restricted to their content type, built from their full field
// set; m's own branch excludes those content types.
func (b *QueryBuilder) build(m *indexed.Model) (query.Node, error) {
	var (
		out     query.Node
		handled []string
	)
	for _, sub := range b.registry.Subclasses(m) {
		if !b.registry.HasUniqueFields(sub) {
			continue
		}
		subQuery, err := b.build(sub)
		if err != nil {
			return nil, err
		}
		if subQuery == nil {
			continue
		}
		filtered, err := query.NewFiltered(subQuery, query.Filter{
			Field:  backend.ContentTypeField,
			Lookup: query.LookupContains,
			Value:  sub.Label(),
		})
		if err != nil {
			return nil, err
		}
		out = query.Combine(out, filtered)
		handled = append(handled, sub.Label())
	}

	own, err := b.modelQuery(m)
	if err != nil {
		return nil, err
	}
	if own != nil && len(handled) > 0 {
		own, err = query.NewFiltered(own, query.Filter{
			Field:  backend.ContentTypeField,
			Lookup: query.LookupExcludes,
			Value:  handled,
		})
		if err != nil {
			return nil, err
		}
	}
	return query.Combine(out, own), nil
}

// modelQuery ORs the per-field queries of m, so every matching field
// adds to the score, and applies the decay functions of its proximity
// fields in declaration order.
func (b *QueryBuilder) modelQuery(m *indexed.Model) (query.Node, error) {
	mappings := m.Mappings()

	var out query.Node
	for _, mp := range mappings {
		q, err := b.fieldQuery(m, mp, "", "")
		if err != nil {
			return nil, err
		}
		out = query.Combine(out, q)
	}
	if out == nil {
		return nil, nil
	}

	for _, mp := range mappings {
		if !mp.Proximity {
			continue
		}
		params, err := b.settings.Branch("scoring_functions" + settings.Separator + "gauss")
		if err != nil {
			return nil, err
		}
		field := indexed.ColumnFor(mp.DefinedOn, mp.ModelFieldName)
		scored, err := query.NewFunctionScore(out, "gauss", field, params.ToDict())
		if err != nil {
			return nil, err
		}
		out = scored
	}
	return out, nil
}

// fieldQuery builds the clauses of one mapping. The analyzer and query
// type variants of a field are joined under a DisMax. Columns inside a
// nested group are addressed "{path}.{column}"; boost labels of group
// members are "{app}.{model}.{group}.{field}".
func (b *QueryBuilder) fieldQuery(m *indexed.Model, mp indexed.Mapping, pathPrefix, labelPrefix string) (query.Node, error) {
	if mp.IsRelated() {
		path := pathPrefix + indexed.ColumnFor(mp.DefinedOn, mp.ModelFieldName)
		var inner query.Node
		for _, child := range mp.Related {
			q, err := b.fieldQuery(m, child, path+".", labelPrefix+mp.Name+".")
			if err != nil {
				return nil, err
			}
			inner = query.Combine(inner, q)
		}
		if inner == nil {
			return nil, nil
		}
		return query.NewNested(inner, path)
	}

	if mp.Search == nil {
		return nil, nil
	}
	analyzers := mp.Search
	if len(analyzers) == 0 {
		analyzers = []string{settings.AnalyzerTokenized}
	}

	fieldBoost, err := b.settings.Float(settings.FieldBoostKey(m.Label() + "." + labelPrefix + mp.Name))
	if err != nil {
		return nil, err
	}

	var out query.Node
	for _, analyzer := range analyzers {
		q, err := b.analyzerQuery(mp, analyzer, fieldBoost, pathPrefix)
		if err != nil {
			return nil, err
		}
		out = query.CombineBest(out, q)
	}
	return out, nil
}

func (b *QueryBuilder) analyzerQuery(mp indexed.Mapping, analyzer string, fieldBoost float64, pathPrefix string) (query.Node, error) {
	base := "analyzers" + settings.Separator + analyzer + settings.Separator
	queryTypes, err := b.settings.Strings(base + "query_types")
	if err != nil {
		return nil, err
	}
	analyzerBoost, err := b.settings.Float("boost_parts" + settings.Separator + "analyzers" + settings.Separator + analyzer)
	if err != nil {
		return nil, err
	}
	suffix, err := indexed.AnalyzerSuffix(b.settings, analyzer)
	if err != nil {
		return nil, err
	}
	column := pathPrefix + indexed.ColumnFor(mp.DefinedOn, mp.ModelFieldName+suffix)

	var out query.Node
	for _, qt := range queryTypes {
		if qt == settings.QueryFuzzy && !mp.Fuzzy {
			continue
		}
		typeBoost, err := b.settings.Float("boost_parts" + settings.Separator + "query_types" + settings.Separator + qt)
		if err != nil {
			return nil, err
		}
		boost := typeBoost * analyzerBoost * fieldBoost
		if boost == 0 {
			continue
		}

		v, err := query.NewVariable(VariableName, qt)
		if err != nil {
			return nil, err
		}
		boosted, err := query.NewBoost(v, boost)
		if err != nil {
			return nil, fmt.Errorf("field %s, %s/%s: %w", mp.Name, analyzer, qt, err)
		}
		scoped, err := query.NewOnlyFields(boosted, column)
		if err != nil {
			return nil, err
		}
		out = query.CombineBest(out, scoped)
	}
	return out, nil
}

// BuildVariableQuery returns the leaf a Variable of queryType becomes for
// q. A query_and over fewer than two terms constrains nothing and yields
// nil.
func BuildVariableQuery(queryType, q string) (query.Node, error) {
	switch queryType {
	case settings.QueryPhrase:
		return &query.Phrase{Query: q}, nil
	case settings.QueryAnd:
		if len(strings.Fields(q)) < 2 {
			return nil, nil
		}
		return query.NewPlainText(q, query.OperatorAnd)
	case settings.QueryOr:
		return query.NewPlainText(q, query.OperatorOr)
	case settings.QueryFuzzy:
		return &query.Fuzzy{Query: q}, nil
	default:
		return nil, exterrors.New(exterrors.ErrCodeInvalidQuery,
			fmt.Sprintf("unknown query type %q", queryType), nil)
	}
}

// GetSearchQuery binds m's tree to q. Branches whose placeholder yields
// nothing are pruned; the result is nil when nothing is left.
func (b *QueryBuilder) GetSearchQuery(m *indexed.Model, q string) (query.Node, error) {
	n, _, err := b.searchQuery(m, q)
	return n, err
}

func (b *QueryBuilder) searchQuery(m *indexed.Model, q string) (query.Node, bool, error) {
	if strings.TrimSpace(q) == "" {
		return nil, false, exterrors.New(exterrors.ErrCodeQueryEmpty, "query string is empty", nil)
	}

	tree, hit, err := b.buildCached(m, false)
	if err != nil || tree == nil {
		return nil, hit, err
	}
	bound, err := Bind(tree, q)
	return bound, hit, err
}

// Bind replaces the search_query placeholders of tree with leaves built
// from q. tree is not modified.
func Bind(tree query.Node, q string) (query.Node, error) {
	return query.Transform(tree, func(n query.Node) (query.Node, bool, error) {
		v, ok := n.(*query.Variable)
		if !ok || v.Name != VariableName {
			return nil, false, nil
		}
		leaf, err := BuildVariableQuery(v.QueryType, q)
		return leaf, true, err
	})
}

// BuildAutocompleteQuery ORs an AND match of q over every autocomplete
// field of m.
func (b *QueryBuilder) BuildAutocompleteQuery(m *indexed.Model, q string) (query.Node, error) {
	if strings.TrimSpace(q) == "" {
		return nil, exterrors.New(exterrors.ErrCodeQueryEmpty, "query string is empty", nil)
	}

	var out query.Node
	for _, mp := range m.Mappings() {
		if len(mp.Autocomplete) == 0 {
			continue
		}
		fieldBoost, err := b.settings.Float(settings.FieldBoostKey(m.Label() + "." + mp.Name))
		if err != nil {
			return nil, err
		}
		for _, analyzer := range mp.Autocomplete {
			analyzerBoost, err := b.settings.Float("boost_parts" + settings.Separator + "analyzers" + settings.Separator + analyzer)
			if err != nil {
				return nil, err
			}
			suffix, err := indexed.AnalyzerSuffix(b.settings, analyzer)
			if err != nil {
				return nil, err
			}
			boost := analyzerBoost * fieldBoost
			if boost == 0 {
				continue
			}

			text, err := query.NewPlainText(q, query.OperatorAnd)
			if err != nil {
				return nil, err
			}
			boosted, err := query.NewBoost(text, boost)
			if err != nil {
				return nil, err
			}
			scoped, err := query.NewOnlyFields(boosted, indexed.ColumnFor(mp.DefinedOn, mp.ModelFieldName+suffix))
			if err != nil {
				return nil, err
			}
			out = query.Combine(out, scoped)
		}
	}
	return out, nil
}

// FieldsFor returns the physical fields a search on m can address: its
// own and those of all its subtypes.
func (b *QueryBuilder) FieldsFor(m *indexed.Model) ([]indexed.PhysicalField, error) {
	models := append([]*indexed.Model{m}, b.registry.Descendants(m)...)
	return backend.CollectFields(models, b.settings)
}

// WarmCache builds the tree of every registered model.
func (b *QueryBuilder) WarmCache(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, m := range b.registry.Models() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := b.BuildSearchQuery(m, false)
			return err
		})
	}
	return g.Wait()
}
