package search

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

// fixture models: a person with every facet of field declaration, and a
// page hierarchy where news pages add a field and event pages add none.
type fixture struct {
	person   *indexed.Model
	page     *indexed.Model
	news     *indexed.Model
	event    *indexed.Model
	registry *indexed.Registry
	settings *settings.SearchSettings
}

func newFixture(t *testing.T, opts ...settings.Option) *fixture {
	t.Helper()

	f := &fixture{}
	f.person = &indexed.Model{AppLabel: "people", Name: "Person", Index: indexed.NewIndexManager(
		indexed.NewIndexedField("full_name", indexed.Tokenized(), indexed.Explicit(), indexed.Autocomplete(), indexed.WithBoost(7.0)),
		indexed.NewIndexedField("email", indexed.Keyword(), indexed.WithBoost(4.0)),
		indexed.NewIndexedField("updated", indexed.Proximity()),
		indexed.NewBaseIndexedField("slug"),
		indexed.NewRelatedIndexedFields("teams",
			indexed.NewIndexedField("name", indexed.Tokenized()),
			indexed.NewBaseIndexedField("id"),
		),
	)}
	f.page = &indexed.Model{AppLabel: "pages", Name: "Page", Index: indexed.NewIndexManager(
		indexed.NewIndexedField("title", indexed.Tokenized(), indexed.Fuzzy(), indexed.WithBoost(2.0)),
		indexed.NewIndexedField("summary", indexed.Tokenized()),
	)}
	f.news = &indexed.Model{AppLabel: "news", Name: "NewsPage", Parent: f.page, Index: indexed.NewIndexManager(
		indexed.NewIndexedField("topics", indexed.Keyword(), indexed.WithBoost(3.0)),
	)}
	f.event = &indexed.Model{AppLabel: "events", Name: "EventPage", Parent: f.page, Index: indexed.NewIndexManager()}

	reg, err := indexed.NewRegistry(f.person, f.page, f.news, f.event)
	require.NoError(t, err)
	f.registry = reg

	opts = append([]settings.Option{
		settings.WithFieldSource(reg),
		settings.WithLookupEnv(func(string) (string, bool) { return "", false }),
	}, opts...)
	f.settings = settings.New(opts...)
	require.NoError(t, f.settings.Initialise(context.Background()))
	return f
}

func (f *fixture) builder(opts Options) *QueryBuilder {
	return NewQueryBuilder(f.settings, f.registry, opts)
}

// countingObserver records BuildObserver calls.
type countingObserver struct {
	mu     sync.Mutex
	built  map[string]int
	hits   int
	misses int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{built: make(map[string]int)}
}

func (o *countingObserver) QueryBuilt(model string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.built[model]++
}

func (o *countingObserver) CacheHit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits++
}

func (o *countingObserver) CacheMiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses++
}
