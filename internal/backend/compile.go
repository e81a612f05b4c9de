package backend

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/query"
)

// MatchNothing is the DSL of a query that matches no document.
func MatchNothing() map[string]any {
	return map[string]any{"bool": map[string]any{"must_not": map[string]any{"match_all": map[string]any{}}}}
}

// target is one physical column a leaf is compiled against.
type target struct {
	column string
}

// scope is the set of columns leaves address. all means AllTextField,
// the unrestricted scope.
type scope struct {
	all     bool
	targets []target
}

func (s scope) columns() []string {
	if s.all {
		return []string{AllTextField}
	}
	out := make([]string, len(s.targets))
	for i, t := range s.targets {
		out[i] = t.column
	}
	return out
}

// Compiler turns query trees into Elasticsearch/OpenSearch 7 query DSL.
type Compiler struct {
	Fields     []indexed.PhysicalField
	TieBreaker float64

	once    sync.Once
	columns map[string]string
	// raw holds columns that are both analyzed text and a filter; exact
	// lookups go to their keyword sub-field.
	raw map[string]bool
}

// NewCompiler returns a compiler over fields.
func NewCompiler(fields []indexed.PhysicalField, tieBreaker float64) *Compiler {
	return &Compiler{Fields: fields, TieBreaker: tieBreaker}
}

// resolve maps a field name used in a query to its index column. Declared
// names, model attribute names and column names are all accepted; nested
// children are addressed as "group.child".
func (c *Compiler) resolve(name string) (string, bool) {
	c.once.Do(c.buildIndex)
	if name == AllTextField {
		return AllTextField, true
	}
	col, ok := c.columns[name]
	return col, ok
}

func (c *Compiler) buildIndex() {
	c.columns = columnIndex(c.Fields)
	c.raw = rawColumns(c.Fields, "")
}

// RawSuffix names the keyword sub-field of a text column that is also
// used as a filter.
const RawSuffix = ".raw"

func rawColumns(fields []indexed.PhysicalField, prefix string) map[string]bool {
	text := make(map[string]bool)
	for _, pf := range fields {
		if pf.Kind == indexed.KindSearch {
			text[pf.ColumnName()] = true
		}
	}
	raw := make(map[string]bool)
	for _, pf := range fields {
		switch {
		case pf.Kind == indexed.KindFilter && !pf.Proximity && text[pf.ColumnName()]:
			raw[prefix+pf.ColumnName()] = true
		case pf.Kind == indexed.KindRelated:
			for col := range rawColumns(pf.Children, prefix+pf.ColumnName()+".") {
				raw[col] = true
			}
		}
	}
	return raw
}

// filterColumn resolves the column an exact lookup on field runs against.
func (c *Compiler) filterColumn(field string) string {
	col, ok := c.resolve(field)
	if !ok {
		return field
	}
	if c.raw[col] {
		return col + RawSuffix
	}
	return col
}

func columnIndex(fields []indexed.PhysicalField) map[string]string {
	idx := make(map[string]string)
	var add func(prefixName, prefixCol string, fs []indexed.PhysicalField)
	add = func(prefixName, prefixCol string, fs []indexed.PhysicalField) {
		for _, pf := range fs {
			col := prefixCol + pf.ColumnName()
			names := []string{pf.FieldName + pf.Suffix, pf.Name, pf.ColumnName()}
			for _, n := range names {
				key := prefixName + n
				if _, taken := idx[key]; !taken {
					idx[key] = col
				}
			}
			if pf.Kind == indexed.KindRelated {
				done := make(map[string]bool, len(names))
				for _, n := range names {
					if !done[n] {
						done[n] = true
						add(prefixName+n+".", col+".", pf.Children)
					}
				}
			}
		}
	}
	add("", "", fields)
	return idx
}

// Compile returns the DSL for n. Scoping to fields the compiler does not
// know yields MatchNothing rather than an error; unbound Variable leaves
// are an error.
func (c *Compiler) Compile(n query.Node) (map[string]any, error) {
	return c.compile(n, scope{all: true}, 1.0)
}

func (c *Compiler) compile(n query.Node, sc scope, boost float64) (map[string]any, error) {
	switch t := n.(type) {
	case *query.MatchAll:
		return withBoost(map[string]any{}, boost, "match_all"), nil

	case *query.MatchNone:
		return MatchNothing(), nil

	case *query.PlainText:
		return c.text(t.Query, t.Operator, false, sc, boost), nil

	case *query.Fuzzy:
		return c.text(t.Query, query.OperatorOr, true, sc, boost), nil

	case *query.Phrase:
		return c.phrase(t.Query, sc, boost), nil

	case *query.Variable:
		return nil, exterrors.New(exterrors.ErrCodeInvalidQuery,
			fmt.Sprintf("unbound variable %s(%s) reached the compiler", t.Name, t.QueryType), nil)

	case *query.Boost:
		return c.compile(t.Subquery, sc, boost*t.Boost)

	case *query.OnlyFields:
		next, ok := c.narrow(sc, t.Fields)
		if !ok {
			return MatchNothing(), nil
		}
		return c.compile(t.Subquery, next, boost)

	case *query.Nested:
		inner, err := c.compile(t.Subquery, sc, boost)
		if err != nil {
			return nil, err
		}
		path, ok := c.resolve(t.Path)
		if !ok {
			path = t.Path
		}
		return map[string]any{"nested": map[string]any{"path": path, "query": inner}}, nil

	case *query.And:
		must, err := c.compileAll(t.Subqueries, sc, boost)
		if err != nil {
			return nil, err
		}
		return map[string]any{"bool": map[string]any{"must": must}}, nil

	case *query.Or:
		should, err := c.compileAll(t.Subqueries, sc, boost)
		if err != nil {
			return nil, err
		}
		return map[string]any{"bool": map[string]any{"should": should, "minimum_should_match": 1}}, nil

	case *query.DisMax:
		queries, err := c.compileAll(t.Subqueries, sc, boost)
		if err != nil {
			return nil, err
		}
		return c.disMax(queries), nil

	case *query.Not:
		inner, err := c.compile(t.Subquery, sc, 1.0)
		if err != nil {
			return nil, err
		}
		return map[string]any{"bool": map[string]any{"must_not": inner}}, nil

	case *query.Filtered:
		inner, err := c.compile(t.Subquery, sc, boost)
		if err != nil {
			return nil, err
		}
		filters := make([]any, 0, len(t.Filters))
		for _, f := range t.Filters {
			filters = append(filters, c.filter(f))
		}
		return map[string]any{"bool": map[string]any{"must": inner, "filter": filters}}, nil

	case *query.FunctionScore:
		inner, err := c.compile(t.Subquery, sc, boost)
		if err != nil {
			return nil, err
		}
		field, ok := c.resolve(t.Field)
		if !ok {
			field = t.Field
		}
		params := make(map[string]any, len(t.Params))
		for k, v := range t.Params {
			params[k] = v
		}
		return map[string]any{"function_score": map[string]any{
			"query": inner,
			"functions": []any{
				map[string]any{t.Function: map[string]any{field: params}},
			},
		}}, nil
	}
	return nil, exterrors.New(exterrors.ErrCodeInvalidQuery, fmt.Sprintf("cannot compile %T", n), nil)
}

func (c *Compiler) compileAll(nodes []query.Node, sc scope, boost float64) ([]any, error) {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		q, err := c.compile(n, sc, boost)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// narrow applies an OnlyFields restriction. From the unrestricted scope
// the requested fields become the scope; otherwise the scope is the
// intersection. ok is false when nothing remains.
func (c *Compiler) narrow(sc scope, fields []string) (scope, bool) {
	var resolved []target
	for _, f := range fields {
		col, ok := c.resolve(f)
		if !ok {
			continue
		}
		if col == AllTextField {
			return sc, true
		}
		resolved = append(resolved, target{column: col})
	}

	if !sc.all {
		current := make(map[string]bool, len(sc.targets))
		for _, t := range sc.targets {
			current[t.column] = true
		}
		kept := resolved[:0]
		for _, t := range resolved {
			if current[t.column] {
				kept = append(kept, t)
			}
		}
		resolved = kept
	}
	if len(resolved) == 0 {
		return scope{}, false
	}
	return scope{targets: resolved}, true
}

func (c *Compiler) text(q, operator string, fuzzy bool, sc scope, boost float64) map[string]any {
	cols := sc.columns()
	if len(cols) == 1 {
		body := map[string]any{"query": q}
		if operator == query.OperatorAnd {
			body["operator"] = "and"
		}
		if fuzzy {
			body["fuzziness"] = "AUTO"
		}
		setBoost(body, boost)
		return map[string]any{"match": map[string]any{cols[0]: body}}
	}

	body := map[string]any{"query": q, "fields": cols}
	if operator == query.OperatorAnd {
		body["operator"] = "and"
	}
	if fuzzy {
		body["fuzziness"] = "AUTO"
	}
	setBoost(body, boost)
	return map[string]any{"multi_match": body}
}

func (c *Compiler) phrase(q string, sc scope, boost float64) map[string]any {
	one := func(col string) map[string]any {
		body := map[string]any{"query": q}
		setBoost(body, boost)
		return map[string]any{"match_phrase": map[string]any{col: body}}
	}

	cols := sc.columns()
	if len(cols) == 1 {
		return one(cols[0])
	}
	queries := make([]any, len(cols))
	for i, col := range cols {
		queries[i] = one(col)
	}
	return c.disMax(queries)
}

func (c *Compiler) disMax(queries []any) map[string]any {
	body := map[string]any{"queries": queries}
	if c.TieBreaker > 0 {
		body["tie_breaker"] = c.TieBreaker
	}
	return map[string]any{"dis_max": body}
}

func (c *Compiler) filter(f query.Filter) map[string]any {
	if f.Lookup == query.LookupContains {
		col, ok := c.resolve(f.Field)
		if !ok {
			col = f.Field
		}
		return map[string]any{"match": map[string]any{col: f.Value}}
	}
	col := c.filterColumn(f.Field)
	switch f.Lookup {
	case query.LookupExcludes:
		return map[string]any{"bool": map[string]any{"must_not": map[string]any{"terms": map[string]any{col: f.Value}}}}
	case query.LookupIn:
		return map[string]any{"terms": map[string]any{col: f.Value}}
	default:
		return map[string]any{"term": map[string]any{col: f.Value}}
	}
}

// SearchBody wraps the compiled query in a request body restricted to
// documents of contentType.
func (c *Compiler) SearchBody(n query.Node, contentType string, from, size int) (map[string]any, error) {
	compiled, err := c.Compile(n)
	if err != nil {
		return nil, err
	}
	q := compiled
	if contentType != "" {
		q = map[string]any{"bool": map[string]any{
			"must":   compiled,
			"filter": []any{map[string]any{"term": map[string]any{ContentTypeField: contentType}}},
		}}
	}
	body := map[string]any{"query": q}
	if from > 0 {
		body["from"] = from
	}
	if size > 0 {
		body["size"] = size
	}
	return body, nil
}

func setBoost(body map[string]any, boost float64) {
	if boost != 1.0 {
		body["boost"] = boost
	}
}

func withBoost(body map[string]any, boost float64, key string) map[string]any {
	setBoost(body, boost)
	return map[string]any{key: body}
}

// Columns lists every column the compiler can address, sorted. Used by
// the CLI to explain scoping failures.
func (c *Compiler) Columns() []string {
	c.once.Do(c.buildIndex)
	seen := make(map[string]bool)
	for _, col := range c.columns {
		seen[col] = true
	}
	out := make([]string, 0, len(seen))
	for col := range seen {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

// describe is used in debug logs.
func describe(n query.Node) string {
	s := n.String()
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return strings.TrimSpace(s)
}
