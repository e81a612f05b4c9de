package backend

import (
	"fmt"
	"log/slog"

	"github.com/blevesearch/bleve/v2"
	bq "github.com/blevesearch/bleve/v2/search/query"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/query"
)

// BleveCompiler turns query trees into bleve queries. Scoping follows
// Compiler; Or and DisMax both become a disjunction, so DisMax sums
// rather than takes the best score, and FunctionScore keeps only its
// subquery.
type BleveCompiler struct {
	*Compiler
}

// NewBleveCompiler returns a bleve compiler over fields.
func NewBleveCompiler(fields []indexed.PhysicalField, tieBreaker float64) *BleveCompiler {
	return &BleveCompiler{Compiler: NewCompiler(fields, tieBreaker)}
}

// Compile returns the bleve query for n.
func (c *BleveCompiler) Compile(n query.Node) (bq.Query, error) {
	return c.compile(n, scope{all: true}, 1.0)
}

// SearchQuery is Compile restricted to documents of contentType.
func (c *BleveCompiler) SearchQuery(n query.Node, contentType string) (bq.Query, error) {
	q, err := c.Compile(n)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		return q, nil
	}
	ct := bleve.NewTermQuery(contentType)
	ct.SetField(ContentTypeField)
	return bleve.NewConjunctionQuery(q, ct), nil
}

func (c *BleveCompiler) compile(n query.Node, sc scope, boost float64) (bq.Query, error) {
	switch t := n.(type) {
	case *query.MatchAll:
		q := bleve.NewMatchAllQuery()
		q.SetBoost(boost)
		return q, nil

	case *query.MatchNone:
		return bleve.NewMatchNoneQuery(), nil

	case *query.PlainText:
		return c.match(t.Query, t.Operator, false, sc, boost), nil

	case *query.Fuzzy:
		return c.match(t.Query, query.OperatorOr, true, sc, boost), nil

	case *query.Phrase:
		cols := sc.columns()
		qs := make([]bq.Query, len(cols))
		for i, col := range cols {
			pq := bleve.NewMatchPhraseQuery(t.Query)
			pq.SetField(col)
			pq.SetBoost(boost)
			qs[i] = pq
		}
		return either(qs), nil

	case *query.Variable:
		return nil, exterrors.New(exterrors.ErrCodeInvalidQuery,
			fmt.Sprintf("unbound variable %s(%s) reached the compiler", t.Name, t.QueryType), nil)

	case *query.Boost:
		return c.compile(t.Subquery, sc, boost*t.Boost)

	case *query.OnlyFields:
		next, ok := c.narrow(sc, t.Fields)
		if !ok {
			return bleve.NewMatchNoneQuery(), nil
		}
		return c.compile(t.Subquery, next, boost)

	case *query.Nested:
		// Sub-documents are flattened into the parent; child columns
		// already carry the path.
		return c.compile(t.Subquery, sc, boost)

	case *query.And:
		qs, err := c.compileAll(t.Subqueries, sc, boost)
		if err != nil {
			return nil, err
		}
		return bleve.NewConjunctionQuery(qs...), nil

	case *query.Or, *query.DisMax:
		qs, err := c.compileAll(query.Children(t), sc, boost)
		if err != nil {
			return nil, err
		}
		return bleve.NewDisjunctionQuery(qs...), nil

	case *query.Not:
		inner, err := c.compile(t.Subquery, sc, 1.0)
		if err != nil {
			return nil, err
		}
		b := bleve.NewBooleanQuery()
		b.AddMust(bleve.NewMatchAllQuery())
		b.AddMustNot(inner)
		return b, nil

	case *query.Filtered:
		inner, err := c.compile(t.Subquery, sc, boost)
		if err != nil {
			return nil, err
		}
		b := bleve.NewBooleanQuery()
		b.AddMust(inner)
		for _, f := range t.Filters {
			must, mustNot := c.filterQuery(f)
			if must != nil {
				b.AddMust(must)
			}
			if mustNot != nil {
				b.AddMustNot(mustNot)
			}
		}
		return b, nil

	case *query.FunctionScore:
		slog.Debug("bleve_function_score_dropped",
			slog.String("function", t.Function),
			slog.String("field", t.Field),
			slog.String("query", describe(t.Subquery)))
		return c.compile(t.Subquery, sc, boost)
	}
	return nil, exterrors.New(exterrors.ErrCodeInvalidQuery, fmt.Sprintf("cannot compile %T", n), nil)
}

func (c *BleveCompiler) compileAll(nodes []query.Node, sc scope, boost float64) ([]bq.Query, error) {
	out := make([]bq.Query, 0, len(nodes))
	for _, n := range nodes {
		q, err := c.compile(n, sc, boost)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (c *BleveCompiler) match(text, operator string, fuzzy bool, sc scope, boost float64) bq.Query {
	cols := sc.columns()
	qs := make([]bq.Query, len(cols))
	for i, col := range cols {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(col)
		mq.SetBoost(boost)
		if operator == query.OperatorAnd {
			mq.SetOperator(bq.MatchQueryOperatorAnd)
		}
		if fuzzy {
			mq.SetFuzziness(1)
		}
		qs[i] = mq
	}
	return either(qs)
}

// filterQuery returns the clause a filter adds as must or must-not.
func (c *BleveCompiler) filterQuery(f query.Filter) (must, mustNot bq.Query) {
	switch f.Lookup {
	case query.LookupContains:
		col, ok := c.resolve(f.Field)
		if !ok {
			col = f.Field
		}
		mq := bleve.NewMatchQuery(fmt.Sprint(f.Value))
		mq.SetField(col)
		return mq, nil
	case query.LookupExcludes:
		return nil, c.terms(c.filterColumn(f.Field), f.Value)
	case query.LookupIn:
		return c.terms(c.filterColumn(f.Field), f.Value), nil
	default:
		tq := bleve.NewTermQuery(fmt.Sprint(f.Value))
		tq.SetField(c.filterColumn(f.Field))
		return tq, nil
	}
}

func (c *BleveCompiler) terms(col string, value any) bq.Query {
	values, _ := value.([]string)
	if len(values) == 0 {
		return bleve.NewMatchNoneQuery()
	}
	qs := make([]bq.Query, len(values))
	for i, v := range values {
		tq := bleve.NewTermQuery(v)
		tq.SetField(col)
		qs[i] = tq
	}
	return either(qs)
}

func either(qs []bq.Query) bq.Query {
	if len(qs) == 1 {
		return qs[0]
	}
	return bleve.NewDisjunctionQuery(qs...)
}
