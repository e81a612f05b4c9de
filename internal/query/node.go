// Package query defines the engine-independent query tree.
//
// Nodes are immutable once built. Constructors validate their arguments
// and return errors wrapping errors.ErrInvalidQueryNode; Must turns such
// an error into a panic for statically declared trees.
package query

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
)

// Node is a query tree node. The set of node types is closed.
type Node interface {
	String() string
	isNode()
}

// Operators of PlainText.
const (
	OperatorOr  = "or"
	OperatorAnd = "and"
)

// Lookup is a Filtered predicate operator.
type Lookup string

const (
	// LookupContains matches documents whose field contains Value.
	LookupContains Lookup = "contains"
	// LookupExcludes matches documents whose field holds none of Value.
	LookupExcludes Lookup = "excludes"
	// LookupExact matches documents whose field equals Value.
	LookupExact Lookup = "exact"
	// LookupIn matches documents whose field holds any of Value.
	LookupIn Lookup = "in"
)

// Scoring functions understood by FunctionScore.
var scoreFunctions = map[string]bool{"gauss": true, "exp": true, "linear": true}

// MatchAll matches every document.
type MatchAll struct{}

// MatchNone matches no document.
type MatchNone struct{}

// PlainText matches analysed terms of Query with Operator.
type PlainText struct {
	Query    string
	Operator string
}

// Phrase matches Query as a phrase.
type Phrase struct {
	Query string
}

// Fuzzy matches the terms of Query with edit-distance tolerance.
type Fuzzy struct {
	Query string
}

// Variable is a placeholder for the user's query string, bound later to a
// leaf of kind QueryType (phrase, query_and, query_or, fuzzy).
type Variable struct {
	Name      string
	QueryType string
}

// And matches documents matching every subquery.
type And struct {
	Subqueries []Node
}

// Or matches documents matching any subquery. Every matching subquery
// adds to the score.
type Or struct {
	Subqueries []Node
}

// DisMax matches documents matching any subquery and scores them by the
// best one. It groups the variants of one field.
type DisMax struct {
	Subqueries []Node
}

// Not excludes documents matching Subquery.
type Not struct {
	Subquery Node
}

// OnlyFields restricts Subquery to the named fields.
type OnlyFields struct {
	Subquery Node
	Fields   []string
}

// Nested scopes Subquery to the nested documents at Path.
type Nested struct {
	Subquery Node
	Path     string
}

// Filter is one non-scoring predicate.
type Filter struct {
	Field  string
	Lookup Lookup
	Value  any
}

// Filtered restricts Subquery with non-scoring filters.
type Filtered struct {
	Subquery Node
	Filters  []Filter
}

// Boost multiplies the score contribution of Subquery.
type Boost struct {
	Subquery Node
	Boost    float64
}

// FunctionScore rescores Subquery with a decay function over Field.
type FunctionScore struct {
	Subquery Node
	Function string
	Field    string
	Params   map[string]any
}

func (*MatchAll) isNode()      {}
func (*MatchNone) isNode()     {}
func (*PlainText) isNode()     {}
func (*Phrase) isNode()        {}
func (*Fuzzy) isNode()         {}
func (*Variable) isNode()      {}
func (*And) isNode()           {}
func (*Or) isNode()            {}
func (*DisMax) isNode()        {}
func (*Not) isNode()           {}
func (*OnlyFields) isNode()    {}
func (*Nested) isNode()        {}
func (*Filtered) isNode()      {}
func (*Boost) isNode()         {}
func (*FunctionScore) isNode() {}

func invalid(node, format string, args ...any) error {
	return exterrors.InvalidQueryNode(node, fmt.Sprintf(format, args...))
}

// Must returns n, panicking if err is not nil.
func Must[T Node](n T, err error) T {
	if err != nil {
		panic(err)
	}
	return n
}

// NewPlainText builds a PlainText leaf. An empty operator means "or".
func NewPlainText(q, operator string) (*PlainText, error) {
	if operator == "" {
		operator = OperatorOr
	}
	op := strings.ToLower(operator)
	if op != OperatorOr && op != OperatorAnd {
		return nil, invalid("PlainText", "operator must be %q or %q, got %q", OperatorOr, OperatorAnd, operator)
	}
	return &PlainText{Query: q, Operator: op}, nil
}

// NewVariable builds a placeholder.
func NewVariable(name, queryType string) (*Variable, error) {
	if name == "" {
		return nil, invalid("Variable", "name must not be empty")
	}
	if queryType == "" {
		return nil, invalid("Variable", "query type must not be empty")
	}
	return &Variable{Name: name, QueryType: queryType}, nil
}

// NewAnd combines subqueries conjunctively.
func NewAnd(subqueries ...Node) (*And, error) {
	if err := checkSubqueries("And", subqueries); err != nil {
		return nil, err
	}
	return &And{Subqueries: subqueries}, nil
}

// NewOr combines subqueries disjunctively.
func NewOr(subqueries ...Node) (*Or, error) {
	if err := checkSubqueries("Or", subqueries); err != nil {
		return nil, err
	}
	return &Or{Subqueries: subqueries}, nil
}

// NewDisMax combines subqueries by their best score.
func NewDisMax(subqueries ...Node) (*DisMax, error) {
	if err := checkSubqueries("DisMax", subqueries); err != nil {
		return nil, err
	}
	return &DisMax{Subqueries: subqueries}, nil
}

func checkSubqueries(node string, subqueries []Node) error {
	if len(subqueries) == 0 {
		return invalid(node, "needs at least one subquery")
	}
	for i, sq := range subqueries {
		if isNil(sq) {
			return invalid(node, "subquery %d is nil", i)
		}
	}
	return nil
}

// NewNot negates subquery.
func NewNot(subquery Node) (*Not, error) {
	if isNil(subquery) {
		return nil, invalid("Not", "subquery must not be nil")
	}
	return &Not{Subquery: subquery}, nil
}

// NewOnlyFields scopes subquery to fields.
func NewOnlyFields(subquery Node, fields ...string) (*OnlyFields, error) {
	if isNil(subquery) {
		return nil, invalid("OnlyFields", "subquery must not be nil")
	}
	if len(fields) == 0 {
		return nil, invalid("OnlyFields", "fields must not be empty")
	}
	for i, f := range fields {
		if f == "" {
			return nil, invalid("OnlyFields", "field %d is empty", i)
		}
	}
	return &OnlyFields{Subquery: subquery, Fields: append([]string(nil), fields...)}, nil
}

// NewNested scopes subquery to a nested path.
func NewNested(subquery Node, path string) (*Nested, error) {
	if isNil(subquery) {
		return nil, invalid("Nested", "subquery must not be nil")
	}
	if path == "" {
		return nil, invalid("Nested", "path must not be empty")
	}
	return &Nested{Subquery: subquery, Path: path}, nil
}

// NewFiltered applies filters to subquery.
func NewFiltered(subquery Node, filters ...Filter) (*Filtered, error) {
	if isNil(subquery) {
		return nil, invalid("Filtered", "subquery must not be nil")
	}
	if len(filters) == 0 {
		return nil, invalid("Filtered", "filters must not be empty")
	}
	out := make([]Filter, len(filters))
	for i, f := range filters {
		if f.Field == "" {
			return nil, invalid("Filtered", "filter %d has an empty field", i)
		}
		switch f.Lookup {
		case LookupContains, LookupExact:
			if f.Value == nil {
				return nil, invalid("Filtered", "filter %d (%s) needs a value", i, f.Lookup)
			}
		case LookupExcludes, LookupIn:
			vals, ok := stringList(f.Value)
			if !ok {
				return nil, invalid("Filtered", "filter %d (%s) needs a list of strings, got %T", i, f.Lookup, f.Value)
			}
			f.Value = vals
		default:
			return nil, invalid("Filtered", "filter %d has unknown lookup %q", i, f.Lookup)
		}
		out[i] = f
	}
	return &Filtered{Subquery: subquery, Filters: out}, nil
}

// NewBoost multiplies subquery's contribution by boost.
func NewBoost(subquery Node, boost float64) (*Boost, error) {
	if isNil(subquery) {
		return nil, invalid("Boost", "subquery must not be nil")
	}
	if math.IsNaN(boost) || math.IsInf(boost, 0) || boost <= 0 {
		return nil, invalid("Boost", "boost must be a positive number, got %v", boost)
	}
	return &Boost{Subquery: subquery, Boost: boost}, nil
}

// NewFunctionScore rescores subquery with function over field.
func NewFunctionScore(subquery Node, function, field string, params map[string]any) (*FunctionScore, error) {
	if isNil(subquery) {
		return nil, invalid("FunctionScore", "subquery must not be nil")
	}
	if !scoreFunctions[function] {
		return nil, invalid("FunctionScore", "unknown function %q", function)
	}
	if field == "" {
		return nil, invalid("FunctionScore", "field must not be empty")
	}
	cp := make(map[string]any, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return &FunctionScore{Subquery: subquery, Function: function, Field: field, Params: cp}, nil
}

func stringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// isNil catches typed nil pointers hidden in a Node.
func isNil(n Node) bool {
	if n == nil {
		return true
	}
	switch t := n.(type) {
	case *MatchAll:
		return t == nil
	case *MatchNone:
		return t == nil
	case *PlainText:
		return t == nil
	case *Phrase:
		return t == nil
	case *Fuzzy:
		return t == nil
	case *Variable:
		return t == nil
	case *And:
		return t == nil
	case *Or:
		return t == nil
	case *DisMax:
		return t == nil
	case *Not:
		return t == nil
	case *OnlyFields:
		return t == nil
	case *Nested:
		return t == nil
	case *Filtered:
		return t == nil
	case *Boost:
		return t == nil
	case *FunctionScore:
		return t == nil
	}
	return false
}

func (*MatchAll) String() string  { return "MatchAll()" }
func (*MatchNone) String() string { return "MatchNone()" }

func (n *PlainText) String() string {
	return fmt.Sprintf("PlainText(%q, operator=%q)", n.Query, n.Operator)
}

func (n *Phrase) String() string { return fmt.Sprintf("Phrase(%q)", n.Query) }
func (n *Fuzzy) String() string  { return fmt.Sprintf("Fuzzy(%q)", n.Query) }

func (n *Variable) String() string {
	return fmt.Sprintf("Variable(%q, %q)", n.Name, n.QueryType)
}

func (n *And) String() string    { return "And(" + joinNodes(n.Subqueries) + ")" }
func (n *Or) String() string     { return "Or(" + joinNodes(n.Subqueries) + ")" }
func (n *DisMax) String() string { return "DisMax(" + joinNodes(n.Subqueries) + ")" }
func (n *Not) String() string    { return "Not(" + n.Subquery.String() + ")" }

func (n *OnlyFields) String() string {
	return fmt.Sprintf("OnlyFields(%s, fields=%s)", n.Subquery, quoteList(n.Fields))
}

func (n *Nested) String() string {
	return fmt.Sprintf("Nested(%s, path=%q)", n.Subquery, n.Path)
}

func (n *Filtered) String() string {
	parts := make([]string, len(n.Filters))
	for i, f := range n.Filters {
		parts[i] = fmt.Sprintf("(%q, %q, %s)", f.Field, string(f.Lookup), formatValue(f.Value))
	}
	return fmt.Sprintf("Filtered(%s, filters=[%s])", n.Subquery, strings.Join(parts, ", "))
}

func (n *Boost) String() string {
	return fmt.Sprintf("Boost(%s, %s)", n.Subquery, formatFloat(n.Boost))
}

func (n *FunctionScore) String() string {
	keys := make([]string, 0, len(n.Params))
	for k := range n.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + formatValue(n.Params[k])
	}
	return fmt.Sprintf("FunctionScore(%s, %q, %q, {%s})", n.Subquery, n.Function, n.Field, strings.Join(parts, ", "))
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}

func quoteList(items []string) string {
	parts := make([]string, len(items))
	for i, s := range items {
		parts[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case []string:
		return quoteList(t)
	case float64:
		return formatFloat(t)
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
