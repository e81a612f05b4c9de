package query

// Equal reports whether a and b are structurally equal.
func Equal(a, b Node) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	return a.String() == b.String()
}

// Combine ORs a and b. Either may be nil; nested Or nodes are flattened.
func Combine(a, b Node) Node {
	return combine(a, b, func(n Node) ([]Node, bool) {
		if or, ok := n.(*Or); ok {
			return or.Subqueries, true
		}
		return nil, false
	}, func(subs []Node) Node { return &Or{Subqueries: subs} })
}

// CombineBest joins a and b under a DisMax. Either may be nil; nested
// DisMax nodes are flattened.
func CombineBest(a, b Node) Node {
	return combine(a, b, func(n Node) ([]Node, bool) {
		if dm, ok := n.(*DisMax); ok {
			return dm.Subqueries, true
		}
		return nil, false
	}, func(subs []Node) Node { return &DisMax{Subqueries: subs} })
}

func combine(a, b Node, flatten func(Node) ([]Node, bool), build func([]Node) Node) Node {
	switch {
	case isNil(a) && isNil(b):
		return nil
	case isNil(a):
		return b
	case isNil(b):
		return a
	}

	var subs []Node
	for _, n := range []Node{a, b} {
		if inner, ok := flatten(n); ok {
			subs = append(subs, inner...)
		} else {
			subs = append(subs, n)
		}
	}
	return build(subs)
}

// Children returns the direct subqueries of n.
func Children(n Node) []Node {
	switch t := n.(type) {
	case *And:
		return t.Subqueries
	case *Or:
		return t.Subqueries
	case *DisMax:
		return t.Subqueries
	case *Not:
		return []Node{t.Subquery}
	case *OnlyFields:
		return []Node{t.Subquery}
	case *Nested:
		return []Node{t.Subquery}
	case *Filtered:
		return []Node{t.Subquery}
	case *Boost:
		return []Node{t.Subquery}
	case *FunctionScore:
		return []Node{t.Subquery}
	default:
		return nil
	}
}

// Walk visits n and its descendants depth-first, pre-order. Returning
// false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if isNil(n) || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// Transform rebuilds n bottom-up without modifying it. fn is offered each
// node first; returning replace=true substitutes the result (nil prunes
// the node) and stops the descent. Combinators left with no children are
// pruned and those left with one collapse to it; wrappers around a
// pruned subquery are pruned too.
func Transform(n Node, fn func(Node) (repl Node, replace bool, err error)) (Node, error) {
	if isNil(n) {
		return nil, nil
	}
	repl, replace, err := fn(n)
	if err != nil {
		return nil, err
	}
	if replace {
		if isNil(repl) {
			return nil, nil
		}
		return repl, nil
	}

	switch t := n.(type) {
	case *And:
		subs, err := transformAll(t.Subqueries, fn)
		if err != nil || len(subs) == 0 {
			return nil, err
		}
		if len(subs) == 1 {
			return subs[0], nil
		}
		return &And{Subqueries: subs}, nil
	case *Or:
		subs, err := transformAll(t.Subqueries, fn)
		if err != nil || len(subs) == 0 {
			return nil, err
		}
		if len(subs) == 1 {
			return subs[0], nil
		}
		return &Or{Subqueries: subs}, nil
	case *DisMax:
		subs, err := transformAll(t.Subqueries, fn)
		if err != nil || len(subs) == 0 {
			return nil, err
		}
		if len(subs) == 1 {
			return subs[0], nil
		}
		return &DisMax{Subqueries: subs}, nil
	}

	children := Children(n)
	if len(children) == 0 {
		return n, nil
	}
	sub, err := Transform(children[0], fn)
	if err != nil || sub == nil {
		return nil, err
	}
	switch t := n.(type) {
	case *Not:
		return &Not{Subquery: sub}, nil
	case *OnlyFields:
		return &OnlyFields{Subquery: sub, Fields: t.Fields}, nil
	case *Nested:
		return &Nested{Subquery: sub, Path: t.Path}, nil
	case *Filtered:
		return &Filtered{Subquery: sub, Filters: t.Filters}, nil
	case *Boost:
		return &Boost{Subquery: sub, Boost: t.Boost}, nil
	case *FunctionScore:
		return &FunctionScore{Subquery: sub, Function: t.Function, Field: t.Field, Params: t.Params}, nil
	}
	return n, nil
}

func transformAll(nodes []Node, fn func(Node) (Node, bool, error)) ([]Node, error) {
	out := make([]Node, 0, len(nodes))
	for _, c := range nodes {
		r, err := Transform(c, fn)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// Count returns the number of nodes in n matching pred.
func Count(n Node, pred func(Node) bool) int {
	count := 0
	Walk(n, func(c Node) bool {
		if pred(c) {
			count++
		}
		return true
	})
	return count
}
