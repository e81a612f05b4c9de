// Package backend compiles query trees for search engines and runs them.
//
// Compiler emits Elasticsearch/OpenSearch 7 query DSL; BleveIndex is a
// local engine built on bleve with the same field layout; OpenSearchClient
// sends compiled bodies to a cluster.
package backend

import (
	"context"
	"time"

	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/query"
)

const (
	// ContentTypeField holds the labels of a document's model chain.
	ContentTypeField = "content_type"
	// AllTextField is the catch-all text field; scoping a query to it
	// means "every search field".
	AllTextField = "_all_text"
)

// Document is an indexable record of Model. Fields are keyed by model
// attribute name; related groups hold a map or a list of maps.
type Document struct {
	ID     string         `json:"id"`
	Model  *indexed.Model `json:"-"`
	Fields map[string]any `json:"fields"`
}

// Request is one search against an engine.
type Request struct {
	Query query.Node
	// Fields are the physical fields the query may address.
	Fields []indexed.PhysicalField
	// ContentType restricts hits to documents of this model label.
	ContentType string
	From        int
	Size        int
}

// Hit is one ranked result.
type Hit struct {
	ID          string         `json:"id"`
	Score       float64        `json:"score"`
	ContentType []string       `json:"content_type,omitempty"`
	Source      map[string]any `json:"source,omitempty"`
}

// Result is a page of hits.
type Result struct {
	Total int64         `json:"total"`
	Hits  []Hit         `json:"hits"`
	Took  time.Duration `json:"took"`
}

// Engine runs compiled searches and stores documents.
type Engine interface {
	Search(ctx context.Context, req Request) (*Result, error)
	Index(ctx context.Context, docs []Document) error
	Close() error
}

// DocumentBody lays doc out under physical column names, the shape both
// engines store.
func DocumentBody(doc Document, fields []indexed.PhysicalField) map[string]any {
	body := map[string]any{
		ContentTypeField: doc.Model.ContentTypes(),
	}
	var allText []string
	for _, pf := range fields {
		v, ok := doc.Fields[pf.ModelFieldName]
		if !ok || v == nil {
			continue
		}
		if pf.Kind == indexed.KindRelated {
			body[pf.ColumnName()] = relatedBody(v, pf.Children)
			continue
		}
		body[pf.ColumnName()] = v
		if pf.Kind == indexed.KindSearch {
			if s, ok := v.(string); ok {
				allText = append(allText, s)
			}
		}
	}
	if len(allText) > 0 {
		body[AllTextField] = allText
	}
	return body
}

func relatedBody(v any, children []indexed.PhysicalField) any {
	layout := func(m map[string]any) map[string]any {
		out := make(map[string]any)
		for _, c := range children {
			cv, ok := m[c.ModelFieldName]
			if !ok {
				continue
			}
			if c.Kind == indexed.KindRelated {
				out[c.ColumnName()] = relatedBody(cv, c.Children)
				continue
			}
			out[c.ColumnName()] = cv
		}
		return out
	}

	switch t := v.(type) {
	case map[string]any:
		return layout(t)
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, layout(m))
			}
		}
		return out
	case []map[string]any:
		out := make([]any, 0, len(t))
		for _, m := range t {
			out = append(out, layout(m))
		}
		return out
	default:
		return v
	}
}
