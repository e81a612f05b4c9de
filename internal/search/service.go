package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/extsearch/internal/backend"
	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/telemetry"
)

// DefaultFacet is used when a request names neither a model nor a facet.
const DefaultFacet = "all"

// DefaultLimit is the page size when a request sets none.
const DefaultLimit = 20

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// SearchRequest is one search. Model is a model label and takes
// precedence over Facet.
type SearchRequest struct {
	Query  string
	Model  string
	Facet  string
	Limit  int
	Offset int
}

// SearchResponse is a page of ranked hits.
type SearchResponse struct {
	Model    string        `json:"model"`
	Total    int64         `json:"total"`
	Hits     []backend.Hit `json:"hits"`
	Took     time.Duration `json:"took"`
	CacheHit bool          `json:"cache_hit"`
}

// Service runs searches: it binds the model's cached tree to the query
// string and executes it on an engine restricted to the model's content
// type.
type Service struct {
	builder      *QueryBuilder
	engine       backend.Engine
	facets       map[string]string
	queryMetrics *telemetry.QueryMetrics
	metrics      *telemetry.Metrics
	defaultLimit int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFacets maps facet names to model labels.
func WithFacets(facets map[string]string) ServiceOption {
	return func(s *Service) {
		for k, v := range facets {
			s.facets[k] = v
		}
	}
}

// WithQueryMetrics records every request in m.
func WithQueryMetrics(m *telemetry.QueryMetrics) ServiceOption {
	return func(s *Service) { s.queryMetrics = m }
}

// WithMetrics observes search latency in m.
func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultLimit sets the page size used when a request sets none.
func WithDefaultLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// NewService creates a search service.
func NewService(builder *QueryBuilder, engine backend.Engine, opts ...ServiceOption) (*Service, error) {
	if builder == nil {
		return nil, fmt.Errorf("%w: query builder is required", ErrNilDependency)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: engine is required", ErrNilDependency)
	}

	s := &Service{
		builder:      builder,
		engine:       engine,
		facets:       make(map[string]string),
		defaultLimit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Model resolves the model a request targets.
func (s *Service) Model(req SearchRequest) (*indexed.Model, error) {
	label := req.Model
	if label == "" {
		facet := req.Facet
		if facet == "" {
			facet = DefaultFacet
		}
		var ok bool
		label, ok = s.facets[facet]
		if !ok {
			return nil, exterrors.ValidationError(fmt.Sprintf("unknown facet %q", facet), nil).
				WithDetail("facet", facet)
		}
	}
	return s.builder.Registry().Get(label)
}

// Search runs req. A query that binds to an empty tree returns no hits.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	m, err := s.Model(req)
	if err != nil {
		return nil, err
	}
	if req.Offset < 0 {
		return nil, exterrors.ValidationError("offset must not be negative", nil)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	tree, hit, err := s.builder.searchQuery(m, req.Query)
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{Model: m.Label(), Hits: []backend.Hit{}, CacheHit: hit}
	if tree != nil {
		fields, err := s.builder.FieldsFor(m)
		if err != nil {
			return nil, err
		}
		res, err := s.engine.Search(ctx, backend.Request{
			Query:       tree,
			Fields:      fields,
			ContentType: m.Label(),
			From:        req.Offset,
			Size:        limit,
		})
		if err != nil {
			if exterrors.GetCode(err) == "" {
				err = exterrors.New(exterrors.ErrCodeSearchFailed, "search failed", err)
			}
			return nil, err
		}
		resp.Total = res.Total
		resp.Hits = res.Hits
	}

	resp.Took = time.Since(start)
	s.record(req.Query, resp)
	return resp, nil
}

func (s *Service) record(q string, resp *SearchResponse) {
	slog.Debug("search_completed",
		slog.String("model", resp.Model),
		slog.Int64("total", resp.Total),
		slog.Bool("cache_hit", resp.CacheHit),
		slog.Duration("took", resp.Took))

	if s.metrics != nil {
		s.metrics.ObserveSearch(resp.Model, resp.Took)
	}
	if s.queryMetrics != nil {
		s.queryMetrics.Record(telemetry.QueryEvent{
			Query:       q,
			Model:       resp.Model,
			ResultCount: len(resp.Hits),
			Latency:     resp.Took,
			CacheHit:    resp.CacheHit,
			Timestamp:   time.Now(),
		})
	}
}

// Autocomplete returns hits whose autocomplete fields match every term
// of the prefix q.
func (s *Service) Autocomplete(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	m, err := s.Model(req)
	if err != nil {
		return nil, err
	}
	tree, err := s.builder.BuildAutocompleteQuery(m, req.Query)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	resp := &SearchResponse{Model: m.Label(), Hits: []backend.Hit{}}
	if tree != nil {
		fields, err := s.builder.FieldsFor(m)
		if err != nil {
			return nil, err
		}
		res, err := s.engine.Search(ctx, backend.Request{
			Query:       tree,
			Fields:      fields,
			ContentType: m.Label(),
			From:        req.Offset,
			Size:        limit,
		})
		if err != nil {
			return nil, err
		}
		resp.Total = res.Total
		resp.Hits = res.Hits
	}
	resp.Took = time.Since(start)
	return resp, nil
}
