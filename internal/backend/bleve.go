package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

const edgeNGramFilter = "edgengram"

// bleveAnalyzers maps Elasticsearch analyzer names to their bleve
// equivalents. Custom analyzers keep their names.
var bleveAnalyzers = map[string]string{
	"snowball": en.AnalyzerName,
	"simple":   simple.Name,
	"standard": standard.Name,
	"keyword":  keyword.Name,
}

func bleveAnalyzer(name string) string {
	if a, ok := bleveAnalyzers[name]; ok {
		return a
	}
	return name
}

// BleveIndex is a local Engine on a bleve index with the same column
// layout as the Elasticsearch mapping. Field boosts are applied at query
// time only; bleve has no index-time boost.
type BleveIndex struct {
	mu         sync.RWMutex
	index      bleve.Index
	path       string
	fields     []indexed.PhysicalField
	settings   settings.Provider
	tieBreaker float64
	closed     bool
}

// NewBleveIndex opens or creates the index at path for models. An empty
// path creates an in-memory index.
func NewBleveIndex(path string, models []*indexed.Model, p settings.Provider, tieBreaker float64) (*BleveIndex, error) {
	fields, err := CollectFields(models, p)
	if err != nil {
		return nil, err
	}
	im, err := BuildBleveMapping(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			if os.IsPermission(err) {
				return nil, exterrors.New(exterrors.ErrCodeFilePermission, "cannot create index directory", err).
					WithDetail("path", dir)
			}
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		idx, err = bleve.Open(path)
		switch {
		case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
			slog.Info("bleve_index_created", slog.String("path", path))
			idx, err = bleve.New(path, im)
		case os.IsPermission(err):
			return nil, exterrors.New(exterrors.ErrCodeFilePermission, "cannot read bleve index", err).
				WithDetail("path", path)
		case err != nil:
			return nil, exterrors.New(exterrors.ErrCodeCorruptIndex, "bleve index is unreadable", err).
				WithDetail("path", path).
				WithSuggestion("Remove the index directory and re-run 'extsearch index'")
		}
	}
	if err != nil {
		return nil, exterrors.New(exterrors.ErrCodeEngineError, "failed to open bleve index", err).
			WithDetail("path", path)
	}

	return &BleveIndex{
		index:      idx,
		path:       path,
		fields:     fields,
		settings:   p,
		tieBreaker: tieBreaker,
	}, nil
}

// BuildBleveMapping returns the bleve counterpart of BuildMapping.
func BuildBleveMapping(fields []indexed.PhysicalField) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomTokenFilter(edgeNGramFilter, map[string]interface{}{
		"type": edgengram.Name,
		"min":  float64(1),
		"max":  float64(15),
	})
	if err != nil {
		return nil, err
	}
	err = im.AddCustomAnalyzer(AnalyzerNoSpaces, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}
	err = im.AddCustomAnalyzer(AnalyzerEdgeNGram, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name, edgeNGramFilter},
	})
	if err != nil {
		return nil, err
	}

	doc := bleve.NewDocumentMapping()

	ct := bleve.NewTextFieldMapping()
	ct.Analyzer = keyword.Name
	ct.IncludeInAll = false
	doc.AddFieldMappingsAt(ContentTypeField, ct)

	all := bleve.NewTextFieldMapping()
	all.Analyzer = en.AnalyzerName
	all.Store = false
	doc.AddFieldMappingsAt(AllTextField, all)

	addBleveFields(doc, fields)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im, nil
}

func addBleveFields(doc *mapping.DocumentMapping, fields []indexed.PhysicalField) {
	raw := rawColumns(fields, "")
	for _, pf := range fields {
		col := pf.ColumnName()
		switch pf.Kind {
		case indexed.KindRelated:
			sub := bleve.NewDocumentMapping()
			addBleveFields(sub, pf.Children)
			doc.AddSubDocumentMapping(col, sub)
		case indexed.KindFilter:
			if pf.Proximity {
				fm := bleve.NewDateTimeFieldMapping()
				fm.IncludeInAll = false
				doc.AddFieldMappingsAt(col, fm)
				continue
			}
			if raw[col] {
				continue
			}
			fm := bleve.NewTextFieldMapping()
			fm.Analyzer = keyword.Name
			fm.IncludeInAll = false
			doc.AddFieldMappingsAt(col, fm)
		default:
			fm := bleve.NewTextFieldMapping()
			fm.Analyzer = bleveAnalyzer(pf.Analyzer)
			fm.Store = false
			fm.IncludeInAll = false
			fms := []*mapping.FieldMapping{fm}
			if raw[col] {
				exact := bleve.NewTextFieldMapping()
				exact.Name = col + RawSuffix
				exact.Analyzer = keyword.Name
				exact.Store = false
				exact.IncludeInAll = false
				fms = append(fms, exact)
			}
			doc.AddFieldMappingsAt(col, fms...)
		}
	}
}

// Fields returns the physical fields the index was built for.
func (b *BleveIndex) Fields() []indexed.PhysicalField {
	return b.fields
}

// Index adds or replaces docs.
func (b *BleveIndex) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return exterrors.New(exterrors.ErrCodeEngineError, "index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if doc.Model == nil {
			return exterrors.ValidationError(fmt.Sprintf("document %s has no model", doc.ID), nil)
		}
		fields, err := doc.Model.SearchFields(b.settings)
		if err != nil {
			return err
		}
		if err := batch.Index(doc.ID, DocumentBody(doc, fields)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Delete removes documents by ID.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return exterrors.New(exterrors.ErrCodeEngineError, "index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (b *BleveIndex) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, exterrors.New(exterrors.ErrCodeEngineError, "index is closed", nil)
	}
	return b.index.DocCount()
}

// Search compiles req.Query against req.Fields (the index fields when
// empty) and runs it.
func (b *BleveIndex) Search(ctx context.Context, req Request) (*Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, exterrors.New(exterrors.ErrCodeEngineError, "index is closed", nil)
	}

	fields := req.Fields
	if len(fields) == 0 {
		fields = b.fields
	}
	q, err := NewBleveCompiler(fields, b.tieBreaker).SearchQuery(req.Query, req.ContentType)
	if err != nil {
		return nil, err
	}

	size := req.Size
	if size <= 0 {
		size = 10
	}
	sr := bleve.NewSearchRequestOptions(q, size, req.From, false)
	sr.Fields = []string{ContentTypeField}

	res, err := b.index.SearchInContext(ctx, sr)
	if err != nil {
		return nil, exterrors.New(exterrors.ErrCodeSearchFailed, "bleve search failed", err)
	}

	out := &Result{
		Total: int64(res.Total),
		Took:  res.Took,
		Hits:  make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, Hit{
			ID:          h.ID,
			Score:       h.Score,
			ContentType: stringList(h.Fields[ContentTypeField]),
		})
	}
	return out, nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	}
	return nil
}

// Close releases the index. Safe to call more than once.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.index.Close(); err != nil && !strings.Contains(err.Error(), "closed") {
		return err
	}
	return nil
}

var _ Engine = (*BleveIndex)(nil)
