package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

// OpenSearchConfig configures an OpenSearchClient.
type OpenSearchConfig struct {
	Addresses  []string
	Username   string
	Password   string
	Index      string
	Timeout    time.Duration
	MaxRetries int
	TieBreaker float64
	// Transport overrides the HTTP transport; tests point it at httptest.
	Transport http.RoundTripper
}

// OpenSearchClient is an Engine backed by an Elasticsearch 7 compatible
// cluster. Requests are compiled with Compiler.
type OpenSearchClient struct {
	client   *opensearch.Client
	cfg      OpenSearchConfig
	fields   []indexed.PhysicalField
	settings settings.Provider
	retry    exterrors.RetryConfig
}

// NewOpenSearchClient returns a client for the index serving models.
func NewOpenSearchClient(cfg OpenSearchConfig, models []*indexed.Model, p settings.Provider) (*OpenSearchClient, error) {
	if cfg.Index == "" {
		return nil, exterrors.ConfigError("opensearch index name is required", nil)
	}
	fields, err := CollectFields(models, p)
	if err != nil {
		return nil, err
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    cfg.Transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, exterrors.ConfigError("invalid opensearch configuration", err)
	}

	retry := exterrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	retry.Jitter = true
	retry.ShouldRetry = exterrors.IsRetryable

	return &OpenSearchClient{
		client:   client,
		cfg:      cfg,
		fields:   fields,
		settings: p,
		retry:    retry,
	}, nil
}

// Fields returns the physical fields of the index.
func (c *OpenSearchClient) Fields() []indexed.PhysicalField {
	return c.fields
}

// CreateIndex creates the index with BuildMapping. An existing index is
// left untouched unless recreate is set.
func (c *OpenSearchClient) CreateIndex(ctx context.Context, recreate bool) error {
	exists, err := c.indexExists(ctx)
	if err != nil {
		return err
	}
	if exists && !recreate {
		slog.Info("opensearch_index_exists", slog.String("index", c.cfg.Index))
		return nil
	}
	if exists {
		del := opensearchapi.IndicesDeleteRequest{Index: []string{c.cfg.Index}}
		if _, err := c.do(ctx, "delete index", del.Do); err != nil {
			return err
		}
	}

	body, err := json.Marshal(BuildMapping(c.fields))
	if err != nil {
		return exterrors.InternalError("failed to encode index mapping", err)
	}
	if _, err := c.do(ctx, "create index", func(ctx context.Context, t opensearchapi.Transport) (*opensearchapi.Response, error) {
		req := opensearchapi.IndicesCreateRequest{Index: c.cfg.Index, Body: bytes.NewReader(body)}
		return req.Do(ctx, t)
	}); err != nil {
		return err
	}
	slog.Info("opensearch_index_created", slog.String("index", c.cfg.Index), slog.Int("fields", len(c.fields)))
	return nil
}

func (c *OpenSearchClient) indexExists(ctx context.Context) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{Index: []string{c.cfg.Index}}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := req.Do(ctx, c.client)
	if err != nil {
		return false, exterrors.NetworkError("opensearch unreachable", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, responseError("index exists", resp)
}

// Index writes docs with one bulk request.
func (c *OpenSearchClient) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		if doc.Model == nil {
			return exterrors.ValidationError(fmt.Sprintf("document %s has no model", doc.ID), nil)
		}
		fields, err := doc.Model.SearchFields(c.settings)
		if err != nil {
			return err
		}
		meta := map[string]any{"index": map[string]any{"_index": c.cfg.Index, "_id": doc.ID}}
		if err := enc.Encode(meta); err != nil {
			return exterrors.InternalError("failed to encode bulk action", err)
		}
		if err := enc.Encode(DocumentBody(doc, fields)); err != nil {
			return exterrors.InternalError(fmt.Sprintf("failed to encode document %s", doc.ID), err)
		}
	}

	payload := buf.Bytes()
	resp, err := c.do(ctx, "bulk", func(ctx context.Context, t opensearchapi.Transport) (*opensearchapi.Response, error) {
		req := opensearchapi.BulkRequest{Body: bytes.NewReader(payload), Refresh: "true"}
		return req.Do(ctx, t)
	})
	if err != nil {
		return err
	}

	var bulk struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string `json:"_id"`
			Error *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(resp, &bulk); err != nil {
		return exterrors.New(exterrors.ErrCodeIndexFailed, "invalid bulk response", err)
	}
	if bulk.Errors {
		for _, item := range bulk.Items {
			for _, r := range item {
				if r.Error != nil {
					return exterrors.New(exterrors.ErrCodeIndexFailed,
						fmt.Sprintf("document %s: %s: %s", r.ID, r.Error.Type, r.Error.Reason), nil)
				}
			}
		}
	}
	return nil
}

// Search compiles req and runs it against the index.
func (c *OpenSearchClient) Search(ctx context.Context, req Request) (*Result, error) {
	fields := req.Fields
	if len(fields) == 0 {
		fields = c.fields
	}
	body, err := NewCompiler(fields, c.cfg.TieBreaker).SearchBody(req.Query, req.ContentType, req.From, req.Size)
	if err != nil {
		return nil, err
	}
	return c.SearchRaw(ctx, body)
}

// SearchRaw runs an already compiled request body.
func (c *OpenSearchClient) SearchRaw(ctx context.Context, body map[string]any) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, exterrors.InternalError("failed to encode search body", err)
	}

	start := time.Now()
	raw, err := c.do(ctx, "search", func(ctx context.Context, t opensearchapi.Transport) (*opensearchapi.Response, error) {
		req := opensearchapi.SearchRequest{Index: []string{c.cfg.Index}, Body: bytes.NewReader(payload)}
		return req.Do(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string         `json:"_id"`
				Score  float64        `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, exterrors.New(exterrors.ErrCodeSearchFailed, "invalid search response", err)
	}

	out := &Result{
		Total: resp.Hits.Total.Value,
		Took:  time.Duration(resp.Took) * time.Millisecond,
		Hits:  make([]Hit, 0, len(resp.Hits.Hits)),
	}
	for _, h := range resp.Hits.Hits {
		out.Hits = append(out.Hits, Hit{
			ID:          h.ID,
			Score:       h.Score,
			ContentType: stringList(h.Source[ContentTypeField]),
			Source:      h.Source,
		})
	}

	slog.Debug("opensearch_search",
		slog.String("index", c.cfg.Index),
		slog.Int64("total", out.Total),
		slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

type requestFunc func(ctx context.Context, t opensearchapi.Transport) (*opensearchapi.Response, error)

// do runs fn with retries and returns the response body. Transport
// failures and 429/5xx responses are retried.
func (c *OpenSearchClient) do(ctx context.Context, op string, fn requestFunc) ([]byte, error) {
	return exterrors.RetryWithResult(ctx, c.retry, func() ([]byte, error) {
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()

		resp, err := fn(ctx, c.client)
		if err != nil {
			return nil, exterrors.NetworkError(fmt.Sprintf("opensearch %s failed", op), err)
		}
		defer resp.Body.Close()

		if resp.IsError() {
			return nil, responseError(op, resp)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, exterrors.NetworkError(fmt.Sprintf("opensearch %s: reading response", op), err)
		}
		return data, nil
	})
}

func (c *OpenSearchClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func responseError(op string, resp *opensearchapi.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	msg := fmt.Sprintf("opensearch %s: status %d", op, resp.StatusCode)
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Reason != "" {
		msg = fmt.Sprintf("opensearch %s: %s: %s", op, body.Error.Type, body.Error.Reason)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return exterrors.New(exterrors.ErrCodeNetworkUnavailable, msg, nil)
	}
	return exterrors.New(exterrors.ErrCodeEngineError, msg, nil)
}

// Close is a no-op; the HTTP client holds no resources that need release.
func (c *OpenSearchClient) Close() error {
	return nil
}

var _ Engine = (*OpenSearchClient)(nil)
