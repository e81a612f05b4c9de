package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/extsearch/internal/backend"
	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/output"
)

// indexBatchSize bounds the documents sent to the engine at once.
const indexBatchSize = 500

type indexOptions struct {
	file     string
	recreate bool
}

// documentRecord is one entry of an index file.
type documentRecord struct {
	ID     string         `json:"id"`
	Model  string         `json:"model"`
	Fields map[string]any `json:"fields"`
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load documents into the search engine",
		Long: `Load documents into the configured engine.

The file holds a JSON array of documents:

  [{"id": "p1", "model": "people.person",
    "fields": {"full_name": "Jane Doe", "roles": [{"team_name": "Budget"}]}}]

Fields are keyed by model attribute name; related groups hold an object or
a list of objects. Use --file - to read from stdin.`,
		Example: `  extsearch index --file people.json
  extsearch index --file docs.json --recreate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "JSON document file (- for stdin)")
	cmd.Flags().BoolVar(&opts.recreate, "recreate", false, "Drop and recreate the OpenSearch index first")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	start := time.Now()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())

	records, err := readDocuments(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}
	docs, err := resolveDocuments(a.registry, records)
	if err != nil {
		return err
	}

	eng, err := a.Engine()
	if err != nil {
		return err
	}
	if client, ok := eng.(*backend.OpenSearchClient); ok {
		if err := client.CreateIndex(ctx, opts.recreate); err != nil {
			return err
		}
	}

	for i := 0; i < len(docs); i += indexBatchSize {
		end := min(i+indexBatchSize, len(docs))
		if err := eng.Index(ctx, docs[i:end]); err != nil {
			return exterrors.New(exterrors.ErrCodeIndexFailed, "failed to index documents", err).
				WithDetail("batch_start", fmt.Sprint(i))
		}
	}

	slog.Info("documents_indexed",
		slog.Int("count", len(docs)),
		slog.Duration("took", time.Since(start)))
	out.Successf("Indexed %d documents in %s", len(docs), time.Since(start).Round(time.Millisecond))
	return nil
}

func readDocuments(stdin io.Reader, path string) ([]documentRecord, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, exterrors.New(exterrors.ErrCodeFileNotFound, "document file not found", err).
					WithDetail("path", path)
			}
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var records []documentRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, exterrors.ValidationError("failed to parse documents", err).WithDetail("path", path)
	}
	return records, nil
}

func resolveDocuments(registry *indexed.Registry, records []documentRecord) ([]backend.Document, error) {
	docs := make([]backend.Document, 0, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return nil, exterrors.ValidationError(fmt.Sprintf("document %d has no id", i), nil)
		}
		m, err := registry.Get(rec.Model)
		if err != nil {
			return nil, err
		}
		docs = append(docs, backend.Document{ID: rec.ID, Model: m, Fields: rec.Fields})
	}
	return docs, nil
}
