package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/askweb/askweb-go/internal/ingestion"
	"github.com/askweb/askweb-go/internal/logging"
)

// NewIngestCmd constructs the `askweb ingest` command, which loads schema.org
// item feeds into the vector store.
func NewIngestCmd() *cobra.Command {
	var site string
	var feeds []string
	var replace bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest schema.org item feeds into the vector store",
		Long: `Read JSONL item feeds and index them into the vector store.

Each feed line is one schema.org JSON object, or the two-column form
"url<TAB>json". Items are embedded and upserted in batches; re-ingesting a
feed replaces items by URL.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: askweb-items)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_MODEL      Embedding model or deployment name

The --site flag labels every item in the feed; when omitted, the site is
inferred from each item's own URL. --replace drops the site's existing items
before ingesting.

Examples:
  askweb ingest --feed ./feeds/seriouseats.jsonl --site seriouseats
  askweb ingest --feed https://example.com/items.jsonl
  askweb ingest --replace --site npr --feed ./feeds/npr.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			if len(feeds) == 0 {
				return fmt.Errorf("ingest: at least one --feed is required")
			}
			if replace && site == "" {
				return fmt.Errorf("ingest: --replace requires --site")
			}

			_, vecStore, embedder, closeRetrieval, err := buildRetrieval(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeRetrieval()

			if replace {
				if err := vecStore.DeleteBySite(ctx, site); err != nil {
					return fmt.Errorf("ingest: clearing site %q: %w", site, err)
				}
				log.Info("cleared existing items", slog.String("site", site))
			}

			pipeline, err := ingestion.NewPipeline(embedder, vecStore, nil)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			sources := make([]ingestion.Source, 0, len(feeds))
			for _, f := range feeds {
				sources = append(sources, ingestion.Source{Location: f, Site: site})
			}

			log.Info("starting ingestion", slog.Int("feeds", len(sources)))

			if err := pipeline.Ingest(ctx, sources, func(msg string) {
				log.Info(msg)
			}); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("feeds", len(sources)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&site, "site", "s", "", "Site label for every item in the feed (default: inferred per item)")
	cmd.Flags().StringArrayVarP(&feeds, "feed", "f", nil, "Feed path or URL to ingest (repeatable)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Delete the site's existing items before ingesting")

	return cmd
}
