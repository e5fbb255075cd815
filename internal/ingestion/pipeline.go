// Package ingestion implements the item ingestion pipeline. It reads
// schema.org items from JSONL feeds (local files or HTTP URLs), embeds each
// item, and upserts the results into the vector store.
// This pipeline is invoked by the `askweb ingest` CLI command.
package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/askweb/askweb-go/internal/retrieval"
)

// Source describes one item feed to be ingested.
type Source struct {
	// Location is the feed's path on disk or its HTTP(S) URL.
	Location string

	// Site is the site label assigned to every item in the feed. When empty,
	// the site is inferred from each item's own URL.
	Site string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the number of items embedded and upserted per round trip.
	// Defaults to 64 if zero.
	BatchSize int

	// HTTPTimeout is the timeout for each feed fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline orchestrates the read, parse, embed, upsert flow for a set of
// item feeds.
type Pipeline struct {
	// embedder converts item text into dense vector embeddings.
	embedder retrieval.Embedder

	// store persists the embedded items.
	store retrieval.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching remote feeds.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder retrieval.Embedder, store retrieval.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "askweb-go/1.0 (schema.org item ingestion)"
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest reads, parses, embeds, and stores all provided feeds.
// It processes feeds sequentially and returns the first error encountered.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	for _, src := range sources {
		progress(fmt.Sprintf("reading %s", src.Location))

		content, err := p.read(ctx, src.Location)
		if err != nil {
			return fmt.Errorf("ingestion: reading %s: %w", src.Location, err)
		}

		items, skipped := parseFeed(content, src.Site)
		if skipped > 0 {
			progress(fmt.Sprintf("skipped %d malformed lines in %s", skipped, src.Location))
		}
		if len(items) == 0 {
			progress(fmt.Sprintf("no items in %s", src.Location))
			continue
		}
		progress(fmt.Sprintf("parsed %d items from %s", len(items), src.Location))

		if err := p.upsertBatches(ctx, items); err != nil {
			return fmt.Errorf("ingestion: storing items from %s: %w", src.Location, err)
		}

		progress(fmt.Sprintf("ingested %d items from %s", len(items), src.Location))
	}

	return nil
}

// upsertBatches embeds and stores items in batches of cfg.BatchSize.
func (p *Pipeline) upsertBatches(ctx context.Context, items []retrieval.Candidate) error {
	for start := 0; start < len(items); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		texts := make([]string, len(batch))
		for i, item := range batch {
			texts[i] = embeddingText(item.Payload)
		}

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch: %w", err)
		}

		if err := p.store.Upsert(ctx, batch, embeddings); err != nil {
			return fmt.Errorf("upserting batch: %w", err)
		}
	}
	return nil
}

// parseFeed decodes a JSONL feed into candidates. Each line is either a bare
// schema.org JSON object or the two-column "url<TAB>json" form. Lines missing
// a usable URL are skipped and counted rather than failing the feed.
func parseFeed(content, site string) (items []retrieval.Candidate, skipped int) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var itemSite, canonical, payload string
		if url, rest, found := strings.Cut(line, "\t"); found && strings.HasPrefix(strings.TrimSpace(rest), "{") {
			canonical = strings.TrimSpace(url)
			payload = strings.TrimSpace(rest)
		} else {
			payload = line
			canonical = itemURL(payload)
		}
		if canonical == "" {
			skipped++
			continue
		}

		itemSite = site
		if itemSite == "" {
			itemSite = InferSite(canonical)
		}

		items = append(items, retrieval.Candidate{
			URL:     canonical,
			Payload: payload,
			Name:    itemName(payload),
			Site:    itemSite,
		})
	}

	return items, skipped
}

// read returns the raw feed content from a local path or an HTTP(S) URL.
func (p *Pipeline) read(ctx context.Context, location string) (string, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return p.fetch(ctx, location)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// fetch retrieves the raw content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "application/jsonl, application/json, text/plain")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	return string(body), nil
}
