// Package fasttrack implements the speculative answer path: retrieval and
// ranking begin immediately on the raw query, in parallel with the
// pre-checks. If decontextualization later shows the raw query was the wrong
// one to ask, the whole path aborts and the regular path takes over.
package fasttrack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/askweb/askweb-go/internal/query"
	"github.com/askweb/askweb-go/internal/ranking"
	"github.com/askweb/askweb-go/internal/relcache"
	"github.com/askweb/askweb-go/internal/retrieval"
)

const (
	// defaultRetrievalLimit is how many candidates the fast track pulls.
	defaultRetrievalLimit = 50

	// defaultDecontextWait bounds how long the fast track waits for the
	// decontextualization verdict after retrieval. Timing out abandons the
	// fast track silently; the regular path still answers.
	defaultDecontextWait = 3 * time.Second

	// normalizeWorkers bounds concurrent candidate normalization.
	normalizeWorkers = 10
)

// Config carries the collaborators for a Controller. Retriever and Engine
// are required.
type Config struct {
	// Retriever fetches candidates for the raw query.
	Retriever retrieval.Retriever

	// Engine ranks the retrieved candidates. It must be configured in fast
	// mode so the abort signal is honored.
	Engine *ranking.Engine

	// Cache memoizes retrieval results per (query, site). When nil a fresh
	// cache is created.
	Cache *relcache.Cache

	// RetrievalLimit overrides how many candidates to pull. Defaults to 50.
	RetrievalLimit int

	// DecontextWait overrides the post-retrieval verdict wait. Defaults
	// to 3s.
	DecontextWait time.Duration

	// Log receives structured progress records. When nil the default
	// logger is used.
	Log *slog.Logger
}

// Controller drives the fast track for one query at a time. One Controller
// serves many queries.
type Controller struct {
	retriever     retrieval.Retriever
	engine        *ranking.Engine
	cache         *relcache.Cache
	limit         int
	decontextWait time.Duration
	log           *slog.Logger
}

// New constructs a Controller from the given config.
func New(cfg *Config) (*Controller, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("fasttrack: retriever must not be nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("fasttrack: engine must not be nil")
	}
	cache := cfg.Cache
	if cache == nil {
		cache = relcache.New()
	}
	limit := cfg.RetrievalLimit
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}
	wait := cfg.DecontextWait
	if wait <= 0 {
		wait = defaultDecontextWait
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		retriever:     cfg.Retriever,
		engine:        cfg.Engine,
		cache:         cache,
		limit:         limit,
		decontextWait: wait,
		log:           log,
	}, nil
}

// Eligible reports whether the fast track may run for q. Queries anchored to
// an external context URL need that context fetched first, and follow-up
// turns may need rewriting before retrieval; only the regular path handles
// either.
func (c *Controller) Eligible(q *query.Context) bool {
	return q != nil && q.Query != "" && q.ContextURL == "" && len(q.PrevQueries) == 0
}

// Run executes the fast track: retrieve on the raw query, wait briefly for
// the decontextualization verdict, then rank and stream. Three quiet exits
// are possible, all returning (nil, nil): the query is not eligible, the
// verdict does not arrive in time, or decontextualization was required (the
// abort signal trips so nothing half-sent escapes). Retrieval errors are
// returned; the caller decides whether the regular path retries.
func (c *Controller) Run(ctx context.Context, q *query.Context, sig *query.Signals) ([]query.Result, error) {
	if !c.Eligible(q) {
		c.log.Debug("fasttrack: not eligible")
		return nil, nil
	}

	metrics := query.NewRunMetrics()
	defer func() {
		metrics.Stop()
		metrics.Log(c.log, "fasttrack")
	}()

	sig.RetrievalStarted.Set()

	candidates, err := c.retrieve(ctx, q, metrics)
	if err != nil {
		return nil, fmt.Errorf("fasttrack: retrieval failed: %w", err)
	}
	candidates = normalize(candidates)
	metrics.ItemsProcessed.Add(int64(len(candidates)))
	if len(candidates) == 0 {
		c.log.Debug("fasttrack: no candidates", slog.String("query_id", q.QueryID))
		return nil, nil
	}

	// Retrieval ran on the raw query. Before spending model calls on its
	// results, give the decontextualization verdict a short window to land.
	required, ok := sig.Decontextualization.Wait(ctx, c.decontextWait)
	if !ok {
		c.log.Debug("fasttrack: decontextualization verdict not in time, abandoning",
			slog.String("query_id", q.QueryID))
		return nil, nil
	}
	if required {
		sig.AbortFastTrack.Set()
		c.log.Info("fasttrack: query needed decontextualization, aborting",
			slog.String("query_id", q.QueryID))
		return nil, nil
	}

	results, err := c.engine.Rank(ctx, q, sig, candidates)
	if err != nil {
		return nil, fmt.Errorf("fasttrack: ranking failed: %w", err)
	}
	return results, nil
}

// retrieve returns candidates for the raw query, memoized per (query, site)
// so repeated queries inside the cache TTL skip the vector store.
func (c *Controller) retrieve(ctx context.Context, q *query.Context, metrics *query.RunMetrics) ([]retrieval.Candidate, error) {
	key := relcache.Key(q.Query, q.Site)
	if v, ok := c.cache.Get(key); ok {
		if cached, ok := v.([]retrieval.Candidate); ok {
			metrics.CacheHits.Add(1)
			return cached, nil
		}
	}
	metrics.CacheMisses.Add(1)

	candidates, err := c.retriever.Search(ctx, q.Query, q.Site, c.limit)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, candidates)
	return candidates, nil
}

// normalize fills missing display names from each candidate's schema.org
// payload and drops candidates without a URL. Payload parsing runs on a
// bounded pool since payloads can be large.
func normalize(candidates []retrieval.Candidate) []retrieval.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	out := make([]retrieval.Candidate, len(candidates))
	pool, err := ants.NewPool(normalizeWorkers)
	if err != nil {
		// Pool creation only fails on invalid size; fall back to inline.
		for i, c := range candidates {
			out[i] = normalizeOne(c)
		}
		return compact(out)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, c := range candidates {
		i, c := i, c
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			out[i] = normalizeOne(c)
		}); err != nil {
			out[i] = normalizeOne(c)
			wg.Done()
		}
	}
	wg.Wait()

	return compact(out)
}

// normalizeOne backfills the candidate name from its payload.
func normalizeOne(c retrieval.Candidate) retrieval.Candidate {
	if c.Name != "" || c.Payload == "" {
		return c
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(c.Payload), &obj); err != nil {
		return c
	}
	if name, ok := obj["name"].(string); ok {
		c.Name = name
	}
	return c
}

// compact removes candidates that carry no URL.
func compact(candidates []retrieval.Candidate) []retrieval.Candidate {
	kept := candidates[:0]
	for _, c := range candidates {
		if c.URL != "" {
			kept = append(kept, c)
		}
	}
	return kept
}
