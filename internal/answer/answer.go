// Package answer orchestrates one query end to end: the pre-checks and the
// speculative fast track start together, and if the fast track cannot
// deliver (wrong raw query, verdict too slow, not eligible) the regular
// path answers with the decontextualized query instead. Either way the
// client sees at most one stream of results.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/askweb/askweb-go/internal/fasttrack"
	"github.com/askweb/askweb-go/internal/prechecks"
	"github.com/askweb/askweb-go/internal/prompts"
	"github.com/askweb/askweb-go/internal/provider"
	"github.com/askweb/askweb-go/internal/query"
	"github.com/askweb/askweb-go/internal/ranking"
	"github.com/askweb/askweb-go/internal/relcache"
	"github.com/askweb/askweb-go/internal/retrieval"
)

// Config carries the long-lived collaborators for an Orchestrator.
// Retriever and Judge are required.
type Config struct {
	// Retriever fetches candidates from the vector store.
	Retriever retrieval.Retriever

	// Judge scores candidates and answers the pre-check questions.
	Judge provider.Judge

	// Cache memoizes judgments and retrieval results across queries. When
	// nil a fresh cache is created.
	Cache *relcache.Cache

	// Prompts resolves per-site prompt overrides. Optional.
	Prompts prompts.Resolver

	// RetrievalLimit overrides how many candidates each path pulls.
	RetrievalLimit int

	// DecontextWait overrides the fast track's verdict wait.
	DecontextWait time.Duration

	// Log receives structured progress records. When nil the default
	// logger is used.
	Log *slog.Logger
}

// Orchestrator answers queries. One Orchestrator serves many concurrent
// queries; all per-query state (signals, engines) is created per call.
type Orchestrator struct {
	retriever retrieval.Retriever
	judge     provider.Judge
	cache     *relcache.Cache
	prompts   prompts.Resolver
	checker   *prechecks.Checker
	limit     int
	wait      time.Duration
	log       *slog.Logger
}

// New constructs an Orchestrator from the given config.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("answer: retriever must not be nil")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("answer: judge must not be nil")
	}
	cache := cfg.Cache
	if cache == nil {
		cache = relcache.New()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	checker, err := prechecks.New(&prechecks.Config{
		Judge:   cfg.Judge,
		Prompts: cfg.Prompts,
		Log:     log,
	})
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		retriever: cfg.Retriever,
		judge:     cfg.Judge,
		cache:     cache,
		prompts:   cfg.Prompts,
		checker:   checker,
		limit:     cfg.RetrievalLimit,
		wait:      cfg.DecontextWait,
		log:       log,
	}, nil
}

// Answer runs the full pipeline for q, streaming results over transport and
// returning the final result list. A missing query ID is assigned. The
// fast track and the pre-checks run concurrently; the regular path only
// spends model calls when the fast track did not deliver.
func (o *Orchestrator) Answer(ctx context.Context, q *query.Context, transport query.Transport) ([]query.Result, error) {
	if q == nil {
		return nil, fmt.Errorf("answer: query context must not be nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("answer: transport must not be nil")
	}
	if q.QueryID == "" {
		q.QueryID = uuid.NewString()
	}

	sig := query.NewSignals()

	go o.checker.Run(ctx, q, sig)

	type ftOutcome struct {
		results []query.Result
		err     error
	}
	ftDone := make(chan ftOutcome, 1)
	go func() {
		results, err := o.runFastTrack(ctx, q, sig, transport)
		ftDone <- ftOutcome{results: results, err: err}
	}()

	var out ftOutcome
	select {
	case out = <-ftDone:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if out.err != nil {
		// The fast track is best-effort: log and let the regular path
		// answer, unless the client is already gone.
		o.log.Warn("answer: fast track failed, falling back",
			slog.String("query_id", q.QueryID),
			slog.String("error", out.err.Error()))
	}
	if sig.FastTrackWorked() {
		sig.MarkQueryDone()
		return out.results, nil
	}
	if !sig.ConnectionAlive() {
		o.log.Info("answer: client gone, abandoning query",
			slog.String("query_id", q.QueryID))
		return nil, nil
	}

	results, err := o.runRegular(ctx, q, sig, transport)
	if err != nil {
		return nil, err
	}
	sig.MarkQueryDone()
	return results, nil
}

// runFastTrack builds the per-query fast-mode engine and controller and
// runs the speculative path.
func (o *Orchestrator) runFastTrack(ctx context.Context, q *query.Context, sig *query.Signals, transport query.Transport) ([]query.Result, error) {
	engine, err := ranking.New(&ranking.Config{
		Judge:     o.judge,
		Transport: transport,
		Cache:     o.cache,
		Prompts:   o.prompts,
		Mode:      ranking.ModeFast,
		Log:       o.log,
	})
	if err != nil {
		return nil, err
	}
	controller, err := fasttrack.New(&fasttrack.Config{
		Retriever:      o.retriever,
		Engine:         engine,
		Cache:          o.cache,
		RetrievalLimit: o.limit,
		DecontextWait:  o.wait,
		Log:            o.log,
	})
	if err != nil {
		return nil, err
	}
	return controller.Run(ctx, q, sig)
}

// runRegular answers with the decontextualized query after the pre-checks
// finish. Retrieval is memoized per (effective query, site) like the fast
// path, so an aborted fast track on a repeated query still skips the store.
func (o *Orchestrator) runRegular(ctx context.Context, q *query.Context, sig *query.Signals, transport query.Transport) ([]query.Result, error) {
	select {
	case <-sig.PreChecksDone.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	effective := q.EffectiveQuery()
	key := relcache.Key(effective, q.Site)
	var candidates []retrieval.Candidate
	if v, ok := o.cache.Get(key); ok {
		if cached, ok := v.([]retrieval.Candidate); ok {
			candidates = cached
		}
	}
	if candidates == nil {
		var err error
		candidates, err = o.retriever.Search(ctx, effective, q.Site, o.limit)
		if err != nil {
			return nil, fmt.Errorf("answer: retrieval failed: %w", err)
		}
		o.cache.Put(key, candidates)
	}

	engine, err := ranking.New(&ranking.Config{
		Judge:     o.judge,
		Transport: transport,
		Cache:     o.cache,
		Prompts:   o.prompts,
		Mode:      ranking.ModeRegular,
		Log:       o.log,
	})
	if err != nil {
		return nil, err
	}
	return engine.Rank(ctx, q, sig, candidates)
}
