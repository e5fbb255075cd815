// Package ranking scores retrieved candidates against the user's query with
// an LLM judge and streams confident results to the client as soon as they
// are known. Scoring runs in bounded parallel waves; judgments are cached so
// repeated queries skip the model entirely.
package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/panjf2000/ants/v2"

	"github.com/askweb/askweb-go/internal/prompts"
	"github.com/askweb/askweb-go/internal/provider"
	"github.com/askweb/askweb-go/internal/query"
	"github.com/askweb/askweb-go/internal/relcache"
	"github.com/askweb/askweb-go/internal/retrieval"
	"github.com/askweb/askweb-go/internal/trim"
)

const (
	// EarlySendThreshold is the score above which a single result is
	// streamed to the client before the full batch finishes.
	EarlySendThreshold = 59

	// FinalScoreCutoff is the minimum score (exclusive) a result needs to
	// appear in the final batch.
	FinalScoreCutoff = 51

	// TargetResultCount caps how many results one query returns.
	TargetResultCount = 10

	// MaxConcurrentJudgments bounds how many model calls run at once.
	MaxConcurrentJudgments = 5

	// defaultJudgeTimeout bounds one scoring call to the model.
	defaultJudgeTimeout = 8 * time.Second
)

// Mode selects the engine's coordination behavior.
type Mode int

const (
	// ModeFast is the speculative path: it honors the abort signal and
	// records success so the regular path can skip duplicate work.
	ModeFast Mode = iota

	// ModeRegular is the post-precheck path: it never aborts on the fast
	// track's signals.
	ModeRegular
)

// Config carries the collaborators for an Engine. Judge and Transport are
// required; the rest default to sensible values.
type Config struct {
	// Judge scores one item description against the query.
	Judge provider.Judge

	// Transport delivers result batches to the client.
	Transport query.Transport

	// Cache memoizes judgments. When nil a fresh cache is created.
	Cache *relcache.Cache

	// Prompts resolves per-site scoring prompt overrides. When nil the
	// built-in prompt is always used.
	Prompts prompts.Resolver

	// Mode selects fast-track or regular coordination. Defaults to ModeFast.
	Mode Mode

	// JudgeTimeout bounds one scoring call. Defaults to 8s.
	JudgeTimeout time.Duration

	// Log receives structured progress and failure records. When nil the
	// default logger is used.
	Log *slog.Logger
}

// Engine scores candidates and streams results. One Engine serves many
// queries; all per-query state lives in the run started by Rank.
type Engine struct {
	judge        provider.Judge
	transport    query.Transport
	cache        *relcache.Cache
	prompts      prompts.Resolver
	mode         Mode
	judgeTimeout time.Duration
	log          *slog.Logger
}

// New constructs an Engine from the given config.
func New(cfg *Config) (*Engine, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("ranking: judge must not be nil")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("ranking: transport must not be nil")
	}
	cache := cfg.Cache
	if cache == nil {
		cache = relcache.New()
	}
	timeout := cfg.JudgeTimeout
	if timeout <= 0 {
		timeout = defaultJudgeTimeout
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		judge:        cfg.Judge,
		transport:    cfg.Transport,
		cache:        cache,
		prompts:      cfg.Prompts,
		mode:         cfg.Mode,
		judgeTimeout: timeout,
		log:          log,
	}, nil
}

// run is the per-query scoring state. It is created by Rank and discarded
// when Rank returns.
type run struct {
	e   *Engine
	q   *query.Context
	sig *query.Signals

	metrics *query.RunMetrics

	// mu guards ranked, sent and numSent.
	mu sync.Mutex
	// ranked accumulates every usable scored result.
	ranked []query.Result
	// sent records results already streamed, for the duplicate-suppression
	// heuristic and the final-batch exclusion.
	sent []query.Result
	// numSent counts results streamed so far.
	numSent int
}

// Rank scores the candidates, streams high-confidence results early, and
// sends the final filtered batch once pre-checks allow it. It returns the
// final batch contents (early-sent results included) so callers can record
// the answer.
//
// Rank stops scoring when the connection is lost and returns without a
// final send when the abort signal trips in fast mode. It never blocks the
// final send on a timeout: pre-checks are awaited for as long as ctx lives.
func (e *Engine) Rank(ctx context.Context, q *query.Context, sig *query.Signals, candidates []retrieval.Candidate) ([]query.Result, error) {
	if q == nil || sig == nil {
		return nil, fmt.Errorf("ranking: query context and signals must not be nil")
	}

	r := &run{e: e, q: q, sig: sig, metrics: query.NewRunMetrics()}
	defer func() {
		r.metrics.Stop()
		r.metrics.Log(e.log, "ranking")
	}()

	r.sendAskingSites(ctx, candidates)

	if err := r.scoreAll(ctx, candidates); err != nil {
		return nil, err
	}

	return r.finalSend(ctx)
}

// scoreAll processes candidates in waves on a bounded worker pool. Each wave
// holds up to twice the pool size so a slow judgment never starves the pool.
func (r *run) scoreAll(ctx context.Context, candidates []retrieval.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	pool, err := ants.NewPool(MaxConcurrentJudgments)
	if err != nil {
		return fmt.Errorf("ranking: creating worker pool: %w", err)
	}
	defer pool.Release()

	waveSize := 2 * MaxConcurrentJudgments
	for start := 0; start < len(candidates); start += waveSize {
		if !r.sig.ConnectionAlive() {
			r.e.log.Debug("ranking: connection lost, stopping scoring",
				slog.String("query_id", r.q.QueryID))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + waveSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var wg sync.WaitGroup
		for _, c := range candidates[start:end] {
			c := c
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				r.scoreItem(ctx, c)
			}); err != nil {
				wg.Done()
				return fmt.Errorf("ranking: submitting scoring task: %w", err)
			}
		}
		wg.Wait()
	}
	return nil
}

// scoreItem judges one candidate, caches the judgment, records the result,
// and streams it immediately when the score clears the early-send threshold.
// Failures are logged and the item dropped; one bad item never fails the run.
func (r *run) scoreItem(ctx context.Context, c retrieval.Candidate) {
	if !r.sig.ConnectionAlive() {
		return
	}
	if r.e.mode == ModeFast && r.sig.AbortFastTrack.IsSet() {
		return
	}

	template, schema := r.resolvePrompt()
	description := trim.Payload(c.Payload)
	prompt := prompts.Fill(template, r.q, description)

	judgment := r.judgeWithCache(ctx, prompt, description, schema)
	if judgment.Empty() {
		r.e.log.Debug("ranking: empty judgment, dropping item",
			slog.String("url", c.URL),
			slog.String("query_id", r.q.QueryID))
		return
	}

	result := query.Result{
		URL:          c.URL,
		Name:         c.Name,
		Site:         c.Site,
		SiteURL:      c.Site,
		Score:        judgment.Score(),
		Description:  judgment.Description(),
		SchemaObject: schemaObject(c.Payload),
	}

	r.metrics.ItemsProcessed.Add(1)

	r.mu.Lock()
	r.ranked = append(r.ranked, result)
	r.pruneLocked()
	r.mu.Unlock()

	if result.Score > EarlySendThreshold {
		r.sendAnswers(ctx, []query.Result{result}, false)
	}
}

// resolvePrompt returns the scoring template and answer schema for this
// query's site and item type, falling back to the built-ins.
func (r *run) resolvePrompt() (string, prompts.Schema) {
	if r.e.prompts != nil {
		if template, schema, ok := r.e.prompts.Resolve(r.q.Site, r.q.ItemType, RankingPromptName); ok {
			return template, schema
		}
	}
	return defaultPromptTemplate, defaultPromptSchema
}

// judgeWithCache returns the cached judgment for this prompt and item when
// one exists, otherwise calls the model. Only judgments that actually carry
// a score are cached; a soft failure is retried on the next occurrence.
func (r *run) judgeWithCache(ctx context.Context, prompt, description string, schema prompts.Schema) provider.Judgment {
	key := relcache.Key(prompt, description)
	if v, ok := r.e.cache.Get(key); ok {
		if j, ok := v.(provider.Judgment); ok {
			r.metrics.CacheHits.Add(1)
			return j
		}
	}
	r.metrics.CacheMisses.Add(1)

	r.metrics.ModelCalls.Add(1)
	judgment := r.e.judge.Judge(ctx, prompt, schema, provider.TierLow, r.e.judgeTimeout)
	if _, ok := judgment["score"]; ok {
		r.e.cache.Put(key, judgment)
	}
	return judgment
}

// pruneLocked keeps the working set bounded: once it grows past twice the
// target count, only the current top targets are kept. Caller holds mu.
func (r *run) pruneLocked() {
	if len(r.ranked) <= 2*TargetResultCount {
		return
	}
	sort.SliceStable(r.ranked, func(i, j int) bool { return r.ranked[i].Score > r.ranked[j].Score })
	r.ranked = r.ranked[:TargetResultCount]
}

// finalSend waits for pre-checks, filters and orders the accumulated
// results, and sends whatever has not already been streamed.
func (r *run) finalSend(ctx context.Context) ([]query.Result, error) {
	// The final batch must never beat the pre-checks. There is no timeout
	// here: if the pre-checks hang, we wait until the request context dies.
	select {
	case <-r.sig.PreChecksDone.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if r.e.mode == ModeFast && r.sig.AbortFastTrack.IsSet() {
		r.e.log.Debug("ranking: aborted before final send",
			slog.String("query_id", r.q.QueryID))
		return nil, nil
	}

	r.mu.Lock()
	final := make([]query.Result, 0, len(r.ranked))
	for _, res := range r.ranked {
		if res.Score > FinalScoreCutoff {
			final = append(final, res)
		}
	}
	sort.SliceStable(final, func(i, j int) bool { return final[i].Score > final[j].Score })
	if len(final) > TargetResultCount {
		final = final[:TargetResultCount]
	}

	sentURLs := make(map[string]bool, len(r.sent))
	for _, s := range r.sent {
		sentURLs[s.URL] = true
	}
	remaining := TargetResultCount - r.numSent
	r.mu.Unlock()

	var unsent []query.Result
	for _, res := range final {
		if !sentURLs[res.URL] {
			unsent = append(unsent, res)
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	if len(unsent) > remaining {
		unsent = unsent[:remaining]
	}

	if len(unsent) > 0 {
		r.sendAnswers(ctx, unsent, true)
	}
	return final, nil
}

// sendAnswers streams a batch of results. Unless force is set, each result
// must pass the duplicate-suppression heuristic. A send error marks the
// connection lost and is never retried.
func (r *run) sendAnswers(ctx context.Context, items []query.Result, force bool) {
	if len(items) == 0 || !r.sig.ConnectionAlive() {
		return
	}
	if r.e.mode == ModeFast && r.sig.AbortFastTrack.IsSet() {
		return
	}

	toSend := items
	if !force {
		filtered := make([]query.Result, 0, len(items))
		r.mu.Lock()
		for _, it := range items {
			if r.shouldSendLocked(it) {
				filtered = append(filtered, it)
			}
		}
		r.mu.Unlock()
		toSend = filtered
	}
	if len(toSend) == 0 {
		return
	}

	// Never send before the pre-checks finish, no matter how confident the
	// score is.
	select {
	case <-r.sig.PreChecksDone.Done():
	case <-ctx.Done():
		return
	}
	if r.e.mode == ModeFast && r.sig.AbortFastTrack.IsSet() {
		return
	}

	batch := query.ResultBatch{
		MessageType: query.MessageTypeResultBatch,
		Results:     toSend,
		QueryID:     r.q.QueryID,
	}
	if err := r.e.transport.SendMessage(ctx, batch); err != nil {
		r.e.log.Warn("ranking: send failed, marking connection lost",
			slog.String("query_id", r.q.QueryID),
			slog.String("error", err.Error()))
		r.sig.ConnectionLost()
		return
	}

	r.mu.Lock()
	r.sent = append(r.sent, toSend...)
	r.numSent += len(toSend)
	r.mu.Unlock()

	if r.e.mode == ModeFast {
		r.sig.MarkFastTrackWorked()
	}
}

// shouldSendLocked decides whether one result is worth streaming now: the
// first few results always go out, after that only results scoring above
// something already sent. Caller holds mu.
func (r *run) shouldSendLocked(item query.Result) bool {
	if r.numSent < TargetResultCount-MaxConcurrentJudgments {
		return true
	}
	for _, s := range r.sent {
		if s.Score < item.Score {
			return true
		}
	}
	return false
}

// sendAskingSites tells the client which sites are being consulted. Only
// multi-site queries get the advisory; single-site clients already know.
func (r *run) sendAskingSites(ctx context.Context, candidates []retrieval.Candidate) {
	if r.q.Site != retrieval.SiteAll && r.q.Site != "nlws" {
		return
	}
	if len(candidates) == 0 || !r.sig.ConnectionAlive() {
		return
	}

	msg := query.AskingSites{
		MessageType: query.MessageTypeAskingSites,
		Message:     "Asking " + strings.Join(topSites(candidates, 3), ", "),
	}
	if err := r.e.transport.SendMessage(ctx, msg); err != nil {
		r.e.log.Warn("ranking: asking-sites send failed, marking connection lost",
			slog.String("query_id", r.q.QueryID),
			slog.String("error", err.Error()))
		r.sig.ConnectionLost()
	}
}

// topSites returns the most frequent candidate sites, prettified, most
// frequent first. Ties break alphabetically for stable output.
func topSites(candidates []retrieval.Candidate, n int) []string {
	counts := make(map[string]int)
	for _, c := range candidates {
		if c.Site != "" {
			counts[c.Site]++
		}
	}
	sites := make([]string, 0, len(counts))
	for s := range counts {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool {
		if counts[sites[i]] != counts[sites[j]] {
			return counts[sites[i]] > counts[sites[j]]
		}
		return sites[i] < sites[j]
	})
	if len(sites) > n {
		sites = sites[:n]
	}
	for i, s := range sites {
		sites[i] = prettySiteName(s)
	}
	return sites
}

// prettySiteName turns a site identifier into a display name: underscores
// become spaces and each word is capitalized ("serious_eats" reads
// "Serious Eats").
func prettySiteName(site string) string {
	words := strings.Split(strings.ReplaceAll(site, "_", " "), " ")
	for i, w := range words {
		runes := []rune(w)
		if len(runes) == 0 {
			continue
		}
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// schemaObject returns the candidate payload as raw JSON, wrapping non-JSON
// payloads as a JSON string so the batch always marshals.
func schemaObject(payload string) json.RawMessage {
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload)
	}
	quoted, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(quoted)
}
