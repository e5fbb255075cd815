// Package prechecks runs the correctness checks that must finish before any
// result reaches the client. Today that is decontextualization: deciding
// whether the query only makes sense in the light of prior turns, and if so
// rewriting it into a self-contained one.
package prechecks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/askweb/askweb-go/internal/prompts"
	"github.com/askweb/askweb-go/internal/provider"
	"github.com/askweb/askweb-go/internal/query"
)

// DecontextualizePromptName is the prompt-library entry consulted before
// falling back to the built-in template.
const DecontextualizePromptName = "DecontextualizePrompt"

// defaultDecontextualizeTemplate is the built-in decontextualization prompt.
const defaultDecontextualizeTemplate = `The user is querying the site {site.itemType}.
Does the user's query depend on the previous queries in this conversation to be understood?
If so, rewrite the query so that it is fully self-contained.
The user's query is: {request.query}. Previous queries were: {request.prevQueries}`

// defaultDecontextualizeSchema is the structured answer the model is
// instructed to return for the built-in prompt.
var defaultDecontextualizeSchema = prompts.Schema{
	"requires_decontextualization": "True or False",
	"decontextualized_query":       "the rewritten, self-contained query",
}

// defaultJudgeTimeout bounds the decontextualization model call. The high
// tier is slower than scoring, so this is looser than the scoring timeout.
const defaultJudgeTimeout = 12 * time.Second

// Config carries the collaborators for a Checker. Judge is required.
type Config struct {
	// Judge answers the decontextualization question with the high tier.
	Judge provider.Judge

	// Prompts resolves per-site prompt overrides. When nil the built-in
	// prompt is always used.
	Prompts prompts.Resolver

	// JudgeTimeout bounds the model call. Defaults to 12s.
	JudgeTimeout time.Duration

	// Log receives structured progress records. When nil the default
	// logger is used.
	Log *slog.Logger
}

// Checker runs the pre-checks for one query at a time. One Checker serves
// many queries.
type Checker struct {
	judge   provider.Judge
	prompts prompts.Resolver
	timeout time.Duration
	log     *slog.Logger
}

// New constructs a Checker from the given config.
func New(cfg *Config) (*Checker, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("prechecks: judge must not be nil")
	}
	timeout := cfg.JudgeTimeout
	if timeout <= 0 {
		timeout = defaultJudgeTimeout
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Checker{judge: cfg.Judge, prompts: cfg.Prompts, timeout: timeout, log: log}, nil
}

// Run performs the pre-checks for q, resolving the decontextualization
// signal and finally tripping the pre-checks-done latch. The done latch
// trips even when the model call fails, so result sends can never deadlock
// on a broken pre-check.
//
// When decontextualization is required, q.DecontextualizedQuery is rewritten
// in place before the signal resolves, so anything woken by the signal sees
// the rewritten query.
func (c *Checker) Run(ctx context.Context, q *query.Context, sig *query.Signals) {
	defer sig.PreChecksDone.Set()

	// First turn of a conversation: nothing to decontextualize against.
	if len(q.PrevQueries) == 0 {
		sig.Decontextualization.Resolve(false)
		return
	}

	template, schema := c.resolvePrompt(q)
	prompt := prompts.Fill(template, q, "")

	judgment := c.judge.Judge(ctx, prompt, schema, provider.TierHigh, c.timeout)
	if judgment.Empty() {
		// Fail open: a broken check must not block the answer.
		c.log.Warn("prechecks: decontextualization check failed, proceeding with original query",
			slog.String("query_id", q.QueryID))
		sig.Decontextualization.Resolve(false)
		return
	}

	required := judgment.Bool("requires_decontextualization")
	if required {
		if rewritten := judgment.String("decontextualized_query"); rewritten != "" {
			q.DecontextualizedQuery = rewritten
			c.log.Info("prechecks: query decontextualized",
				slog.String("query_id", q.QueryID),
				slog.String("rewritten", rewritten))
		}
	}
	sig.Decontextualization.Resolve(required)
}

func (c *Checker) resolvePrompt(q *query.Context) (string, prompts.Schema) {
	if c.prompts != nil {
		if template, schema, ok := c.prompts.Resolve(q.Site, q.ItemType, DecontextualizePromptName); ok {
			return template, schema
		}
	}
	return defaultDecontextualizeTemplate, defaultDecontextualizeSchema
}
