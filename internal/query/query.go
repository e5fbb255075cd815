// Package query defines the per-query execution state shared by the
// fast-track and ranking controllers: the immutable query context, the set
// of cross-task coordination signals, the outbound transport contract, and
// the per-run metrics snapshot.
//
// Every query execution owns its own Context and Signals; nothing in this
// package is process-global.
package query

// Context carries the caller's question and its surrounding session state.
// It is created by the session layer before a pipeline run and is read-only
// for the controllers.
type Context struct {
	// QueryID is the correlation identifier echoed back in every outbound
	// message for this query.
	QueryID string

	// Query is the user's natural-language question.
	Query string

	// DecontextualizedQuery is the rewritten, self-contained form of Query
	// produced by the pre-check pipeline. Empty until decontextualization
	// has run, and empty forever when it was not required.
	DecontextualizedQuery string

	// Site is the target site scope ("all" asks every indexed site).
	Site string

	// ItemType is the expected schema.org item type for this site
	// (e.g. "Recipe", "Podcast Episode").
	ItemType string

	// PrevQueries holds the user's prior turns in this conversation,
	// oldest first.
	PrevQueries []string

	// ContextURL is the "continuing conversation" URL, set when the query
	// refers to an item the user is already looking at.
	ContextURL string
}

// EffectiveQuery returns the decontextualized query when one exists,
// otherwise the raw query text.
func (c *Context) EffectiveQuery() string {
	if c.DecontextualizedQuery != "" {
		return c.DecontextualizedQuery
	}
	return c.Query
}
