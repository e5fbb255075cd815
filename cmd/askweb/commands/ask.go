package commands

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/askweb/askweb-go/internal/answer"
	"github.com/askweb/askweb-go/internal/logging"
	"github.com/askweb/askweb-go/internal/query"
)

// NewAskCmd constructs the `askweb ask` command, which answers a single
// query and streams results to stdout as they are judged.
func NewAskCmd() *cobra.Command {
	var site string
	var itemType string
	var prevQueries []string

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer one query from the command line",
		Long: `Answer a natural language query against the indexed sites.

Results print as soon as they pass the relevance bar, in the same streaming
order an API client would see them. Use --prev to carry conversational
context from earlier turns.

Examples:
  askweb ask "spicy crunchy snacks"
  askweb ask --site seriouseats "weeknight pasta dishes"
  askweb ask --prev "vegetarian lasagna" "what about a vegan version?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			judge, err := buildJudge(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			retriever, _, _, closeRetrieval, err := buildRetrieval(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeRetrieval()

			orchestrator, err := answer.New(&answer.Config{
				Retriever: retriever,
				Judge:     judge,
				Prompts:   loadPrompts(log),
				Log:       log,
			})
			if err != nil {
				return fmt.Errorf("ask: initialising pipeline: %w", err)
			}

			q := &query.Context{
				Query:       args[0],
				Site:        site,
				ItemType:    itemType,
				PrevQueries: prevQueries,
			}
			if q.Site == "" {
				q.Site = "all"
			}

			transport := &stdoutTransport{}
			results, err := orchestrator.Answer(ctx, q, transport)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "no relevant results")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&site, "site", "s", "", "Site to search (default: all)")
	cmd.Flags().StringVarP(&itemType, "item-type", "t", "", "Item type hint for prompt selection (e.g. Recipe)")
	cmd.Flags().StringArrayVar(&prevQueries, "prev", nil, "Previous query in this conversation (repeatable)")

	return cmd
}

// stdoutTransport prints pipeline messages as plain text, one result per
// line, in the order they stream.
type stdoutTransport struct {
	// mu serializes writes; early emissions arrive from scoring goroutines.
	mu sync.Mutex
}

// SendMessage implements query.Transport against stdout.
func (t *stdoutTransport) SendMessage(_ context.Context, msg any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch m := msg.(type) {
	case query.ResultBatch:
		for _, r := range m.Results {
			fmt.Printf("[%3d] %s\n      %s\n      %s\n", r.Score, r.Name, r.URL, r.Description)
		}
	case query.AskingSites:
		fmt.Println(m.Message)
	default:
		fmt.Printf("%v\n", m)
	}
	return nil
}
