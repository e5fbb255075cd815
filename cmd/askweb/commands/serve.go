package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/askweb/askweb-go/internal/answer"
	"github.com/askweb/askweb-go/internal/logging"
	"github.com/askweb/askweb-go/internal/server"
	"github.com/askweb/askweb-go/internal/store"
	"github.com/askweb/askweb-go/internal/tracing"
)

// NewServeCmd constructs the `askweb serve` command, which starts the HTTP
// server exposing the query pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AskWeb HTTP server",
		Long: `Start the AskWeb HTTP server on localhost.

The server exposes POST /api/ask (SSE streaming) and GET /api/ws (WebSocket)
for answering queries, plus health, readiness, and Prometheus metrics
endpoints.

Examples:
  askweb serve
  askweb serve --port 9090
  MODEL_PROVIDER=azure askweb serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing; opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			judge, err := buildJudge(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			retriever, vecStore, embedder, closeRetrieval, err := buildRetrieval(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeRetrieval()

			// Open conversation history store. ASKWEB_HISTORY_DB overrides the
			// default path (~/.askweb/history.db). Set to "disabled" to turn
			// history off.
			var historyStore *store.SQLiteStore
			dbPath := os.Getenv("ASKWEB_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via ASKWEB_HISTORY_DB=disabled")
			}

			orchestrator, err := answer.New(&answer.Config{
				Retriever: retriever,
				Judge:     judge,
				Prompts:   loadPrompts(log),
				Log:       log,
			})
			if err != nil {
				return fmt.Errorf("serve: initialising pipeline: %w", err)
			}

			srv, err := server.New(orchestrator, turnSourceOrNil(historyStore), &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(vecStore, embedder),
				APIKey:  os.Getenv("ASKWEB_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
