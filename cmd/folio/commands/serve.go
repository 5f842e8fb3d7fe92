package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/folio-go/internal/config"
	"github.com/54b3r/folio-go/internal/logging"
	"github.com/54b3r/folio-go/internal/server"
	"github.com/54b3r/folio-go/internal/store"
)

// NewServeCmd constructs the `folio serve` command, which starts the HTTP
// chat API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var noWarmup bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the folio HTTP chat API",
		Long: `Start the folio HTTP server.

The server exposes POST /api/chat, GET /api/suggestions, GET /health,
GET /api/ready, and GET /metrics. The knowledge index is loaded from
RAG_INDEX_PATH in the background at startup, or built from RAG_DOCS_PATH
when no usable snapshot exists.

Examples:
  folio serve
  folio serve --port 9090
  MODEL_PROVIDER=ollama EMBEDDING_PROVIDER=ollama folio serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			settings, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if cmd.Flags().Changed("host") {
				settings.Host = host
			}
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}

			flush := setupTracing(log)
			defer flush()

			a, err := buildAssistant(ctx, settings, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{server.NewIndexPinger(a.IsLoaded)}
			if settings.IndexPath != "" {
				pingers = append(pingers, server.NewChunkStorePinger(filepath.Join(settings.IndexPath, store.ChunksFile)))
			}

			if !noWarmup {
				go func() {
					state := a.Init(ctx)
					log.Info("serve: knowledge index warm-up finished",
						slog.String("state", state.String()),
						slog.Int("chunks", a.IndexedChunks()),
					)
					if err := server.NewMultiPinger(pingers...).Ping(ctx); err != nil {
						log.Warn("serve: not ready after warm-up", slog.Any("error", err))
					}
				}()
			}

			srv, err := server.New(a, &server.Config{
				Host:           settings.Host,
				Port:           settings.Port,
				Logger:         log,
				Pingers:        pingers,
				RateLimit:      settings.RateLimit,
				RateBurst:      settings.RateBurst,
				AllowedOrigins: settings.AllowedOrigins,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "Host address to bind to (overrides HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "TCP port to listen on (overrides PORT)")
	cmd.Flags().BoolVar(&noWarmup, "no-warmup", false, "Defer loading the knowledge index until the first question")

	return cmd
}
