package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/folio-go/internal/config"
	"github.com/54b3r/folio-go/internal/logging"
	"github.com/54b3r/folio-go/internal/security"
)

// NewAskCmd constructs the `folio ask` command, which answers a single
// question through the same pipeline as POST /api/chat and prints the
// response with its sources.
func NewAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the portfolio assistant a question",
		Long: `Ask the portfolio assistant a single question.

The knowledge index is loaded from RAG_INDEX_PATH, or built from RAG_DOCS_PATH
when no usable snapshot exists.

Examples:
  folio ask "What languages does Yuka know?"
  folio ask --json "Tell me about her recent projects"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			settings, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			flush := setupTracing(log)
			defer flush()

			a, err := buildAssistant(ctx, settings, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			question := strings.Join(args, " ")
			sanitized, _ := security.Sanitize(question)
			ctx = logging.WithQueryHash(ctx, logging.QueryHash(question))

			ans, err := a.Answer(ctx, sanitized, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ans)
			}

			fmt.Fprintln(out, ans.Response)
			fmt.Fprintf(out, "\nconfidence: %.2f (sufficient context: %t)\n", ans.Confidence, ans.HasSufficientContext)
			for _, s := range ans.Sources {
				fmt.Fprintf(out, "  - %s (%.2f)\n", s.Document, s.RelevanceScore)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")

	return cmd
}
