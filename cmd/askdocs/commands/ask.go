package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/askdocs-go/internal/chat"
	"github.com/54b3r/askdocs-go/internal/config"
	"github.com/54b3r/askdocs-go/internal/logging"
)

// NewAskCmd constructs the `askdocs ask` command, which runs the answer
// pipeline once and prints the selected answer to stdout.
func NewAskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question against the index",
		Long: `Ask a single natural-language question and print the best answer.

The question is embedded, the nearest chunks are retrieved from the
configured index, and the model answers from each chunk independently.
The answer with the highest self-reported score is printed. With
--sources the retrieved chunks and every per-chunk score are listed too.

Examples:
  askdocs ask "What were the disadvantages of working remotely?"
  askdocs ask --sources "What are some new companies that got involved with us?"
  ASKDOCS_INDEX_BACKEND=qdrant askdocs ask "Who spoke first?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errNoQuestion
			}

			settings, err := config.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			var cl closers
			defer cl.run()

			st, err := buildStack(ctx, log, settings, nil, &cl)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			reply, err := st.pipeline.Ask(ctx, question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			return printReply(cmd.OutOrStdout(), reply, showSources)
		},
	}

	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Also print the retrieved chunks and per-chunk scores")

	return cmd
}

// printReply writes the answer and, when sources is set, the retrieval
// result with each chunk's similarity and model score. The winning chunk is
// marked with an asterisk.
func printReply(w io.Writer, reply *chat.Reply, sources bool) error {
	if _, err := fmt.Fprintln(w, reply.Text); err != nil {
		return err
	}
	if !sources || len(reply.Chunks) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(w, "\nSources (%d):\n", len(reply.Chunks)); err != nil {
		return err
	}
	for i, sc := range reply.Chunks {
		mark := " "
		if i == reply.Result.Best {
			mark = "*"
		}
		score := "n/a"
		if i < len(reply.Result.Candidates) {
			c := reply.Result.Candidates[i]
			switch {
			case c.Err != nil:
				score = "error"
			case c.HasScore:
				score = fmt.Sprintf("%g", c.Score)
			}
		}
		if _, err := fmt.Fprintf(w, "%s %d. %s (similarity %.3f, score %s)\n   %s\n",
			mark, i+1, sc.Chunk.Source, sc.Score, score, preview(sc.Chunk.Text, 160)); err != nil {
			return err
		}
	}
	return nil
}

// preview returns the first n runes of text on one line.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
