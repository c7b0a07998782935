// Package commands defines all Cobra CLI commands for the askdocs binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/askdocs-go/internal/audit"
	"github.com/54b3r/askdocs-go/internal/config"
	"github.com/54b3r/askdocs-go/internal/logging"
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	var configPath string
	var envFiles []string

	root := &cobra.Command{
		Use:   "askdocs",
		Short: "Ask questions about your documents",
		Long: `askdocs answers natural-language questions from a fixed document corpus.

Documents are chunked and embedded offline by 'askdocs index'. At question
time the closest chunks are retrieved, the model answers from each chunk
separately with a confidence score, and the best-scoring answer wins.

Configuration is layered: YAML file, then .env, then environment variables,
with the environment always winning. The model provider is selected via
MODEL_PROVIDER. See 'askdocs --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env before YAML: both only fill unset variables, so the
			// first loaded wins.
			loadedEnv, err := config.LoadDotEnv(envFiles...)
			if err != nil {
				return err
			}

			path, err := config.Load(configPath, logging.New())
			if err != nil {
				return err
			}

			// LOG_LEVEL and LOG_FORMAT may have come from either file.
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path, loadedEnv)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.askdocs/config.yaml)")
	root.PersistentFlags().StringArrayVar(&envFiles, "env-file", nil, "Path to a .env file (repeatable, default: ./.env)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIndexCmd(),
		NewVersionCmd(),
	)

	return root
}
