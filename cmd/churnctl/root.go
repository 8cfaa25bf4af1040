package main

import (
	"fmt"
	"os"

	"smartassist-api/pkg/logger"
	"smartassist-api/pkg/services"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	modelDir string
	logLevel string
	verbose  bool
	log      zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "churnctl",
		Short:         "Telecom churn model tooling",
		Long:          "churnctl trains the churn model, scores customer datasets and generates synthetic training data.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			level := opts.logLevel
			if opts.verbose {
				level = "debug"
			}
			opts.log = logger.New(logger.Config{
				Level:  level,
				Format: "console",
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.modelDir, "model-dir", envOr("MODEL_DIR", "models"), "directory holding churn_model.json and scaler.json")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newTrainCmd(opts),
		newScoreCmd(opts),
		newValidateCmd(opts),
		newInfoCmd(opts),
	)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadTable(opts *rootOptions, path string) (*services.Table, error) {
	if path == "" {
		return nil, fmt.Errorf("--data is required")
	}
	return services.NewCustomerDataService(path, opts.log).LoadDefault()
}
