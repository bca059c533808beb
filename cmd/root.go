package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/progress"
	"github.com/okandolu/hae-gpt/internal/rag"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hae-gpt",
	Short: "Retrieval core for hereditary angioedema questions",
	Long: `hae-gpt turns medical literature into a searchable vector index.
Documents are extracted, split into section-aware chunks, embedded and
stored; questions are answered with the most similar chunks together
with citations for the answer generator.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Error loading .env file")
		}

		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		level, err := zerolog.ParseLevel(cfg.Log.Level)
		if err != nil || level == zerolog.NoLevel {
			level = zerolog.InfoLevel
		}
		if verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "./configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func newPipeline(opts ...rag.Option) (*rag.Pipeline, error) {
	opts = append([]rag.Option{rag.WithReporter(progress.NewReporter(os.Stderr))}, opts...)
	return rag.NewFromConfig(cfg, opts...)
}
