package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/rag"
	"github.com/okandolu/hae-gpt/internal/report"
)

var (
	ingestReport  string
	ingestReset   bool
	ingestDryRun  bool
	mirrorChromem bool
	mirrorPG      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Extract, chunk and embed documents into the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, err := newPipeline()
		if err != nil {
			return err
		}

		if ingestDryRun {
			res, failures, err := p.Process(ctx, args)
			if err != nil {
				return err
			}
			summary := report.Summarize(res.Chunks, res.Stats, failures)
			summary.Log()
			return writeOutputs(res.Chunks, summary)
		}

		if ingestReset {
			log.Info().Int("entries", p.Index().Count()).Msg("Resetting index")
			p.Index().Reset()
		}

		res, err := p.Ingest(ctx, args)
		if err != nil {
			return err
		}
		if err := p.Save(); err != nil {
			return err
		}
		res.Summary.Log()
		log.Info().Str("path", cfg.Index.Path).Int("entries", p.Index().Count()).Msg("Index saved")

		if err := writeOutputs(res.Chunks, res.Summary); err != nil {
			return err
		}

		return syncMirrors(ctx, p.Index().Entries(), mirrorTargets{
			chromem:  mirrorChromem || cfg.Mirror.Chromem.Enabled,
			postgres: mirrorPG || cfg.Mirror.Postgres.Enabled,
			reset:    true,
		})
	},
}

func writeOutputs(chunks []models.Chunk, summary report.Summary) error {
	if cfg.Index.ChunksPath != "" {
		if err := rag.WriteChunks(cfg.Index.ChunksPath, chunks); err != nil {
			return err
		}
		log.Info().Str("path", cfg.Index.ChunksPath).Int("chunks", len(chunks)).Msg("Chunks exported")
	}
	if ingestReport != "" {
		if err := report.Write(ingestReport, summary); err != nil {
			return err
		}
		log.Info().Str("path", ingestReport).Msg("Report written")
	}
	return nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestReport, "report", "", "write an xlsx ingestion report to this path")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "discard the existing index before ingesting")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "extract and chunk only, do not embed or save")
	ingestCmd.Flags().BoolVar(&mirrorChromem, "mirror-chromem", false, "mirror the index into chromem")
	ingestCmd.Flags().BoolVar(&mirrorPG, "mirror-postgres", false, "mirror the index into postgres")
	rootCmd.AddCommand(ingestCmd)
}
