package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/okandolu/hae-gpt/internal/db"
	"github.com/okandolu/hae-gpt/internal/helper"
	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/rag"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := rag.LoadIndex(cfg)
		if err != nil {
			return err
		}

		out := struct {
			Index    any `json:"index"`
			Chromem  any `json:"chromem,omitempty"`
			Postgres any `json:"postgres,omitempty"`
		}{Index: index.Stats()}

		if cfg.Mirror.Chromem.Enabled {
			if m, err := openChromem(); err != nil {
				log.Warn().Err(err).Msg("Error opening chromem mirror")
			} else {
				out.Chromem = map[string]any{"documents": m.Count(), "export": m.ExportPath()}
			}
		}
		if cfg.Mirror.Postgres.Enabled {
			if n, err := postgresCount(cmd); err != nil {
				log.Warn().Err(err).Msg("Error counting postgres rows")
			} else {
				out.Postgres = map[string]any{"rows": n, "table": cfg.Mirror.Postgres.Table}
			}
		}

		helper.PrettyPrint(cmd.OutOrStdout(), out)
		return nil
	},
}

func postgresCount(cmd *cobra.Command) (int, error) {
	store, err := db.Open(&cfg.Mirror.Postgres)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return store.Count(cmd.Context())
}

var deleteCmd = &cobra.Command{
	Use:   "delete <source>",
	Short: "Remove a document from the index by path or filename",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := rag.LoadIndex(cfg)
		if err != nil {
			return err
		}

		removed := index.DeleteBySource(args[0])
		if removed == 0 {
			return fmt.Errorf("%w: no entries for %s", models.ErrNotFound, args[0])
		}
		if err := index.Save(cfg.Index.Path); err != nil {
			return err
		}
		log.Info().Str("source", args[0]).Int("removed", removed).Int("remaining", index.Count()).Msg("Index saved")

		return deleteFromMirrors(cmd.Context(), args[0])
	},
}

var chunksOut string

var chunksCmd = &cobra.Command{
	Use:   "chunks <path>...",
	Short: "Extract and chunk documents and export the chunks as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		res, _, err := p.Process(cmd.Context(), args)
		if err != nil {
			return err
		}

		path := chunksOut
		if path == "" {
			path = cfg.Index.ChunksPath
		}
		if path == "" {
			helper.PrettyPrint(cmd.OutOrStdout(), res.Chunks)
			return nil
		}
		if err := rag.WriteChunks(path, res.Chunks); err != nil {
			return err
		}
		log.Info().Str("path", path).Int("chunks", len(res.Chunks)).Msg("Chunks exported")
		return nil
	},
}

var exportTarget string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy the whole index into a mirror store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := rag.LoadIndex(cfg)
		if err != nil {
			return err
		}

		t := mirrorTargets{reset: true}
		switch exportTarget {
		case "chromem":
			t.chromem = true
		case "postgres":
			t.postgres = true
		case "all":
			t.chromem, t.postgres = true, true
		default:
			return fmt.Errorf("%w: unknown export target %q", models.ErrInvalidInput, exportTarget)
		}
		return syncMirrors(cmd.Context(), index.Entries(), t)
	},
}

func init() {
	chunksCmd.Flags().StringVarP(&chunksOut, "out", "o", "", "output path, defaults to index.chunks_path")
	exportCmd.Flags().StringVar(&exportTarget, "target", "all", "mirror to fill: chromem, postgres or all")
	rootCmd.AddCommand(statsCmd, deleteCmd, chunksCmd, exportCmd)
}
