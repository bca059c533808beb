package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okandolu/hae-gpt/internal/citation"
	"github.com/okandolu/hae-gpt/internal/db"
	"github.com/okandolu/hae-gpt/internal/helper"
	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/rag"
)

var (
	queryFormat    string
	queryMode      string
	queryBackend   string
	queryK         int
	queryThreshold float32
	queryNoDedup   bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Retrieve the contexts and citations for a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := strings.Join(args, " ")

		var opts []rag.Option
		switch queryBackend {
		case "index":
		case "chromem":
			m, err := openChromem()
			if err != nil {
				return err
			}
			opts = append(opts, rag.WithSearcher(rag.NewMirrorSearcher(ctx, m.Search)))
		case "postgres":
			store, err := db.Open(&cfg.Mirror.Postgres)
			if err != nil {
				return err
			}
			defer store.Close()
			opts = append(opts, rag.WithSearcher(rag.NewMirrorSearcher(ctx, store.Search)))
		default:
			return fmt.Errorf("%w: unknown backend %q", models.ErrInvalidInput, queryBackend)
		}

		p, err := newPipeline(opts...)
		if err != nil {
			return err
		}

		ropts := p.Retriever().Defaults()
		if cmd.Flags().Changed("k") {
			ropts.K = queryK
		}
		if cmd.Flags().Changed("threshold") {
			ropts.Threshold = queryThreshold
		}
		if queryNoDedup {
			ropts.Deduplicate = false
		}

		resp, err := p.Query(ctx, question, ropts)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), resp, queryFormat, citation.Mode(queryMode))
	},
}

// render writes a query response in one of the supported output formats.
func render(w io.Writer, resp *models.QueryResponse, format string, mode citation.Mode) error {
	switch format {
	case "text":
		fmt.Fprintln(w, resp.Contexts)
		fmt.Fprintln(w)
		fmt.Fprint(w, citation.Plain(resp.Citations, mode))
	case "markdown":
		fmt.Fprintln(w, citation.Markdown(resp.Citations, mode))
	case "plain":
		fmt.Fprint(w, citation.Plain(resp.Citations, mode))
	case "json":
		helper.PrettyPrint(w, struct {
			Query    string           `json:"query"`
			Contexts string           `json:"contexts"`
			Sources  citation.Sources `json:"citations"`
		}{resp.Query, resp.Contexts, citation.JSON(resp.Citations)})
	case "html":
		html, err := citation.HTML(resp.Citations, mode)
		if err != nil {
			return err
		}
		fmt.Fprint(w, html)
	default:
		return fmt.Errorf("%w: unknown format %q", models.ErrInvalidInput, format)
	}
	return nil
}

func init() {
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", "text", "output format: text, markdown, plain, json or html")
	queryCmd.Flags().StringVar(&queryMode, "mode", string(citation.ModePatient), "citation style: patient or academic")
	queryCmd.Flags().StringVar(&queryBackend, "backend", "index", "search backend: index, chromem or postgres")
	queryCmd.Flags().IntVar(&queryK, "k", 5, "number of contexts to return")
	queryCmd.Flags().Float32Var(&queryThreshold, "threshold", 0.5, "minimum cosine similarity")
	queryCmd.Flags().BoolVar(&queryNoDedup, "no-dedup", false, "keep near-duplicate contexts")
	rootCmd.AddCommand(queryCmd)
}
