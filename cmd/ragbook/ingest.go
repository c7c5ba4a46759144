package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dream-ai/ragbook/internal/documents"
)

func newIngestCommand() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "ingest <paths...>",
		Short: "Split, embed and store documents",
		Long:  "Ingest PDF, EPUB, Markdown and text files. Directories are walked and glob patterns expanded. Files whose content is already stored are skipped.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if workers <= 0 {
				workers = a.cfg.Processing.Workers
			}
			splitter, err := documents.NewSplitter(a.cfg.Processing.ChunkSize, a.cfg.Processing.ChunkOverlap)
			if err != nil {
				return err
			}

			proc := documents.NewProcessor(a.store, a.embedder, splitter, workers, a.cfg.Embeddings.BatchSize)
			sum, err := proc.ProcessPaths(cmd.Context(), args)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "processed %d, skipped %d, failed %d (%d chunks)\n",
				sum.Processed, sum.Skipped, sum.Failed, sum.Chunks)
			if sum.Failed > 0 {
				return fmt.Errorf("%d files failed", sum.Failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent embedding requests (0 = processing.workers)")
	return cmd
}
