package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the vector store schema for the configured embedding model",
		Long:  "Embeds a probe sentence to learn the embedding dimension and prepares the vector store for it (tables and indexes, or a collection).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			vec, err := a.embedder.Embed(cmd.Context(), "dimension probe")
			if err != nil {
				return fmt.Errorf("failed to probe embedding dimension: %w", err)
			}
			if err := a.store.Init(cmd.Context(), len(vec)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vector store ready (%s, dimension %d)\n", a.embedder.Model(), len(vec))
			return nil
		},
	}
}
