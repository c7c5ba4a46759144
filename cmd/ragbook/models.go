package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dream-ai/ragbook/config"
	"github.com/dream-ai/ragbook/internal/llm"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List local Ollama models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// the marked model is the one ask and chat would generate with
			baseURL, preferred := cfg.LLM.BaseURL, cfg.LLM.Model
			if cfg.LLM.Provider != config.ProviderOllama {
				preferred = ""
				baseURL = cfg.Embeddings.BaseURL
				if cfg.Embeddings.Provider != config.ProviderOllama {
					baseURL = ""
				}
			}

			ms := llm.NewModelSelector(llm.NewOllamaClient(baseURL, 30*time.Second))
			models, err := ms.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			best, _ := llm.DefaultModel(models, preferred)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED\t")
			for _, m := range models {
				mark := ""
				if m.Name == best {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%.1f GB\t%s\t%s\n", m.Name, float64(m.Size)/1e9, m.ModifiedAt, mark)
			}
			return tw.Flush()
		},
	}
}
