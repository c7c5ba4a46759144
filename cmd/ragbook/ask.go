package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dream-ai/ragbook/internal/vectorstore"
)

func newQueryCommand() *cobra.Command {
	var (
		topK   int
		hybrid bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Show the chunks closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if topK > 0 {
				a.cfg.Processing.TopK = topK
			}
			r := a.retriever()
			query := strings.Join(args, " ")

			retrieve := r.Retrieve
			if hybrid {
				retrieve = r.RetrieveHybrid
			}
			res, err := retrieve(cmd.Context(), query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(res.Chunks) == 0 {
				fmt.Fprintln(out, "no matching chunks")
				return nil
			}
			for i, c := range res.Chunks {
				fmt.Fprintf(out, "%d. %.4f  %s\n", i+1, c.Score, sourceLabel(c))
				fmt.Fprintf(out, "   %s\n\n", excerpt(c.Chunk.Content, 300))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks (0 = processing.top_k)")
	cmd.Flags().BoolVar(&hybrid, "hybrid", false, "Keep only chunks sharing a keyword with the query")
	return cmd
}

func newAskCommand() *cobra.Command {
	var stream bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p, _, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			question := strings.Join(args, " ")

			if stream {
				ans, err := p.AskStream(cmd.Context(), question, func(s string) {
					fmt.Fprint(out, s)
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				printSources(out, ans.Sources)
				return nil
			}

			ans, err := p.Ask(cmd.Context(), question)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ans.Text)
			printSources(out, ans.Sources)
			return nil
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "Print the answer as it is generated")
	return cmd
}

func printSources(w io.Writer, sources []vectorstore.SearchResult) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range sources {
		fmt.Fprintf(w, "  [%d] %s (%.2f)\n", i+1, sourceLabel(s), s.Score)
	}
}

func sourceLabel(r vectorstore.SearchResult) string {
	label := filepath.Base(r.DocumentPath)
	if r.Chunk.Page > 0 {
		label += fmt.Sprintf(", page %d", r.Chunk.Page)
	}
	return label
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
