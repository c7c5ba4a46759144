package main

import (
	"github.com/spf13/cobra"

	"github.com/dream-ai/ragbook/internal/tui"
)

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p, gen, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), p, a.store, gen.Model())
		},
	}
}
