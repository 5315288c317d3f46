package main

import (
	"context"

	"github.com/spf13/cobra"
)

func resolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <media-id>",
		Short: "Resolve a media source id to a playable URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
