package main

import (
	"context"

	"github.com/spf13/cobra"
)

func playersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "List media players and what the picker can do with them",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Players(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func nodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List gateway nodes (mqtt backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.ListNodes(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
