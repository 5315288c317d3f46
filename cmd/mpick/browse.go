package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/media_picker/internal/core"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

func browseCommand() *cobra.Command {
	var player string
	var contentType string

	cmd := &cobra.Command{
		Use:   "browse [media-id]",
		Short: "Browse a player's media tree",
		Long:  "Browse a player's media tree. Without a media id the picker opens where the current selection was found, or at the root.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			current, err := app.currentSelection()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			req := core.BrowseRequest{Player: player, Current: current}
			if len(args) == 1 {
				req.Target = mp.Descriptor{ID: args[0], Type: contentType}
			}
			result, err := app.service.Browse(ctx, req)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().StringVarP(&player, "player", "p", "", "player selector")
	cmd.Flags().StringVar(&contentType, "type", "", "media content type of the target")

	return cmd
}
