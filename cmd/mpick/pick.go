package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/media_picker/internal/core"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

func pickCommand() *cobra.Command {
	var (
		search     searchFlags
		parent     string
		parentType string
		query      string
		index      int
	)

	cmd := &cobra.Command{
		Use:   "pick [media-id]",
		Short: "Select an item and print the enriched selection",
		Long: `Select an item and print the enriched selection.

Either name the item by id, optionally with --parent to browse to the
folder holding it, or pick the --index'th hit of a --query search.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			current, err := app.currentSelection()
			if err != nil {
				return err
			}
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			if id == "" && strings.TrimSpace(query) == "" {
				return &core.CLIError{Code: core.ExitUsage, Msg: "media id or --query required"}
			}
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Pick(ctx, core.PickRequest{
				Player:  search.player,
				Parent:  mp.Descriptor{ID: parent, Type: parentType},
				ID:      id,
				Query:   query,
				Index:   index,
				Options: search.options(),
				Current: current,
			})
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	search.register(cmd)
	cmd.Flags().StringVar(&parent, "parent", "", "browse to this folder before picking")
	cmd.Flags().StringVar(&parentType, "parent-type", "", "media content type of --parent")
	cmd.Flags().StringVar(&query, "query", "", "pick from the results of this search")
	cmd.Flags().IntVar(&index, "index", 0, "zero based index into the --query results")

	return cmd
}
