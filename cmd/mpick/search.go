package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/media_picker/internal/core"
	"github.com/mikey-austin/media_picker/internal/picker"
)

type searchFlags struct {
	player      string
	mediaType   string
	limit       int
	libraryOnly bool
	classes     []string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.player, "player", "p", "", "player selector")
	cmd.Flags().StringVar(&f.mediaType, "media-type", "", "media type to search for")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of results")
	cmd.Flags().BoolVar(&f.libraryOnly, "library-only", false, "search the player's library only")
	cmd.Flags().StringSliceVar(&f.classes, "class", nil, "keep only results of these media classes")
}

func (f *searchFlags) options() picker.Options {
	return picker.Options{
		MediaType:     f.mediaType,
		Limit:         f.limit,
		LibraryOnly:   f.libraryOnly,
		FilterClasses: f.classes,
	}
}

func searchCommand() *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a player for media",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			current, err := app.currentSelection()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Search(ctx, core.SearchRequest{
				Player:  flags.player,
				Query:   strings.Join(args, " "),
				Options: flags.options(),
				Current: current,
			})
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	flags.register(cmd)
	return cmd
}
