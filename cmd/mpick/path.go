package main

import (
	"github.com/spf13/cobra"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

func pathCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Show or forget remembered breadcrumb paths",
	}
	cmd.AddCommand(pathShowCommand())
	cmd.AddCommand(pathForgetCommand())
	return cmd
}

func pathShowCommand() *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "show <media-id>",
		Short: "Show the breadcrumb path remembered for a selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			result, err := app.service.PathShow(mp.Descriptor{ID: args[0], Type: contentType})
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "media content type")
	return cmd
}

func pathForgetCommand() *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "forget <media-id>",
		Short: "Forget the breadcrumb path remembered for a selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			if err := app.service.PathForget(mp.Descriptor{ID: args[0], Type: contentType}); err != nil {
				return err
			}
			if app.quiet || app.json {
				return nil
			}
			return app.printer.Print(struct{}{})
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "media content type")
	return cmd
}
