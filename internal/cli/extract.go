package cli

import (
	"github.com/spf13/cobra"

	"odds-crawler/internal/app"
)

var extractCmd = &cobra.Command{
	Use:   "extract <match-url>",
	Short: "Extract odds-endpoint access parameters from a match page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Extract(cmd.Context(), app.ExtractOptions{
			MatchURL: args[0],
		})
	},
}
