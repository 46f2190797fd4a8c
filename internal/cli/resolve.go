package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"odds-crawler/internal/app"
)

var resolveSave bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <league-url>",
	Short: "Resolve a league URL into its identity and season list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" {
			return fmt.Errorf("league url must not be empty")
		}
		return getApp().Resolve(cmd.Context(), app.ResolveOptions{
			LeagueURL: args[0],
			Save:      resolveSave,
		})
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveSave, "save", false, "Persist the league and seasons to the database")
}
