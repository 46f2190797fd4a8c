package cli

import (
	"github.com/spf13/cobra"

	"odds-crawler/internal/app"
)

var (
	locateSeason   string
	locateFixtures bool
	locateFromPage int
	locateSave     bool
)

var locateCmd = &cobra.Command{
	Use:   "locate <league-url>",
	Short: "List the matches of one league season",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Locate(cmd.Context(), app.LocateOptions{
			LeagueURL: args[0],
			SeasonID:  locateSeason,
			Fixtures:  locateFixtures,
			FromPage:  locateFromPage,
			Save:      locateSave,
		})
	},
}

func init() {
	locateCmd.Flags().StringVar(&locateSeason, "season", "", "Season id (defaults to the current season)")
	locateCmd.Flags().BoolVar(&locateFixtures, "fixtures", false, "List upcoming fixtures instead of results")
	locateCmd.Flags().IntVar(&locateFromPage, "from-page", 0, "Resume results pagination from this page")
	locateCmd.Flags().BoolVar(&locateSave, "save", false, "Persist located matches to the database")
}
