package cli

import (
	"github.com/spf13/cobra"

	"odds-crawler/internal/app"
)

var (
	oddsBettingTypes []int
	oddsScopes       []int
	oddsSave         bool
)

var oddsCmd = &cobra.Command{
	Use:   "odds <match-url>",
	Short: "Fetch and normalize the odds of one match",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Odds(cmd.Context(), app.OddsOptions{
			MatchURL:       args[0],
			BettingTypeIDs: oddsBettingTypes,
			ScopeIDs:       oddsScopes,
			Save:           oddsSave,
		})
	},
}

func init() {
	oddsCmd.Flags().IntSliceVar(&oddsBettingTypes, "betting-types", nil, "Betting type ids to fetch (defaults to config)")
	oddsCmd.Flags().IntSliceVar(&oddsScopes, "scopes", nil, "Scope ids to fetch (defaults to config)")
	oddsCmd.Flags().BoolVar(&oddsSave, "save", false, "Persist normalized odds to the database")
}
