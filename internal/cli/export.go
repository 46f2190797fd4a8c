package cli

import (
	"github.com/spf13/cobra"

	"odds-crawler/internal/app"
)

var (
	exportMatch     string
	exportBookmaker string
	exportDirection string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored odds history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			MatchID:     exportMatch,
			BookmakerID: exportBookmaker,
			Direction:   exportDirection,
			PNGPath:     exportPNGPath,
			CSVPath:     exportCSVPath,
			MaxPoints:   exportMaxPoints,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportMatch, "match", "", "Match id to export")
	exportCmd.Flags().StringVar(&exportBookmaker, "bookmaker", "", "Restrict to one bookmaker id")
	exportCmd.Flags().StringVar(&exportDirection, "direction", "", "Restrict to back or lay")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
