package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"odds-crawler/internal/model"
)

// Export renders the stored odds history of one match as CSV and/or a PNG
// movement chart, one chart series per (outcome, bookmaker) pair.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.MatchID == "" {
		return errors.New("--match is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	entries, err := store.ListHistoryForMatch(ctx, opts.MatchID, opts.MaxPoints)
	if err != nil {
		return err
	}
	entries = filterHistory(entries, opts.BookmakerID, opts.Direction)
	if len(entries) == 0 {
		a.Logger.Info().Str("match_id", opts.MatchID).Msg("no history found for export")
		return nil
	}

	a.Logger.Info().Int("points", len(entries)).Str("match_id", opts.MatchID).Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, entries); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, opts.MatchID, entries); err != nil {
			return err
		}
	}

	return nil
}

func filterHistory(entries []model.OddsHistoryEntry, bookmakerID, direction string) []model.OddsHistoryEntry {
	if bookmakerID == "" && direction == "" {
		return entries
	}
	filtered := entries[:0:0]
	for _, e := range entries {
		if bookmakerID != "" && e.BookmakerID != bookmakerID {
			continue
		}
		if direction != "" && string(e.Direction) != direction {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func writeHistoryCSV(path string, entries []model.OddsHistoryEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "match_id", "betting_type", "scope", "outcome_key", "bookmaker", "direction", "odds", "volume"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, entry := range entries {
		volume := ""
		if entry.Volume != nil {
			volume = fmt.Sprintf("%d", *entry.Volume)
		}
		record := []string{
			entry.ObservedAt.UTC().Format(time.RFC3339),
			entry.MatchID,
			model.BettingTypeName(entry.BettingTypeID),
			model.ScopeName(entry.ScopeID),
			entry.OutcomeKey,
			model.BookmakerName(entry.BookmakerID),
			string(entry.Direction),
			entry.Odds.String(),
			volume,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// chartSeriesCap keeps the legend readable. Matches with more series than
// this export fine to CSV; the chart takes the first N.
const (
	chartSeriesCap = 12
	maxChartPoints = 2000
)

func writeHistoryPNG(path, matchID string, entries []model.OddsHistoryEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	grouped := make(map[string][]model.OddsHistoryEntry)
	var order []string
	for _, entry := range entries {
		key := entry.HistoryKey()
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], entry)
	}
	if len(order) > chartSeriesCap {
		order = order[:chartSeriesCap]
	}

	series := make([]chart.Series, 0, len(order))
	for _, key := range order {
		points := downsample(grouped[key], maxChartPoints)
		x := make([]time.Time, len(points))
		y := make([]float64, len(points))
		for i, p := range points {
			x[i] = p.ObservedAt
			y[i] = p.Odds.InexactFloat64()
		}
		first := points[0]
		series = append(series, chart.TimeSeries{
			Name:    fmt.Sprintf("%s %s/%s", model.BookmakerName(first.BookmakerID), first.Direction, first.OutcomeKey),
			XValues: x,
			YValues: y,
		})
	}

	oddsFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("Odds movement %s", matchID),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Decimal odds",
			ValueFormatter: oddsFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// downsample thins a series to at most max points, keeping endpoints.
func downsample(entries []model.OddsHistoryEntry, max int) []model.OddsHistoryEntry {
	if max <= 0 || len(entries) <= max {
		return entries
	}
	result := make([]model.OddsHistoryEntry, 0, max)
	step := float64(len(entries)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(entries) {
			idx = len(entries) - 1
		}
		result = append(result, entries[idx])
	}
	return result
}
