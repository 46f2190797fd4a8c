package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"odds-crawler/internal/extractor"
	"odds-crawler/internal/model"
	"odds-crawler/internal/normalize"
	"odds-crawler/internal/oddsfetcher"
)

// Extract prints the odds-endpoint access parameters for one match URL.
func (a *App) Extract(ctx context.Context, opts ExtractOptions) error {
	client := a.newClient()
	ext := extractor.New(client, nil, a.Logger)

	params, err := ext.Extract(ctx, opts.MatchURL)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "match_id: %s\n", params.MatchID)
	fmt.Fprintf(os.Stdout, "sport_id: %d\n", params.SportID)
	fmt.Fprintf(os.Stdout, "protocol_version: %s\n", params.ProtocolVersion)
	fmt.Fprintf(os.Stdout, "has_started: %t\n", params.HasStarted)
	fmt.Fprintf(os.Stdout, "access_token: %s\n", params.AccessToken)
	return nil
}

// Odds fetches and normalizes the requested markets for one match, printing
// the snapshots and optionally persisting them.
func (a *App) Odds(ctx context.Context, opts OddsOptions) error {
	client := a.newClient()
	ext := extractor.New(client, nil, a.Logger)
	fet := oddsfetcher.New(client, oddsfetcher.Options{
		BaseURL:     a.Config.Source.BaseURL,
		Concurrency: a.Config.Crawl.Concurrency,
	}, a.Logger)

	params, err := ext.Extract(ctx, opts.MatchURL)
	if err != nil {
		return err
	}

	bettingTypes := opts.BettingTypeIDs
	if len(bettingTypes) == 0 {
		bettingTypes = a.Config.Crawl.BettingTypeIDs
	}
	scopes := opts.ScopeIDs
	if len(scopes) == 0 {
		scopes = a.Config.Crawl.ScopeIDs
	}

	selectors := oddsfetcher.DefaultSelectors(params.MatchID, bettingTypes, scopes)
	results, failures, err := fet.Fetch(ctx, params, opts.MatchURL, selectors)
	if err != nil {
		return err
	}
	for _, failure := range failures {
		a.Logger.Warn().Err(failure.Err).
			Int("betting_type", failure.Selector.BettingTypeID).
			Int("scope", failure.Selector.ScopeID).
			Msg("selector failed")
	}

	var (
		snapshots []model.OddsSnapshot
		history   []model.OddsHistoryEntry
		quality   int
	)
	for _, res := range results {
		normalized, err := normalize.Normalize(res.Payload, params.HasStarted)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("payload dropped")
			quality++
			continue
		}
		if normalized.Unavailable {
			a.Logger.Info().
				Int("status", normalized.StatusCode).
				Int("betting_type", res.Payload.Selector.BettingTypeID).
				Int("scope", res.Payload.Selector.ScopeID).
				Msg("odds unavailable for selector")
			continue
		}
		quality += len(normalized.QualityIssues)
		snapshots = append(snapshots, normalized.Snapshots...)
		history = append(history, normalized.History...)
	}

	if opts.Save {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return fmt.Errorf("database not configured; cannot save")
		}
		defer closeStore()
		if err := store.SaveOdds(ctx, snapshots, history); err != nil {
			return err
		}
	}

	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no odds available")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Market\tScope\tOutcome\tBookmaker\tDir\tCurrent\tOpening\tMove\tActive\tClosing")
	for _, snap := range snapshots {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\t%t\n",
			model.BettingTypeName(snap.BettingTypeID),
			model.ScopeName(snap.ScopeID),
			model.OutcomeLabel(snap.BettingTypeID, snap.OutcomeIndex),
			model.BookmakerName(snap.BookmakerID),
			snap.Direction,
			snap.CurrentOdds.String(),
			snap.OpeningOdds.String(),
			snap.Movement,
			snap.IsActive,
			snap.IsClosingLine,
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\n%d snapshots, %d history points, %d quality issues\n",
		len(snapshots), len(history), quality)
	return nil
}
