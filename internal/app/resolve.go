package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"odds-crawler/internal/resolver"
)

// Resolve prints the identity and season list of one league URL.
func (a *App) Resolve(ctx context.Context, opts ResolveOptions) error {
	client := a.newClient()
	res := resolver.New(client, a.Logger)

	resolution, err := res.Resolve(ctx, opts.LeagueURL)
	if err != nil {
		return err
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
		if err := store.SaveLeague(ctx, resolution.League); err != nil {
			return err
		}
		if err := store.SaveSeasons(ctx, resolution.Seasons); err != nil {
			return err
		}
	}

	league := resolution.League
	fmt.Fprintf(os.Stdout, "league: %s (sport %d, country %s)\n", league.LeagueID, league.SportID, league.CountryID)
	fmt.Fprintf(os.Stdout, "url: %s\n\n", league.LeagueURL)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Season\tCurrent\tResults\tFixtures\tURL")
	for _, season := range resolution.Seasons {
		fmt.Fprintf(writer, "%s\t%t\t%t\t%t\t%s\n",
			season.SeasonID,
			season.IsCurrent,
			season.HasResults,
			season.HasFixtures,
			season.SeasonURL,
		)
	}
	return writer.Flush()
}
