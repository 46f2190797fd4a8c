package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"odds-crawler/internal/locator"
	"odds-crawler/internal/model"
	"odds-crawler/internal/resolver"
)

// Locate resolves a league, picks one of its seasons, and lists that
// season's matches. An empty SeasonID selects the current season.
func (a *App) Locate(ctx context.Context, opts LocateOptions) error {
	client := a.newClient()
	res := resolver.New(client, a.Logger)
	loc := locator.New(client, locator.Options{
		BaseURL:        a.Config.Source.BaseURL,
		TimezoneOffset: a.Config.Source.TimezoneOffset,
		MaxPages:       a.Config.Crawl.MaxPages,
	}, a.Logger)

	resolution, err := res.Resolve(ctx, opts.LeagueURL)
	if err != nil {
		return err
	}

	season, err := pickSeason(resolution.Seasons, opts.SeasonID)
	if err != nil {
		return err
	}

	mode := model.ModeResults
	if opts.Fixtures {
		mode = model.ModeFixtures
	}

	var matches []model.MatchRef
	if mode == model.ModeResults && opts.FromPage > 1 {
		matches, err = locateFromPage(ctx, loc, season, opts.FromPage)
	} else {
		matches, err = loc.Locate(ctx, season, mode)
	}
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
		if err := store.SaveMatches(ctx, matches); err != nil {
			return err
		}
	}

	if len(matches) == 0 {
		fmt.Fprintln(os.Stdout, "no matches found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Match\tKickoff (UTC)\tStatus\tHome\tAway")
	for _, m := range matches {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			m.MatchID,
			m.Kickoff.UTC().Format(time.RFC3339),
			m.Status,
			m.HomeTeam,
			m.AwayTeam,
		)
	}
	return writer.Flush()
}

// locateFromPage drains the results pager starting mid-sequence, for
// resuming an interrupted enumeration.
func locateFromPage(ctx context.Context, loc *locator.Locator, season model.Season, page int) ([]model.MatchRef, error) {
	pager, err := loc.NewPager(ctx, season)
	if err != nil {
		return nil, err
	}
	pager.Seek(page)

	var matches []model.MatchRef
	for {
		batch, more, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		matches = append(matches, batch...)
		if !more {
			return matches, nil
		}
	}
}

func pickSeason(seasons []model.Season, seasonID string) (model.Season, error) {
	if seasonID == "" {
		for _, s := range seasons {
			if s.IsCurrent {
				return s, nil
			}
		}
		return model.Season{}, fmt.Errorf("league has no current season")
	}
	for _, s := range seasons {
		if s.SeasonID == seasonID {
			return s, nil
		}
	}
	return model.Season{}, fmt.Errorf("season %q not found", seasonID)
}
