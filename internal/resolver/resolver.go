package resolver

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
	"odds-crawler/internal/model"
	"odds-crawler/internal/scraping"
)

// Resolution is the output of league discovery: the league identity plus its
// seasons ordered most-recent-first with the current season at the head.
type Resolution struct {
	League  model.LeagueIdentity
	Seasons []model.Season
}

// Resolver discovers a league's identity and seasons from its landing page.
type Resolver struct {
	fetcher scraping.PageFetcher
	logger  zerolog.Logger
}

// New constructs a Resolver.
func New(fetcher scraping.PageFetcher, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

var (
	sportIDPattern  = regexp.MustCompile(`"sid"\s*:\s*(\d+)`)
	leagueIDPattern = regexp.MustCompile(`"id"\s*:\s*"([^"]+)"`)
	seasonYearRe    = regexp.MustCompile(`-(\d{4}-\d{4})`)
)

// Resolve fetches the league page and extracts identity plus season list.
// A page yielding zero seasons is a structural-change error; downstream
// stages must never run against an empty season list.
func (r *Resolver) Resolve(ctx context.Context, leagueURL string) (*Resolution, error) {
	leagueURL = strings.TrimRight(leagueURL, "/")

	body, err := r.fetcher.FetchPage(ctx, leagueURL+"/results/")
	if err != nil {
		return nil, fmt.Errorf("fetch league page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errs.Structural("resolver", "league page is not parseable HTML: %v", err)
	}

	scripts := collectScripts(doc)

	league, err := r.parseIdentity(leagueURL, scripts)
	if err != nil {
		return nil, err
	}

	seasons := r.parseSeasons(leagueURL, league.LeagueID, doc, scripts)
	if len(seasons) == 0 {
		return nil, errs.Structural("resolver", "no seasons found on %s", leagueURL)
	}

	r.logger.Info().
		Str("league_id", league.LeagueID).
		Int("sport_id", league.SportID).
		Int("seasons", len(seasons)).
		Msg("league resolved")

	return &Resolution{League: league, Seasons: seasons}, nil
}

func (r *Resolver) parseIdentity(leagueURL, scripts string) (model.LeagueIdentity, error) {
	_, countrySlug, leagueSlug, err := splitLeagueURL(leagueURL)
	if err != nil {
		return model.LeagueIdentity{}, errs.Structural("resolver", "unexpected league url shape: %v", err)
	}

	sportID := 0
	if m := sportIDPattern.FindStringSubmatch(scripts); m != nil {
		sportID, _ = strconv.Atoi(m[1])
	}
	if sportID == 0 {
		return model.LeagueIdentity{}, errs.Structural("resolver", "sport id not present in page scripts for %s", leagueURL)
	}

	leagueID := leagueSlug
	if m := leagueIDPattern.FindStringSubmatch(scripts); m != nil {
		leagueID = m[1]
	}

	return model.LeagueIdentity{
		SportID:   sportID,
		CountryID: strings.ToUpper(countrySlug),
		LeagueID:  leagueID,
		LeagueURL: leagueURL,
		IsActive:  true,
	}, nil
}

// parseSeasons merges three discovery methods: the canonical URL (current
// season), archive links to dated sub-paths, and season slugs embedded in
// script content. Duplicates collapse on season id.
func (r *Resolver) parseSeasons(leagueURL, leagueID string, doc *goquery.Document, scripts string) []model.Season {
	_, _, leagueSlug, err := splitLeagueURL(leagueURL)
	if err != nil {
		return nil
	}

	seasons := []model.Season{{
		SeasonID:    "current",
		LeagueID:    leagueID,
		IsCurrent:   true,
		HasResults:  true,
		HasFixtures: hasFixturesLink(doc),
		SeasonURL:   leagueURL,
	}}

	seen := map[string]bool{"current": true}

	doc.Find(`a[href*="-20"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		m := seasonYearRe.FindStringSubmatch(href)
		if m == nil || !strings.Contains(href, leagueSlug) {
			return
		}
		id := m[1]
		if seen[id] {
			return
		}
		seen[id] = true
		seasons = append(seasons, historicalSeason(leagueURL, leagueID, id))
	})

	slugSeasonRe := regexp.MustCompile(regexp.QuoteMeta(leagueSlug) + `-(\d{4}-\d{4})`)
	for _, m := range slugSeasonRe.FindAllStringSubmatch(scripts, -1) {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		seasons = append(seasons, historicalSeason(leagueURL, leagueID, id))
	}

	// Current first, then historical seasons newest first.
	sort.SliceStable(seasons[1:], func(i, j int) bool {
		return seasons[1:][i].SeasonID > seasons[1:][j].SeasonID
	})

	return seasons
}

func historicalSeason(leagueURL, leagueID, seasonID string) model.Season {
	return model.Season{
		SeasonID:   seasonID,
		LeagueID:   leagueID,
		IsCurrent:  false,
		HasResults: true,
		SeasonURL:  leagueURL + "-" + seasonID,
	}
}

func hasFixturesLink(doc *goquery.Document) bool {
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if strings.Contains(href, "/fixtures") {
			found = true
			return false
		}
		return true
	})
	return found
}

// splitLeagueURL breaks .../{sport}/{country}/{league} into its slugs.
func splitLeagueURL(leagueURL string) (sport, country, league string, err error) {
	parts := strings.Split(strings.TrimRight(leagueURL, "/"), "/")
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("need /{sport}/{country}/{league}, got %q", leagueURL)
	}
	return parts[len(parts)-3], parts[len(parts)-2], parts[len(parts)-1], nil
}

func collectScripts(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		b.WriteString(sel.Text())
		b.WriteByte(' ')
	})
	return b.String()
}
