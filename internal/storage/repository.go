package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"odds-crawler/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertLeagueSQL = `INSERT INTO leagues (
        league_id,
        sport_id,
        country_id,
        league_url,
        is_active
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (league_id) DO UPDATE
    SET
        sport_id   = EXCLUDED.sport_id,
        country_id = EXCLUDED.country_id,
        league_url = EXCLUDED.league_url,
        is_active  = EXCLUDED.is_active;`

	upsertSeasonSQL = `INSERT INTO seasons (
        season_id,
        league_id,
        is_current,
        has_results,
        has_fixtures,
        season_url
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (season_id, league_id) DO UPDATE
    SET
        is_current   = EXCLUDED.is_current,
        has_results  = EXCLUDED.has_results,
        has_fixtures = EXCLUDED.has_fixtures,
        season_url   = EXCLUDED.season_url;`

	upsertMatchSQL = `INSERT INTO matches (
        match_id,
        match_url,
        season_id,
        kickoff,
        status,
        home_team,
        away_team
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (match_id) DO UPDATE
    SET
        match_url = EXCLUDED.match_url,
        season_id = EXCLUDED.season_id,
        kickoff   = EXCLUDED.kickoff,
        status    = EXCLUDED.status,
        home_team = EXCLUDED.home_team,
        away_team = EXCLUDED.away_team;`

	upsertSnapshotSQL = `INSERT INTO odds_snapshots (
        match_id,
        betting_type_id,
        scope_id,
        handicap_type_id,
        handicap_value,
        outcome_index,
        outcome_id,
        bookmaker_id,
        direction,
        current_odds,
        opening_odds,
        current_volume,
        opening_volume,
        movement,
        last_changed_at,
        opening_changed_at,
        is_active,
        is_exchange_active,
        is_closing_line
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
    )
    ON CONFLICT (match_id, betting_type_id, scope_id, handicap_value, outcome_index, bookmaker_id, direction) DO UPDATE
    SET
        handicap_type_id   = EXCLUDED.handicap_type_id,
        outcome_id         = EXCLUDED.outcome_id,
        current_odds       = EXCLUDED.current_odds,
        opening_odds       = EXCLUDED.opening_odds,
        current_volume     = EXCLUDED.current_volume,
        opening_volume     = EXCLUDED.opening_volume,
        movement           = EXCLUDED.movement,
        last_changed_at    = EXCLUDED.last_changed_at,
        opening_changed_at = EXCLUDED.opening_changed_at,
        is_active          = EXCLUDED.is_active,
        is_exchange_active = EXCLUDED.is_exchange_active,
        is_closing_line    = EXCLUDED.is_closing_line;`

	insertHistorySQL = `INSERT INTO odds_history (
        match_id,
        betting_type_id,
        scope_id,
        outcome_key,
        bookmaker_id,
        direction,
        odds,
        volume,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (match_id, betting_type_id, scope_id, outcome_key, bookmaker_id, direction, observed_at) DO NOTHING;`

	listSnapshotsForMatchSQL = `SELECT
        match_id,
        betting_type_id,
        scope_id,
        handicap_type_id,
        handicap_value,
        outcome_index,
        outcome_id,
        bookmaker_id,
        direction,
        current_odds,
        opening_odds,
        current_volume,
        opening_volume,
        movement,
        last_changed_at,
        opening_changed_at,
        is_active,
        is_exchange_active,
        is_closing_line
    FROM odds_snapshots
    WHERE match_id = $1
    ORDER BY betting_type_id, scope_id, handicap_value, bookmaker_id, direction, outcome_index;`

	listHistoryForMatchSQL = `SELECT
        match_id,
        betting_type_id,
        scope_id,
        outcome_key,
        bookmaker_id,
        direction,
        odds,
        volume,
        observed_at
    FROM odds_history
    WHERE match_id = $1
    ORDER BY outcome_key, bookmaker_id, direction, observed_at
    LIMIT $2;`

	listMatchesForSeasonSQL = `SELECT
        match_id,
        match_url,
        season_id,
        kickoff,
        status,
        home_team,
        away_team
    FROM matches
    WHERE season_id = $1
    ORDER BY kickoff;`

	insertRunSQL = `INSERT INTO crawl_runs (
        league_url,
        started_at,
        finished_at,
        matches,
        succeeded,
        skipped,
        failed,
        snapshots,
        quality_issues,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    RETURNING id, created_at;`

	lastRunForLeagueSQL = `SELECT
        id,
        league_url,
        started_at,
        finished_at,
        matches,
        succeeded,
        skipped,
        failed,
        snapshots,
        quality_issues,
        status,
        error,
        created_at
    FROM crawl_runs
    WHERE league_url = $1
    ORDER BY started_at DESC
    LIMIT 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// CatalogStore defines operations for the league/season/match catalogue.
type CatalogStore interface {
	SaveLeague(ctx context.Context, league model.LeagueIdentity) error
	SaveSeasons(ctx context.Context, seasons []model.Season) error
	SaveMatches(ctx context.Context, matches []model.MatchRef) error
	ListMatchesForSeason(ctx context.Context, seasonID string) ([]model.MatchRef, error)
}

// OddsStore defines operations for normalized odds persistence.
type OddsStore interface {
	SaveOdds(ctx context.Context, snapshots []model.OddsSnapshot, history []model.OddsHistoryEntry) error
	ListSnapshotsForMatch(ctx context.Context, matchID string) ([]model.OddsSnapshot, error)
	ListHistoryForMatch(ctx context.Context, matchID string, limit int) ([]model.OddsHistoryEntry, error)
}

// RunStore defines operations for crawl run auditing.
type RunStore interface {
	InsertRun(ctx context.Context, run CrawlRun) (CrawlRun, error)
	LastRunForLeague(ctx context.Context, leagueURL string) (CrawlRun, bool, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the catalogue, odds records and run audit.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveLeague persists or updates a league identity.
func (s *Store) SaveLeague(ctx context.Context, league model.LeagueIdentity) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertLeagueSQL,
		league.LeagueID,
		league.SportID,
		league.CountryID,
		league.LeagueURL,
		league.IsActive,
	); execErr != nil {
		return fmt.Errorf("upsert league: %w", execErr)
	}
	return nil
}

// SaveSeasons persists or updates season rows.
func (s *Store) SaveSeasons(ctx context.Context, seasons []model.Season) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, season := range seasons {
		batch.Queue(upsertSeasonSQL,
			season.SeasonID,
			season.LeagueID,
			season.IsCurrent,
			season.HasResults,
			season.HasFixtures,
			season.SeasonURL,
		)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert seasons: %w", err)
	}
	return nil
}

// SaveMatches persists or updates match rows.
func (s *Store) SaveMatches(ctx context.Context, matches []model.MatchRef) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, match := range matches {
		batch.Queue(upsertMatchSQL,
			match.MatchID,
			match.MatchURL,
			match.SeasonID,
			match.Kickoff,
			string(match.Status),
			match.HomeTeam,
			match.AwayTeam,
		)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert matches: %w", err)
	}
	return nil
}

// ListMatchesForSeason lists stored matches for one season ordered by kickoff.
func (s *Store) ListMatchesForSeason(ctx context.Context, seasonID string) ([]model.MatchRef, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMatchesForSeasonSQL, seasonID)
	if queryErr != nil {
		return nil, fmt.Errorf("list matches for season: %w", queryErr)
	}
	defer rows.Close()

	matches := make([]model.MatchRef, 0)
	for rows.Next() {
		var m model.MatchRef
		var status string
		if err := rows.Scan(
			&m.MatchID,
			&m.MatchURL,
			&m.SeasonID,
			&m.Kickoff,
			&status,
			&m.HomeTeam,
			&m.AwayTeam,
		); err != nil {
			return nil, err
		}
		m.Status = model.MatchStatus(status)
		matches = append(matches, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return matches, nil
}

// SaveOdds persists snapshots and history from one normalized payload batch.
// Snapshots upsert on their composite key; history is append-only and
// duplicate observations are dropped.
func (s *Store) SaveOdds(ctx context.Context, snapshots []model.OddsSnapshot, history []model.OddsHistoryEntry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(snapshots) == 0 && len(history) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(upsertSnapshotSQL,
			snap.MatchID,
			snap.BettingTypeID,
			snap.ScopeID,
			snap.HandicapTypeID,
			snap.HandicapValue.String(),
			snap.OutcomeIndex,
			snap.OutcomeID,
			snap.BookmakerID,
			string(snap.Direction),
			snap.CurrentOdds.String(),
			snap.OpeningOdds.String(),
			int64Arg(snap.CurrentVolume),
			int64Arg(snap.OpeningVolume),
			string(snap.Movement),
			timeArg(snap.LastChangedAt),
			timeArg(snap.OpeningChangedAt),
			snap.IsActive,
			snap.IsExchangeActive,
			snap.IsClosingLine,
		)
	}
	for _, entry := range history {
		batch.Queue(insertHistorySQL,
			entry.MatchID,
			entry.BettingTypeID,
			entry.ScopeID,
			entry.OutcomeKey,
			entry.BookmakerID,
			string(entry.Direction),
			entry.Odds.String(),
			int64Arg(entry.Volume),
			entry.ObservedAt,
		)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save odds: %w", err)
	}
	return nil
}

// ListSnapshotsForMatch lists stored snapshots for one match.
func (s *Store) ListSnapshotsForMatch(ctx context.Context, matchID string) ([]model.OddsSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsForMatchSQL, matchID)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]model.OddsSnapshot, 0)
	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// ListHistoryForMatch lists the stored odds time series for one match,
// ordered ascending within each series.
func (s *Store) ListHistoryForMatch(ctx context.Context, matchID string, limit int) ([]model.OddsHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHistoryForMatchSQL, matchID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list history: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]model.OddsHistoryEntry, 0)
	for rows.Next() {
		var (
			entry   model.OddsHistoryEntry
			dir     string
			oddsStr string
			volume  *int64
		)
		if err := rows.Scan(
			&entry.MatchID,
			&entry.BettingTypeID,
			&entry.ScopeID,
			&entry.OutcomeKey,
			&entry.BookmakerID,
			&dir,
			&oddsStr,
			&volume,
			&entry.ObservedAt,
		); err != nil {
			return nil, err
		}
		odds, convErr := decimal.NewFromString(oddsStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse odds: %w", convErr)
		}
		entry.Direction = model.Direction(dir)
		entry.Odds = odds
		entry.Volume = volume
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// InsertRun persists a crawl run record.
func (s *Store) InsertRun(ctx context.Context, run CrawlRun) (CrawlRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return CrawlRun{}, err
	}

	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}

	row := pool.QueryRow(ctx, insertRunSQL,
		run.LeagueURL,
		run.StartedAt,
		run.FinishedAt,
		run.Matches,
		run.Succeeded,
		run.Skipped,
		run.Failed,
		run.Snapshots,
		run.QualityIssues,
		run.Status,
		errMsg,
	)
	if scanErr := row.Scan(&run.ID, &run.CreatedAt); scanErr != nil {
		return CrawlRun{}, fmt.Errorf("insert run: %w", scanErr)
	}
	return run, nil
}

// LastRunForLeague returns the most recent run for a league, if any.
func (s *Store) LastRunForLeague(ctx context.Context, leagueURL string) (CrawlRun, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return CrawlRun{}, false, err
	}

	var run CrawlRun
	row := pool.QueryRow(ctx, lastRunForLeagueSQL, leagueURL)
	if scanErr := row.Scan(
		&run.ID,
		&run.LeagueURL,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Matches,
		&run.Succeeded,
		&run.Skipped,
		&run.Failed,
		&run.Snapshots,
		&run.QualityIssues,
		&run.Status,
		&run.Error,
		&run.CreatedAt,
	); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return CrawlRun{}, false, nil
		}
		return CrawlRun{}, false, fmt.Errorf("last run for league: %w", scanErr)
	}
	return run, true, nil
}

func scanSnapshot(rows pgx.Rows) (model.OddsSnapshot, error) {
	var (
		snap        model.OddsSnapshot
		handicapStr string
		currentStr  string
		openingStr  string
		direction   string
		movement    string
		lastChanged *time.Time
		openChanged *time.Time
	)

	if err := rows.Scan(
		&snap.MatchID,
		&snap.BettingTypeID,
		&snap.ScopeID,
		&snap.HandicapTypeID,
		&handicapStr,
		&snap.OutcomeIndex,
		&snap.OutcomeID,
		&snap.BookmakerID,
		&direction,
		&currentStr,
		&openingStr,
		&snap.CurrentVolume,
		&snap.OpeningVolume,
		&movement,
		&lastChanged,
		&openChanged,
		&snap.IsActive,
		&snap.IsExchangeActive,
		&snap.IsClosingLine,
	); err != nil {
		return model.OddsSnapshot{}, err
	}

	handicap, err := decimal.NewFromString(handicapStr)
	if err != nil {
		return model.OddsSnapshot{}, fmt.Errorf("parse handicap value: %w", err)
	}
	current, err := decimal.NewFromString(currentStr)
	if err != nil {
		return model.OddsSnapshot{}, fmt.Errorf("parse current odds: %w", err)
	}
	opening, err := decimal.NewFromString(openingStr)
	if err != nil {
		return model.OddsSnapshot{}, fmt.Errorf("parse opening odds: %w", err)
	}

	snap.HandicapValue = handicap
	snap.CurrentOdds = current
	snap.OpeningOdds = opening
	snap.Direction = model.Direction(direction)
	snap.Movement = model.Movement(movement)
	if lastChanged != nil {
		snap.LastChangedAt = *lastChanged
	}
	if openChanged != nil {
		snap.OpeningChangedAt = *openChanged
	}
	return snap, nil
}

func int64Arg(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func timeArg(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
