package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects which half of a season's match list to enumerate.
type Mode string

const (
	ModeResults  Mode = "results"
	ModeFixtures Mode = "fixtures"
)

// MatchStatus classifies a located match.
type MatchStatus string

const (
	StatusScheduled MatchStatus = "scheduled"
	StatusLive      MatchStatus = "live"
	StatusFinished  MatchStatus = "finished"
	StatusPostponed MatchStatus = "postponed"
	StatusCancelled MatchStatus = "cancelled"
)

// Direction distinguishes conventional bookmaker odds from exchange lay odds.
type Direction string

const (
	DirectionBack Direction = "back"
	DirectionLay  Direction = "lay"
)

// Movement describes how the current odds relate to the previous quote.
type Movement string

const (
	MovementUp   Movement = "up"
	MovementDown Movement = "down"
	MovementNone Movement = "none"
)

// LeagueIdentity pins down a league discovered from its landing page.
type LeagueIdentity struct {
	SportID   int
	CountryID string
	LeagueID  string
	LeagueURL string
	IsActive  bool
}

// Season is one competition year of a league. SeasonID is "current" for the
// canonical league URL and "YYYY-YYYY" for dated archive sub-paths.
type Season struct {
	SeasonID    string
	LeagueID    string
	IsCurrent   bool
	HasResults  bool
	HasFixtures bool
	SeasonURL   string
}

// MatchRef identifies one match within a season. MatchID is the opaque
// external identifier and the natural key across re-crawls.
type MatchRef struct {
	MatchID  string
	MatchURL string
	SeasonID string
	Kickoff  time.Time
	Status   MatchStatus
	HomeTeam string
	AwayTeam string
}

// MatchAccessParams are the short-lived credentials required to call the odds
// endpoint for one match. They are re-extracted per run, never cached across
// runs. HasStarted decides closing-line vs. live-line semantics downstream.
type MatchAccessParams struct {
	MatchID         string
	SportID         int
	AccessToken     string
	ProtocolVersion string
	HasStarted      bool
}

// MarketSelector names one odds endpoint call: a (match, market, scope) tuple.
type MarketSelector struct {
	MatchID       string
	BettingTypeID int
	ScopeID       int
}

// RawPayload is one undecoded odds response together with the selector that
// produced it. Owned transiently by the run; discarded after normalization.
type RawPayload struct {
	Selector MarketSelector
	Body     json.RawMessage
}

// OddsSnapshot is the normalized per-(bookmaker, outcome) record. The
// composite (MatchID, BettingTypeID, ScopeID, HandicapValue, OutcomeIndex,
// BookmakerID, Direction) is unique within one fetch.
type OddsSnapshot struct {
	MatchID          string
	BettingTypeID    int
	ScopeID          int
	HandicapTypeID   int
	HandicapValue    decimal.Decimal
	OutcomeIndex     int
	OutcomeID        string
	BookmakerID      string
	Direction        Direction
	CurrentOdds      decimal.Decimal
	OpeningOdds      decimal.Decimal
	CurrentVolume    *int64
	OpeningVolume    *int64
	Movement         Movement
	LastChangedAt    time.Time
	OpeningChangedAt time.Time
	IsActive         bool
	IsExchangeActive bool
	IsClosingLine    bool
}

// OddsHistoryEntry is one observation in the append-only odds time series.
// OutcomeKey is the opaque history-block identifier, a distinct namespace
// from the 0/1/2 outcome position used by snapshots.
type OddsHistoryEntry struct {
	MatchID       string
	BettingTypeID int
	ScopeID       int
	OutcomeKey    string
	BookmakerID   string
	Direction     Direction
	Odds          decimal.Decimal
	Volume        *int64
	ObservedAt    time.Time
}

// HistoryKey groups history entries that belong to one time series.
func (e OddsHistoryEntry) HistoryKey() string {
	return e.MatchID + "|" + string(e.Direction) + "|" + e.OutcomeKey + "|" + e.BookmakerID
}
