package model

import "strconv"

// Static ID-to-name tables mirroring the upstream numbering. They label
// normalized output and exports; unknown IDs fall back to a numeric label.

// Well-known betting type IDs.
const (
	BettingTypeHeadToHead     = 1
	BettingTypeOverUnder      = 2
	BettingTypeHomeAway       = 3
	BettingTypeDoubleChance   = 4
	BettingTypeAsianHandicap  = 5
	BettingTypeDrawNoBet      = 6
	BettingTypeBothTeamsScore = 13
)

// Well-known scope IDs.
const (
	ScopeFTIncludingOT = 1
	ScopeFullTime      = 2
	ScopeFirstHalf     = 3
	ScopeSecondHalf    = 4
)

var bettingTypeNames = map[int]string{
	1:  "1X2",
	2:  "Over/Under",
	3:  "Home/Away",
	4:  "Double Chance",
	5:  "Asian Handicap",
	6:  "Draw No Bet",
	7:  "To Qualify",
	8:  "Correct Score",
	9:  "Half Time / Full Time",
	10: "Odd or Even",
	11: "Winner",
	12: "European Handicap",
	13: "Both Teams to Score",
}

var scopeNames = map[int]string{
	1:  "FT including OT",
	2:  "Full Time",
	3:  "1st Half",
	4:  "2nd Half",
	5:  "1st Period",
	6:  "2nd Period",
	7:  "3rd Period",
	8:  "1st Quarter",
	9:  "2nd Quarter",
	10: "3rd Quarter",
	11: "4th Quarter",
}

var handicapTypeNames = map[int]string{
	0: "No Handicap",
	1: "Sets",
	2: "Games",
	3: "Points",
	4: "Frames",
	5: "Goals",
	6: "Runs",
	7: "Legs",
}

var bookmakerNames = map[string]string{
	"5":    "Unibet",
	"14":   "10bet",
	"16":   "bet365",
	"18":   "Pinnacle",
	"24":   "Betsafe",
	"26":   "Betway",
	"27":   "888sport",
	"33":   "NordicBet",
	"43":   "Betsson",
	"44":   "Betfair Exchange",
	"147":  "Dafabet",
	"417":  "1xBet",
	"429":  "Betfair",
	"500":  "22Bet",
	"550":  "GGBET",
	"575":  "BetInAsia",
	"635":  "BC.Game",
	"847":  "Duelbits",
	"899":  "Cloudbet",
	"909":  "Bets.io",
	"911":  "Betfury",
	"941":  "Mozzartbet",
	"997":  "Stake.com",
	"1011": "Megapari",
}

// outcomeLabels maps betting type to per-position outcome names. Cardinality
// is market dependent (two- vs. three-way) and must not be assumed fixed.
var outcomeLabels = map[int][]string{
	BettingTypeHeadToHead:     {"home", "draw", "away"},
	BettingTypeOverUnder:      {"over", "under"},
	BettingTypeHomeAway:       {"home", "away"},
	BettingTypeDoubleChance:   {"home-draw", "home-away", "draw-away"},
	BettingTypeAsianHandicap:  {"home", "away"},
	BettingTypeDrawNoBet:      {"home", "away"},
	BettingTypeBothTeamsScore: {"yes", "no"},
}

// BettingTypeName returns the display name for a betting type ID.
func BettingTypeName(id int) string {
	if name, ok := bettingTypeNames[id]; ok {
		return name
	}
	return "bt-" + strconv.Itoa(id)
}

// ScopeName returns the display name for a scope ID.
func ScopeName(id int) string {
	if name, ok := scopeNames[id]; ok {
		return name
	}
	return "scope-" + strconv.Itoa(id)
}

// HandicapTypeName returns the display name for a handicap type ID.
func HandicapTypeName(id int) string {
	if name, ok := handicapTypeNames[id]; ok {
		return name
	}
	return "ht-" + strconv.Itoa(id)
}

// BookmakerName returns the display name for a bookmaker ID.
func BookmakerName(id string) string {
	if name, ok := bookmakerNames[id]; ok {
		return name
	}
	return "bookmaker-" + id
}

// OutcomeLabel names an outcome position for a betting type, falling back to
// the bare position for markets without a known labeling.
func OutcomeLabel(bettingTypeID, position int) string {
	if labels, ok := outcomeLabels[bettingTypeID]; ok && position < len(labels) {
		return labels[position]
	}
	return "outcome-" + strconv.Itoa(position)
}
