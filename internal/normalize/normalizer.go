// Package normalize decodes the multi-axis odds payload into flat snapshot
// and history records. It is pure and synchronous: no I/O, no clocks, so
// normalizing the same payload twice yields identical output.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"odds-crawler/internal/errs"
	"odds-crawler/internal/model"
)

var (
	minOdds = decimal.NewFromInt(1)
	maxOdds = decimal.NewFromInt(1000)

	// Composite odds-identifier key:
	// E-{bettingTypeId}-{scopeId}-{handicapTypeId}-{handicapValue}-{mixedParameterId}
	marketKeyRe = regexp.MustCompile(`^E-(\d+)-(\d+)-(\d+)-([\d.]+)-(\d+)$`)
)

// Result is the output of normalizing one payload. Unavailable reports the
// expected not-an-error case of a non-success status (odds not opened yet,
// match cancelled); Snapshots and History are empty then.
type Result struct {
	Snapshots   []model.OddsSnapshot
	History     []model.OddsHistoryEntry
	Unavailable bool
	StatusCode  int
	// QualityIssues counts records dropped for implausible values or broken
	// structure. Dropping is always counted, never silent.
	QualityIssues []error
}

// marketKey is the parsed composite odds identifier.
type marketKey struct {
	BettingTypeID    int
	ScopeID          int
	HandicapTypeID   int
	HandicapValue    decimal.Decimal
	MixedParameterID int
}

// payloadEnvelope mirrors the top level of the wire shape.
type payloadEnvelope struct {
	S int `json:"s"`
	D struct {
		BT       json.RawMessage `json:"bt"`
		SC       json.RawMessage `json:"sc"`
		OddsData struct {
			Back    map[string]json.RawMessage `json:"back"`
			Lay     map[string]json.RawMessage `json:"lay"`
			History map[string]json.RawMessage `json:"history"`
		} `json:"oddsdata"`
		TimeBase      json.RawMessage `json:"time-base"`
		EncodeEventID json.RawMessage `json:"encodeventId"`
		Refresh       json.RawMessage `json:"refresh"`
	} `json:"d"`
}

// marketBlock mirrors one market's co-indexed per-bookmaker dictionaries.
// All of them key first by bookmaker ID, then by outcome position, except
// act which keys by bookmaker only on most markets.
type marketBlock struct {
	OutcomeID         json.RawMessage            `json:"outcomeId"`
	Odds              map[string]json.RawMessage `json:"odds"`
	Movement          map[string]json.RawMessage `json:"movement"`
	OpeningOdd        map[string]json.RawMessage `json:"openingOdd"`
	OpeningChangeTime map[string]json.RawMessage `json:"openingChangeTime"`
	Volume            map[string]json.RawMessage `json:"volume"`
	OpeningVolume     map[string]json.RawMessage `json:"openingVolume"`
	ChangeTime        map[string]json.RawMessage `json:"changeTime"`
	Act               map[string]json.RawMessage `json:"act"`
	ActEx             map[string]json.RawMessage `json:"actEx"`
}

// Normalize decodes one raw payload into snapshot and history records.
// hasStarted threads closing-line semantics into every snapshot; the payload
// alone cannot distinguish a closing line from a live one.
func Normalize(payload model.RawPayload, hasStarted bool) (Result, error) {
	var envelope payloadEnvelope
	if err := json.Unmarshal(payload.Body, &envelope); err != nil {
		return Result{}, errs.Quality("payload is not valid JSON: %v", err)
	}

	result := Result{StatusCode: envelope.S}
	if envelope.S != 1 {
		result.Unavailable = true
		return result, nil
	}

	sel := payload.Selector

	for _, dir := range []model.Direction{model.DirectionBack, model.DirectionLay} {
		blocks := envelope.D.OddsData.Back
		if dir == model.DirectionLay {
			blocks = envelope.D.OddsData.Lay
		}
		normalizeDirection(&result, sel, dir, blocks, hasStarted)
	}

	dedupeSnapshots(&result)

	normalizeHistory(&result, sel, envelope.D.OddsData.History)

	return result, nil
}

func normalizeDirection(result *Result, sel model.MarketSelector, dir model.Direction, blocks map[string]json.RawMessage, hasStarted bool) {
	for _, rawKey := range sortedKeys(blocks) {
		key, ok := parseMarketKey(rawKey)
		if !ok {
			result.QualityIssues = append(result.QualityIssues,
				errs.Quality("unrecognized market key %q (%s)", rawKey, dir))
			continue
		}

		var block marketBlock
		if err := json.Unmarshal(blocks[rawKey], &block); err != nil {
			result.QualityIssues = append(result.QualityIssues,
				errs.Quality("market %q (%s) has malformed structure: %v", rawKey, dir, err))
			continue
		}

		outcomeIDs := positionKeys(block.OutcomeID)
		normalizeMarket(result, sel, dir, key, block, outcomeIDs, hasStarted)
	}
}

// normalizeMarket zips the co-indexed dictionaries per (bookmaker, outcome
// position) pair. Partial presence is legal: a bookmaker missing from the
// volume dictionary is a non-exchange book and decodes to nil volume.
func normalizeMarket(result *Result, sel model.MarketSelector, dir model.Direction, key marketKey, block marketBlock, outcomeIDs map[int]json.RawMessage, hasStarted bool) {
	for _, bookmakerID := range sortedKeys(block.Odds) {
		oddsByPos := positionKeys(block.Odds[bookmakerID])
		if oddsByPos == nil {
			result.QualityIssues = append(result.QualityIssues,
				errs.Quality("bookmaker %s odds is not a position map (%s)", bookmakerID, dir))
			continue
		}

		movementByPos := positionKeys(block.Movement[bookmakerID])
		openingByPos := positionKeys(block.OpeningOdd[bookmakerID])
		openingTimeByPos := positionKeys(block.OpeningChangeTime[bookmakerID])
		volumeByPos := positionKeys(block.Volume[bookmakerID])
		openingVolumeByPos := positionKeys(block.OpeningVolume[bookmakerID])
		changeTimeByPos := positionKeys(block.ChangeTime[bookmakerID])
		actExByPos := positionKeys(block.ActEx[bookmakerID])

		// act arrives as one bool per bookmaker on most markets and as a
		// per-position map on exchanges; accept both.
		bookmakerActive, bookmakerActiveOK := flexBool(block.Act[bookmakerID])
		actByPos := positionKeys(block.Act[bookmakerID])

		for _, pos := range sortedPositions(oddsByPos) {
			current, ok := flexDecimal(oddsByPos[pos])
			if !ok {
				result.QualityIssues = append(result.QualityIssues,
					errs.Quality("bookmaker %s outcome %d has undecodable odds (%s)", bookmakerID, pos, dir))
				continue
			}
			if current.LessThan(minOdds) || current.GreaterThan(maxOdds) {
				result.QualityIssues = append(result.QualityIssues,
					errs.Quality("bookmaker %s outcome %d odds %s outside [1,1000] (%s)", bookmakerID, pos, current, dir))
				continue
			}

			outcomeID, ok := flexString(outcomeIDs[pos])
			if !ok {
				result.QualityIssues = append(result.QualityIssues,
					errs.Quality("outcome position %d missing from outcomeId map (%s)", pos, dir))
				continue
			}

			active := true
			if bookmakerActiveOK {
				active = bookmakerActive
			} else if v, ok := flexBool(actByPos[pos]); ok {
				active = v
			}

			snapshot := model.OddsSnapshot{
				MatchID:        sel.MatchID,
				BettingTypeID:  key.BettingTypeID,
				ScopeID:        key.ScopeID,
				HandicapTypeID: key.HandicapTypeID,
				HandicapValue:  key.HandicapValue,
				OutcomeIndex:   pos,
				OutcomeID:      outcomeID,
				BookmakerID:    bookmakerID,
				Direction:      dir,
				CurrentOdds:    current,
				Movement:       decodeMovement(movementByPos[pos]),
				CurrentVolume:  flexInt64Ptr(volumeByPos[pos]),
				OpeningVolume:  flexInt64Ptr(openingVolumeByPos[pos]),
				IsActive:       active,
				IsClosingLine:  hasStarted,
			}

			if opening, ok := flexDecimal(openingByPos[pos]); ok {
				snapshot.OpeningOdds = opening
			}
			if ts, ok := flexInt64(changeTimeByPos[pos]); ok {
				snapshot.LastChangedAt = time.Unix(ts, 0).UTC()
			}
			if ts, ok := flexInt64(openingTimeByPos[pos]); ok {
				snapshot.OpeningChangedAt = time.Unix(ts, 0).UTC()
			}
			if v, ok := flexBool(actExByPos[pos]); ok {
				snapshot.IsExchangeActive = v
			}

			result.Snapshots = append(result.Snapshots, snapshot)
		}
	}
}

// dedupeSnapshots enforces the snapshot natural key (bettingType, scope,
// handicapValue, outcomeIndex, bookmaker, direction) within one payload. Two
// market blocks differing only in mixedParameterId collide on it; the first
// in sorted key order wins and every dropped duplicate is counted.
func dedupeSnapshots(result *Result) {
	seen := make(map[string]bool, len(result.Snapshots))
	kept := result.Snapshots[:0]
	for _, snap := range result.Snapshots {
		key := fmt.Sprintf("%d|%d|%s|%d|%s|%s",
			snap.BettingTypeID, snap.ScopeID, snap.HandicapValue.String(),
			snap.OutcomeIndex, snap.BookmakerID, snap.Direction)
		if seen[key] {
			result.QualityIssues = append(result.QualityIssues,
				errs.Quality("duplicate snapshot for bookmaker %s outcome %d (%s)", snap.BookmakerID, snap.OutcomeIndex, snap.Direction))
			continue
		}
		seen[key] = true
		kept = append(kept, snap)
	}
	result.Snapshots = kept
}

// normalizeHistory decodes the history block: direction, then the opaque
// outcome key (a namespace distinct from the 0/1/2 positions), then
// bookmaker, then ordered [odds, volume, timestamp] tuples. The source does
// not guarantee tuple order, so each series is sorted ascending by
// timestamp before emission.
func normalizeHistory(result *Result, sel model.MarketSelector, history map[string]json.RawMessage) {
	for _, dirKey := range sortedKeys(history) {
		dir := model.Direction(dirKey)
		if dir != model.DirectionBack && dir != model.DirectionLay {
			continue
		}

		outcomes := keyedMap(history[dirKey])
		for _, outcomeKey := range sortedKeys(outcomes) {
			bookmakers := keyedMap(outcomes[outcomeKey])
			for _, bookmakerID := range sortedKeys(bookmakers) {
				var tuples [][]json.RawMessage
				if err := json.Unmarshal(bookmakers[bookmakerID], &tuples); err != nil {
					result.QualityIssues = append(result.QualityIssues,
						errs.Quality("history %s/%s/%s is not a tuple array: %v", dirKey, outcomeKey, bookmakerID, err))
					continue
				}

				series := make([]model.OddsHistoryEntry, 0, len(tuples))
				for i, tuple := range tuples {
					entry, err := decodeHistoryTuple(sel, dir, outcomeKey, bookmakerID, tuple)
					if err != nil {
						result.QualityIssues = append(result.QualityIssues,
							errs.Quality("history %s/%s/%s tuple %d: %v", dirKey, outcomeKey, bookmakerID, i, err))
						continue
					}
					series = append(series, entry)
				}

				sort.SliceStable(series, func(i, j int) bool {
					return series[i].ObservedAt.Before(series[j].ObservedAt)
				})
				result.History = append(result.History, series...)
			}
		}
	}
}

func decodeHistoryTuple(sel model.MarketSelector, dir model.Direction, outcomeKey, bookmakerID string, tuple []json.RawMessage) (model.OddsHistoryEntry, error) {
	if len(tuple) < 3 {
		return model.OddsHistoryEntry{}, fmt.Errorf("expected [odds, volume, timestamp], got %d elements", len(tuple))
	}

	odds, ok := flexDecimal(tuple[0])
	if !ok {
		return model.OddsHistoryEntry{}, fmt.Errorf("undecodable odds value")
	}
	if odds.LessThan(minOdds) || odds.GreaterThan(maxOdds) {
		return model.OddsHistoryEntry{}, fmt.Errorf("odds %s outside [1,1000]", odds)
	}

	ts, ok := flexInt64(tuple[2])
	if !ok {
		return model.OddsHistoryEntry{}, fmt.Errorf("undecodable timestamp")
	}

	return model.OddsHistoryEntry{
		MatchID:       sel.MatchID,
		BettingTypeID: sel.BettingTypeID,
		ScopeID:       sel.ScopeID,
		OutcomeKey:    outcomeKey,
		BookmakerID:   bookmakerID,
		Direction:     dir,
		Odds:          odds,
		Volume:        flexInt64Ptr(tuple[1]),
		ObservedAt:    time.Unix(ts, 0).UTC(),
	}, nil
}

func parseMarketKey(raw string) (marketKey, bool) {
	m := marketKeyRe.FindStringSubmatch(raw)
	if m == nil {
		return marketKey{}, false
	}
	bt, _ := strconv.Atoi(m[1])
	sc, _ := strconv.Atoi(m[2])
	ht, _ := strconv.Atoi(m[3])
	hv, err := decimal.NewFromString(m[4])
	if err != nil {
		return marketKey{}, false
	}
	mp, _ := strconv.Atoi(m[5])
	return marketKey{
		BettingTypeID:    bt,
		ScopeID:          sc,
		HandicapTypeID:   ht,
		HandicapValue:    hv,
		MixedParameterID: mp,
	}, true
}

func decodeMovement(raw json.RawMessage) model.Movement {
	s, ok := flexString(raw)
	if !ok {
		return model.MovementNone
	}
	switch s {
	case "up", "u":
		return model.MovementUp
	case "down", "d":
		return model.MovementDown
	default:
		return model.MovementNone
	}
}

// sortedKeys keeps map iteration deterministic so repeated normalization of
// one payload emits byte-identical output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedPositions(m map[int]json.RawMessage) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
