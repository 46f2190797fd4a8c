// Package extractor recovers the session parameters an odds-endpoint call
// needs from a match page. The access token arrives percent-encoded and, on
// some page variants, additionally passed through a substitution alphabet
// that the page itself serves in script content. There is no secret key
// involved, only a fragile coupling to page structure.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
	"odds-crawler/internal/model"
	"odds-crawler/internal/scraping"
)

// TokenExtractor recovers the access token from a parsed match page. The
// heuristic is swappable without touching the pipeline.
type TokenExtractor interface {
	ExtractToken(doc *goquery.Document, header EventHeader) (string, error)
}

// EventHeader mirrors the event metadata block embedded on the match page.
type EventHeader struct {
	ID          string          `json:"id"`
	XHash       string          `json:"xhash"`
	XHashF      string          `json:"xhashf"`
	SportID     json.RawMessage `json:"sportId"`
	VersionID   json.RawMessage `json:"versionId"`
	IsStarted   bool            `json:"isStarted"`
	IsLive      bool            `json:"isLive"`
	IsFinished  bool            `json:"isFinished"`
	IsPostponed bool            `json:"isPostponed"`
	Home        string          `json:"home"`
	Away        string          `json:"away"`
}

// Extractor turns a match URL into MatchAccessParams.
type Extractor struct {
	fetcher scraping.PageFetcher
	tokens  TokenExtractor
	logger  zerolog.Logger
}

// New constructs an Extractor. A nil tokens argument installs the default
// header-based strategy.
func New(fetcher scraping.PageFetcher, tokens TokenExtractor, logger zerolog.Logger) *Extractor {
	if tokens == nil {
		tokens = HeaderTokenExtractor{}
	}
	return &Extractor{
		fetcher: fetcher,
		tokens:  tokens,
		logger:  logger.With().Str("component", "extractor").Logger(),
	}
}

// Extract fetches the match page and pulls out the odds-endpoint parameters.
// An empty recovered token means the match is too old or delisted and
// surfaces as a NoOddsError so batch runs skip and continue.
func (e *Extractor) Extract(ctx context.Context, matchURL string) (model.MatchAccessParams, error) {
	body, err := e.fetcher.FetchPage(ctx, matchURL)
	if err != nil {
		return model.MatchAccessParams{}, fmt.Errorf("fetch match page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.MatchAccessParams{}, errs.Structural("extractor", "match page is not parseable HTML: %v", err)
	}

	header, err := parseEventHeader(doc)
	if err != nil {
		return model.MatchAccessParams{}, err
	}

	token, err := e.tokens.ExtractToken(doc, header)
	if err != nil {
		return model.MatchAccessParams{}, err
	}
	if token == "" {
		return model.MatchAccessParams{}, errs.NoOdds(header.ID, "match page exposes no access token")
	}

	params := model.MatchAccessParams{
		MatchID:         header.ID,
		SportID:         flexInt(header.SportID, 0),
		AccessToken:     token,
		ProtocolVersion: flexString(header.VersionID, "1"),
		HasStarted:      header.IsStarted || header.IsLive || header.IsFinished,
	}
	if params.MatchID == "" {
		return model.MatchAccessParams{}, errs.Structural("extractor", "event header carries no match id on %s", matchURL)
	}
	if params.SportID == 0 {
		return model.MatchAccessParams{}, errs.Structural("extractor", "event header carries no sport id on %s", matchURL)
	}

	e.logger.Debug().
		Str("match_id", params.MatchID).
		Bool("has_started", params.HasStarted).
		Msg("access params extracted")

	return params, nil
}

func parseEventHeader(doc *goquery.Document) (EventHeader, error) {
	raw, ok := doc.Find("#react-event-header").Attr("data")
	if !ok || strings.TrimSpace(raw) == "" {
		return EventHeader{}, errs.Structural("extractor", "react event header component missing")
	}

	var wrapper struct {
		EventData EventHeader `json:"eventData"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		return EventHeader{}, errs.Structural("extractor", "event header data is not valid JSON: %v", err)
	}
	return wrapper.EventData, nil
}

// flexInt accepts IDs serialized either as numbers or as strings.
func flexInt(raw json.RawMessage, fallback int) int {
	if len(raw) == 0 {
		return fallback
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, perr := strconv.Atoi(s); perr == nil {
			return parsed
		}
	}
	return fallback
}

func flexString(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
		return n.String()
	}
	return fallback
}

// HeaderTokenExtractor is the default strategy: prefer the encoded xhashf
// field, fall back to xhash, percent-decode, and if the page serves a
// substitution table, run the decoded value through it.
type HeaderTokenExtractor struct{}

// ExtractToken implements TokenExtractor.
func (HeaderTokenExtractor) ExtractToken(doc *goquery.Document, header EventHeader) (string, error) {
	encoded := header.XHashF
	if encoded == "" {
		encoded = header.XHash
	}
	if encoded == "" {
		return "", nil
	}

	token, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", errs.Structural("extractor", "access token is not percent-decodable: %v", err)
	}

	if table := parseSubstitutionTable(doc); table != nil {
		token = applySubstitution(token, table)
	}
	return token, nil
}

var _ TokenExtractor = HeaderTokenExtractor{}
