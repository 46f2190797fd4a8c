package extractor

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
)

type fakeFetcher struct {
	pages map[string][]byte
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) ([]byte, error) {
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return body, nil
}

func (f *fakeFetcher) FetchData(_ context.Context, url, _ string) ([]byte, error) {
	return f.FetchPage(context.Background(), url)
}

func matchPage(eventData string) []byte {
	return []byte(`<html><body><div id="react-event-header" data='{"eventData":` + eventData + `}'></div></body></html>`)
}

func TestExtractAccessParams(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]byte{
		"https://s.test/m/one": matchPage(`{"id":"xALpGnvR","xhash":"%6f%6c%64","xhashf":"%79%65%73","sportId":1,"versionId":1,"isStarted":false}`),
	}}
	ext := New(fetcher, nil, zerolog.Nop())

	params, err := ext.Extract(context.Background(), "https://s.test/m/one")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if params.MatchID != "xALpGnvR" {
		t.Errorf("match id = %q", params.MatchID)
	}
	if params.AccessToken != "yes" {
		t.Errorf("token = %q, want percent-decoded xhashf", params.AccessToken)
	}
	if params.SportID != 1 {
		t.Errorf("sport id = %d", params.SportID)
	}
	if params.ProtocolVersion != "1" {
		t.Errorf("protocol version = %q", params.ProtocolVersion)
	}
	if params.HasStarted {
		t.Error("unstarted match marked started")
	}
}

func TestExtractFallsBackToXHash(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]byte{
		"https://s.test/m/two": matchPage(`{"id":"m2","xhash":"%6f%6c%64","xhashf":"","sportId":"3","versionId":"2","isFinished":true}`),
	}}
	ext := New(fetcher, nil, zerolog.Nop())

	params, err := ext.Extract(context.Background(), "https://s.test/m/two")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if params.AccessToken != "old" {
		t.Errorf("token = %q, want xhash fallback", params.AccessToken)
	}
	if params.SportID != 3 {
		t.Errorf("stringified sport id = %d, want 3", params.SportID)
	}
	if params.ProtocolVersion != "2" {
		t.Errorf("protocol version = %q", params.ProtocolVersion)
	}
	if !params.HasStarted {
		t.Error("finished match not marked started")
	}
}

func TestExtractEmptyTokenIsNoOdds(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]byte{
		"https://s.test/m/old": matchPage(`{"id":"m3","xhash":"","xhashf":"","sportId":1,"versionId":1}`),
	}}
	ext := New(fetcher, nil, zerolog.Nop())

	_, err := ext.Extract(context.Background(), "https://s.test/m/old")
	if !errs.IsNoOdds(err) {
		t.Fatalf("want NoOdds for empty token, got %v", err)
	}
}

func TestExtractMissingHeaderIsStructural(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]byte{
		"https://s.test/m/bare": []byte(`<html><body><p>nothing here</p></body></html>`),
	}}
	ext := New(fetcher, nil, zerolog.Nop())

	_, err := ext.Extract(context.Background(), "https://s.test/m/bare")
	if !errs.IsStructural(err) {
		t.Fatalf("want structural error for missing header, got %v", err)
	}
}

func TestExtractAppliesSubstitutionTable(t *testing.T) {
	page := []byte(`<html><body>
		<div id="react-event-header" data='{"eventData":{"id":"m4","xhashf":"%61%62%63","sportId":1,"versionId":1}}'></div>
		<script>var hashTranslate = {"a":"z","b":"y"};</script>
	</body></html>`)
	fetcher := &fakeFetcher{pages: map[string][]byte{"https://s.test/m/sub": page}}
	ext := New(fetcher, nil, zerolog.Nop())

	params, err := ext.Extract(context.Background(), "https://s.test/m/sub")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// "abc" through {"a":"z","b":"y"}; "c" passes through unmapped.
	if params.AccessToken != "zyc" {
		t.Errorf("token = %q, want zyc", params.AccessToken)
	}
}

func TestApplySubstitutionPassthrough(t *testing.T) {
	got := applySubstitution("a1b2", map[string]string{"a": "x"})
	if got != "x1b2" {
		t.Errorf("applySubstitution = %q, want x1b2", got)
	}
}
