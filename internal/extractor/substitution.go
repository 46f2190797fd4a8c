package extractor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Some page variants ship the token through one more indirection: a literal
// character-to-character mapping emitted into script content. The mapping is
// page data, not a secret; decoding it is plain string processing.

var substitutionTableRe = regexp.MustCompile(`var\s+hashTranslate\s*=\s*(\{[^}]*\})`)

// parseSubstitutionTable scans the page scripts for the translation table.
// Returns nil when the page variant does not use one.
func parseSubstitutionTable(doc *goquery.Document) map[string]string {
	var table map[string]string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		m := substitutionTableRe.FindStringSubmatch(sel.Text())
		if m == nil {
			return true
		}
		var parsed map[string]string
		if err := json.Unmarshal([]byte(m[1]), &parsed); err != nil {
			return true
		}
		if len(parsed) > 0 {
			table = parsed
			return false
		}
		return true
	})
	return table
}

// applySubstitution maps each character through the table, passing through
// characters the table does not cover.
func applySubstitution(token string, table map[string]string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range token {
		if replacement, ok := table[string(r)]; ok {
			b.WriteString(replacement)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
