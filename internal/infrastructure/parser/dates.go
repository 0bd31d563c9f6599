package parser

import (
	"regexp"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// dateLayout pairs a layout with whether it carries a time of day.
type dateLayout struct {
	layout  string
	hasTime bool
}

// Tried in order; the first layout that parses wins. Layouts with a zone
// abbreviation (MST) are left out: time.Parse gives unknown abbreviations a
// zero offset, so abbreviations are resolved through zoneOffsets instead.
var dateLayouts = []dateLayout{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05Z0700", true},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02 15:04", true},
	{isoDate, false},
	{time.RFC1123Z, true},
	{time.RFC822Z, true},
	{"Mon, 2 Jan 2006 15:04:05 -0700", true},
	{"Mon, 02 Jan 2006 15:04:05", true},
	{"Mon, 2 Jan 2006 15:04:05", true},
	{"Monday, 02-Jan-06 15:04:05", true},
	{"02 Jan 06 15:04", true},
	{"Monday, January 2, 2006 3:04 PM", true},
	{"Monday, January 2, 2006", false},
	{"January 2, 2006 3:04 PM", true},
	{"January 2, 2006 15:04", true},
	{"Jan 2, 2006 3:04 PM", true},
	{"Jan 2, 2006 15:04", true},
	{"January 2, 2006", false},
	{"Jan 2, 2006", false},
	{"2 January 2006 15:04", true},
	{"2 January 2006", false},
	{"2 Jan 2006", false},
	{"02 Jan 2006", false},
	{"Jan 02 2006", false},
	{"2006/01/02", false},
	{"02.01.2006", false},
}

// zoneOffsets resolves the abbreviations news sites print after a time of
// day. IST is India Standard Time.
var zoneOffsets = map[string]int{
	"UTC":  0,
	"GMT":  0,
	"Z":    0,
	"IST":  5*3600 + 1800,
	"PKT":  5 * 3600,
	"WIB":  7 * 3600,
	"SGT":  8 * 3600,
	"HKT":  8 * 3600,
	"JST":  9 * 3600,
	"AEST": 10 * 3600,
	"AEDT": 11 * 3600,
	"BST":  1 * 3600,
	"CET":  1 * 3600,
	"CEST": 2 * 3600,
	"EET":  2 * 3600,
	"EEST": 3 * 3600,
	"EST":  -5 * 3600,
	"EDT":  -4 * 3600,
	"CST":  -6 * 3600,
	"CDT":  -5 * 3600,
	"MST":  -7 * 3600,
	"MDT":  -6 * 3600,
	"PST":  -8 * 3600,
	"PDT":  -7 * 3600,
}

var (
	datePrefix   = regexp.MustCompile(`(?i)^(published|updated|posted|last updated|date|on)\s*(on)?\s*[:\-]?\s*`)
	embeddedDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?)?`)
	// an abbreviation right after a time of day, e.g. "May 3, 2024, 10:15 IST"
	trailingZone = regexp.MustCompile(`(\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp][Mm])?)\s+\(?([A-Z]{1,5})\)?$`)
)

// dateCandidate is a string to try against dateLayouts in loc.
type dateCandidate struct {
	text string
	loc  *time.Location
}

// NormalizeDate returns a canonical ISO-8601 rendering of raw and true when a
// known format is recognised; otherwise the trimmed raw text and false. The
// input is never replaced with a fabricated value: a time followed by an
// unknown zone abbreviation is left unparsed.
func NormalizeDate(raw string) (string, bool) {
	trimmed := collapseSpace(raw)
	if trimmed == "" {
		return "", false
	}

	candidates, ok := dateCandidates(trimmed)
	if !ok {
		return trimmed, false
	}
	for _, c := range candidates {
		if v, ok := parseLayouts(c.text, c.loc); ok {
			return v, true
		}
	}
	return trimmed, false
}

// dateCandidates lists the variants of s worth parsing. It reports false when
// s ends in a zone abbreviation missing from zoneOffsets.
func dateCandidates(s string) ([]dateCandidate, bool) {
	candidates := []dateCandidate{{text: s, loc: time.UTC}}

	stripped := datePrefix.ReplaceAllString(s, "")
	stripped = strings.Trim(stripped, " ,|")
	if stripped != s && stripped != "" {
		candidates = append(candidates, dateCandidate{text: stripped, loc: time.UTC})
	}

	if m := trailingZone.FindStringSubmatchIndex(stripped); m != nil && !isMeridiem(stripped[m[4]:m[5]]) {
		abbr := stripped[m[4]:m[5]]
		offset, known := zoneOffsets[abbr]
		if !known {
			return nil, false
		}
		loc := time.FixedZone(abbr, offset)
		noZone := strings.TrimRight(stripped[:m[3]], " ,")
		candidates = append(candidates, dateCandidate{text: noZone, loc: loc})
		if i := strings.LastIndex(noZone, ","); i > 0 {
			candidates = append(candidates, dateCandidate{text: noZone[:i] + noZone[i+1:], loc: loc})
		}
	}

	if m := embeddedDate.FindString(s); m != "" && m != s {
		candidates = append(candidates, dateCandidate{text: m, loc: time.UTC})
	}
	return candidates, true
}

func isMeridiem(s string) bool {
	return s == "AM" || s == "PM"
}

func parseLayouts(s string, loc *time.Location) (string, bool) {
	for _, l := range dateLayouts {
		t, err := time.ParseInLocation(l.layout, s, loc)
		if err != nil {
			continue
		}
		if !l.hasTime {
			return t.Format(isoDate), true
		}
		return t.UTC().Format(time.RFC3339), true
	}
	return "", false
}

// parseISOInstant parses a normalised value back into a time.
func parseISOInstant(v string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.Parse(isoDate, v); err == nil {
		return t, true
	}
	return time.Time{}, false
}
