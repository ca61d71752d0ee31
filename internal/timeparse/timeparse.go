// Package timeparse turns spoken Hindi/English time phrases into concrete
// instants for the reminder scheduler.
//
// The grammar is closed and deterministic: day words (aaj/kal/parso, today/
// tomorrow), clock phrases ("7 baje", "7 pm", "19:30"), and relative phrases
// ("2 ghante baad", "in 2 hours"). Anything unparseable falls back to
// now + 1 hour. All calendar arithmetic happens in the shop's configured
// timezone; results are returned in UTC.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultHour is the local hour used when the operator names a day but no
// time ("kal yaad dilana" → tomorrow 10:00).
const DefaultHour = 10

var (
	clockRe    = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(baje|bje|pm|am|o'?clock)\b`)
	bareTimeRe = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	relHourRe  = regexp.MustCompile(`\b(?:in\s+)?(\d+)\s*(ghante|ghanta|hours?|hrs?)\s*(baad|me|mein)?\b`)
	relMinRe   = regexp.MustCompile(`\b(?:in\s+)?(\d+)\s*(minute|minutes|min|mins)\s*(baad|me|mein)?\b`)
)

// Parse resolves phrase relative to now in loc and returns the UTC instant.
// now is injected so tests can freeze the clock.
//
// Resolution rules, in order:
//  1. Relative phrases win: "2 ghante baad" → now + 2h.
//  2. A day word fixes the date: aaj/today = today, kal/tomorrow = +1 day,
//     parso = +2 days.
//  3. A clock phrase fixes the hour. "N baje" with N < 8 means evening for a
//     shopkeeper (7 baje → 19:00) unless "subah"/"morning" is present.
//  4. Day word without a time → DefaultHour local.
//  5. Time without a day word that already passed today → same time tomorrow.
//  6. Nothing recognised → now + 1 hour.
func Parse(phrase string, now time.Time, loc *time.Location) time.Time {
	text := strings.ToLower(strings.TrimSpace(phrase))
	local := now.In(loc)

	if m := relHourRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(time.Duration(n) * time.Hour).UTC()
	}
	if m := relMinRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(time.Duration(n) * time.Minute).UTC()
	}

	dayOffset, hasDay := dayWord(text)
	hour, minute, hasTime := clockPhrase(text)

	if !hasDay && !hasTime {
		return now.Add(time.Hour).UTC()
	}

	if !hasTime {
		hour, minute = DefaultHour, 0
	}

	t := time.Date(local.Year(), local.Month(), local.Day()+dayOffset,
		hour, minute, 0, 0, loc)

	// Time-only phrase that already passed → tomorrow.
	if !hasDay && !t.After(local) {
		t = t.AddDate(0, 0, 1)
	}

	return t.UTC()
}

// dayWord extracts a day offset from text. parso before kal: "parso" is the
// longer, more specific token but both could appear in compound phrases.
func dayWord(text string) (offset int, ok bool) {
	switch {
	case containsWord(text, "parso", "parson"):
		return 2, true
	case containsWord(text, "kal", "tomorrow"):
		// "kal" is ambiguous (yesterday/tomorrow); reminders only point
		// forward, so it always means tomorrow.
		return 1, true
	case containsWord(text, "aaj", "today", "tonight"):
		return 0, true
	}
	return 0, false
}

// clockPhrase extracts an hour/minute from text, applying the evening
// heuristic for "baje" phrases.
func clockPhrase(text string) (hour, minute int, ok bool) {
	if m := clockRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		if h > 23 {
			return 0, 0, false
		}
		switch m[3] {
		case "pm":
			if h < 12 {
				h += 12
			}
		case "am":
			if h == 12 {
				h = 0
			}
		default: // baje / o'clock
			if h < 8 && !morning(text) {
				h += 12
			}
		}
		return h, min, true
	}
	if m := bareTimeRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h <= 23 && min <= 59 {
			return h, min, true
		}
	}
	return 0, 0, false
}

func morning(text string) bool {
	return containsWord(text, "subah", "savere", "morning")
}

func containsWord(text string, words ...string) bool {
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, ".,!?")
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}
