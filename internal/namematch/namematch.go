// Package namematch implements the deterministic Indian-name matcher used to
// collapse spoken customer references onto known customers.
//
// Operators say the same name many ways — "Bharat bhai", "Bharath", "भारत" —
// and STT adds its own spelling drift. The matcher normalizes both inputs,
// then evaluates a fixed rule ladder and returns the highest-scoring hit
// meeting the caller's threshold. It is pure and synchronous; a single pair
// evaluates in well under a millisecond.
//
// Rule ladder (highest score wins):
//
//	exact normalized equality        → 1.00  exact
//	known nickname pair              → 0.95  nickname
//	honorific-stripped equality      → 0.93  honorific
//	phonetic-key equality            → 0.90  phonetic
//	bounded edit distance            → 0.80  typo
package namematch

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/nileshdk/bolikhata/internal/translit"
)

// DefaultThreshold is the score at or above which two names are treated as
// the same person. "Deepak" vs "Deepika" scores 0.80 (typo tier at best) and
// must not collapse at this threshold.
const DefaultThreshold = 0.85

// MatchType identifies which rule produced a score.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchNickname  MatchType = "nickname"
	MatchHonorific MatchType = "honorific"
	MatchPhonetic  MatchType = "phonetic"
	MatchTypo      MatchType = "typo"
	MatchNone      MatchType = "none"
)

// Result is the outcome of comparing two names.
type Result struct {
	Score float64
	Type  MatchType
}

// honorifics are stripped during normalization wherever they appear as a
// standalone token.
var honorifics = map[string]bool{
	"bhai": true, "ji": true, "saab": true, "sahab": true, "sahib": true,
	"bhaiya": true, "didi": true, "behen": true, "chacha": true,
	"uncle": true, "aunty": true, "sir": true, "madam": true, "shri": true,
	"smt": true, "mr": true, "mrs": true, "ms": true,
}

// nicknames maps canonical phonetic keys of common short forms to the keys
// of their full names. Lookup is symmetric.
var nicknames = [][2]string{
	{"raju", "rahul"},
	{"raju", "rajesh"},
	{"raju", "raj"},
	{"monu", "mohan"},
	{"sonu", "sohan"},
	{"chhotu", "ashok"},
	{"pappu", "pradip"},
	{"bablu", "balram"},
	{"golu", "gopal"},
	{"lakshmi", "laxmi"},
	{"vijay", "vijai"},
	{"suraj", "surya"},
	{"dipak", "dipu"},
	{"sures", "suresbhai"},
}

// Match compares the spoken query against a candidate name and returns the
// best rule hit whose score meets threshold. ok is false when no rule meets
// the threshold.
func Match(query, candidate string, threshold float64) (Result, bool) {
	qn := Normalize(query)
	cn := Normalize(candidate)
	if qn == "" || cn == "" {
		return Result{Type: MatchNone}, false
	}

	best := Result{Type: MatchNone}

	if qn == cn {
		best = Result{Score: 1.0, Type: MatchExact}
	} else if nicknameMatch(qn, cn) {
		best = Result{Score: 0.95, Type: MatchNickname}
	} else if stripHonorifics(qn) == stripHonorifics(cn) {
		best = Result{Score: 0.93, Type: MatchHonorific}
	} else if phoneticKey(qn) == phoneticKey(cn) {
		best = Result{Score: 0.90, Type: MatchPhonetic}
	} else if typoMatch(qn, cn) {
		best = Result{Score: 0.80, Type: MatchTypo}
	}

	if best.Score < threshold {
		return best, false
	}
	return best, true
}

// Score returns only the numeric score at the default threshold semantics;
// 0 when nothing matched at all.
func Score(query, candidate string) float64 {
	r, _ := Match(query, candidate, 0)
	return r.Score
}

// Normalize lowercases, transliterates Devanagari, strips honorific tokens,
// and collapses whitespace. Both matcher inputs and the customer resolver
// use this form as the comparison base.
func Normalize(name string) string {
	name = translit.ToRoman(name)
	name = strings.ToLower(strings.TrimSpace(name))

	fields := strings.Fields(name)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?")
		if f == "" || honorifics[f] {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// stripHonorifics removes honorific tokens even when they are glued to the
// name without a space ("sureshbhai" → "suresh").
func stripHonorifics(name string) string {
	for h := range honorifics {
		name = strings.TrimSuffix(name, h)
	}
	return strings.TrimSpace(name)
}

// phoneticKey reduces a normalized name to a canonical phonetic form so that
// common Indian spelling variants collide:
//
//	bharat / bharath   (final-consonant /h/ insertion)
//	laxmi / lakshmi    (x ↔ ksh digraph)
//	suresh / sures     (s ↔ sh)
//	vivek / wiwek      (v ↔ w)
//	deepak / dipak     (long-vowel digraphs)
func phoneticKey(name string) string {
	var out []string
	for _, tok := range strings.Fields(name) {
		tok = strings.ReplaceAll(tok, "x", "ksh")
		tok = strings.ReplaceAll(tok, "w", "v")
		tok = strings.ReplaceAll(tok, "ee", "i")
		tok = strings.ReplaceAll(tok, "oo", "u")
		tok = strings.ReplaceAll(tok, "aa", "a")
		tok = strings.ReplaceAll(tok, "sh", "s")
		tok = strings.ReplaceAll(tok, "chh", "ch")
		tok = strings.ReplaceAll(tok, "ph", "f")
		tok = strings.ReplaceAll(tok, "z", "j")
		// Final-consonant /h/ insertion: "bharath" → "bharat".
		if len(tok) > 3 && strings.HasSuffix(tok, "h") && !isVowel(tok[len(tok)-2]) {
			tok = tok[:len(tok)-1]
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// nicknameMatch reports whether a and b are a known nickname pair, compared
// on phonetic keys so table entries cover their spelling variants too.
func nicknameMatch(a, b string) bool {
	ka, kb := phoneticKey(a), phoneticKey(b)
	for _, pair := range nicknames {
		p0, p1 := phoneticKey(pair[0]), phoneticKey(pair[1])
		if (ka == p0 && kb == p1) || (ka == p1 && kb == p0) {
			return true
		}
	}
	return false
}

// typoMatch applies the bounded edit-distance rule: distance ≤ 2 on the
// normalized forms, same first character, and length difference ≤ 2.
// Short names (≤ 4 chars) tighten the distance bound to 1.
func typoMatch(a, b string) bool {
	if a[0] != b[0] {
		return false
	}
	la, lb := len(a), len(b)
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > 2 {
		return false
	}
	limit := 2
	if la <= 4 || lb <= 4 {
		limit = 1
	}
	return matchr.DamerauLevenshtein(a, b) <= limit
}
