// Package translit converts Devanagari text into Roman phonetic form.
//
// The LLM is instructed to emit Roman script only; this table-driven
// transliterator is the safety net for names and product words that slip
// through in Devanagari ("भारत" → "bharat"). It is pure, allocation-light,
// and makes no network calls.
package translit

import (
	"strings"
	"unicode"
)

// Consonants map to their phonetic form without the inherent vowel; the
// inherent "a" is appended unless a matra or virama follows.
var consonants = map[rune]string{
	'क': "k", 'ख': "kh", 'ग': "g", 'घ': "gh", 'ङ': "n",
	'च': "ch", 'छ': "chh", 'ज': "j", 'झ': "jh", 'ञ': "n",
	'ट': "t", 'ठ': "th", 'ड': "d", 'ढ': "dh", 'ण': "n",
	'त': "t", 'थ': "th", 'द': "d", 'ध': "dh", 'न': "n",
	'प': "p", 'फ': "ph", 'ब': "b", 'भ': "bh", 'म': "m",
	'य': "y", 'र': "r", 'ल': "l", 'व': "v",
	'श': "sh", 'ष': "sh", 'स': "s", 'ह': "h",
	'ळ': "l", 'क़': "q", 'ख़': "kh", 'ग़': "g", 'ज़': "z",
	'ड़': "r", 'ढ़': "rh", 'फ़': "f", 'य़': "y",
}

// Independent vowels.
var vowels = map[rune]string{
	'अ': "a", 'आ': "a", 'इ': "i", 'ई': "i", 'उ': "u", 'ऊ': "u",
	'ऋ': "ri", 'ए': "e", 'ऐ': "ai", 'ओ': "o", 'औ': "au",
	'ऑ': "o", 'ऍ': "e",
}

// Dependent vowel signs (matras) replace the inherent "a".
var matras = map[rune]string{
	'ा': "a", 'ि': "i", 'ी': "i", 'ु': "u", 'ू': "u",
	'ृ': "ri", 'े': "e", 'ै': "ai", 'ो': "o", 'ौ': "au",
	'ॉ': "o", 'ॅ': "e",
}

// Devanagari digits.
var digits = map[rune]string{
	'०': "0", '१': "1", '२': "2", '३': "3", '४': "4",
	'५': "5", '६': "6", '७': "7", '८': "8", '९': "9",
}

const (
	virama     = '्' // suppresses the inherent vowel
	anusvara   = 'ं' // nasal: rendered "n"
	chandrabdu = 'ँ' // nasal: rendered "n"
	visarga    = 'ः' // rendered "h"
	nukta      = '़' // dropped (precomposed forms are in the table)
	avagraha   = 'ऽ' // dropped
)

// HasDevanagari reports whether s contains any Devanagari rune.
func HasDevanagari(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Devanagari, r) {
			return true
		}
	}
	return false
}

// ToRoman transliterates all Devanagari runs in s to Roman phonetic form,
// leaving non-Devanagari text untouched. The output is lowercase for the
// transliterated runs.
func ToRoman(s string) string {
	if !HasDevanagari(s) {
		return s
	}

	var out strings.Builder
	out.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if c, ok := consonants[r]; ok {
			out.WriteString(c)
			// Inherent "a" unless followed by a matra, virama, or the
			// consonant ends a word (schwa deletion: "भारत" → "bharat").
			next := rune(0)
			if i+1 < len(runes) {
				next = runes[i+1]
			}
			if next == virama {
				i++ // consume the virama, no vowel
				continue
			}
			if _, isMatra := matras[next]; isMatra {
				continue
			}
			if wordFinal(runes, i) {
				continue
			}
			out.WriteByte('a')
			continue
		}
		if v, ok := vowels[r]; ok {
			out.WriteString(v)
			continue
		}
		if m, ok := matras[r]; ok {
			out.WriteString(m)
			continue
		}
		if d, ok := digits[r]; ok {
			out.WriteString(d)
			continue
		}

		switch r {
		case anusvara, chandrabdu:
			out.WriteByte('n')
		case visarga:
			out.WriteByte('h')
		case nukta, avagraha, virama:
			// dropped
		default:
			out.WriteRune(r)
		}
	}

	return out.String()
}

// wordFinal reports whether the consonant at runes[i] is the last letter of
// its word, i.e. followed only by non-Devanagari or end of input (ignoring
// trailing nasal marks).
func wordFinal(runes []rune, i int) bool {
	for j := i + 1; j < len(runes); j++ {
		r := runes[j]
		if r == anusvara || r == chandrabdu || r == visarga {
			continue
		}
		return !unicode.Is(unicode.Devanagari, r)
	}
	return true
}
