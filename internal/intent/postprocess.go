package intent

import (
	"strconv"
	"strings"

	"github.com/nileshdk/bolikhata/internal/translit"
)

// postProcess applies the deterministic cleanup contract to a decoded
// extraction: transliteration, spoken-digit phones, numeric coercion,
// customer back-references. rawText is the original transcript, used for
// pronoun detection the model may have missed.
func postProcess(ex *Extraction, rawText string) {
	if ex.Normalized == "" {
		ex.Normalized = rawText
	}

	transliterateNames(ex.Entities)
	normalizePhone(ex.Entities)
	coerceNumbers(ex.Entities)

	// Customer falls back to a bare "name" entity.
	if !ex.Entities.Has("customer") && ex.Entities.Has("name") {
		ex.Entities["customer"] = ex.Entities["name"]
	}

	if referencesActiveCustomer(rawText) && !ex.Entities.Has("customer") {
		ex.Entities["customerRef"] = "active"
	}
}

// nameFields are entity keys that may carry Devanagari the matcher cannot
// handle; they are transliterated to Roman phonetic form.
var nameFields = []string{"customer", "name", "product"}

func transliterateNames(e Entities) {
	for _, key := range nameFields {
		if v, ok := e[key].(string); ok && translit.HasDevanagari(v) {
			e[key] = translit.ToRoman(v)
		}
	}
	if raw, ok := e["items"].([]any); ok {
		for _, entry := range raw {
			if m, ok := entry.(map[string]any); ok {
				if v, ok := m["product"].(string); ok && translit.HasDevanagari(v) {
					m["product"] = translit.ToRoman(v)
				}
			}
		}
	}
}

// digitWords maps spoken digit words (Hindi and English) to their digit.
var digitWords = map[string]byte{
	"zero": '0', "shunya": '0', "sunya": '0',
	"one": '1', "ek": '1',
	"two": '2', "do": '2',
	"three": '3', "teen": '3', "tin": '3',
	"four": '4', "char": '4', "chaar": '4',
	"five": '5', "panch": '5', "paanch": '5', "pach": '5',
	"six": '6', "chhe": '6', "che": '6', "cheh": '6', "chah": '6',
	"seven": '7', "saat": '7', "sat": '7',
	"eight": '8', "aath": '8', "ath": '8',
	"nine": '9', "nau": '9',
}

// normalizePhone converts a spoken phone entity ("nau eight saat ...") into
// a plain digit string. Values that do not yield 10–15 digits are reduced to
// whatever digits they already contained, or dropped.
func normalizePhone(e Entities) {
	raw, ok := e["phone"].(string)
	if !ok {
		// Models sometimes emit phones as numbers; render without exponent.
		if f, isNum := e["phone"].(float64); isNum {
			raw = strconv.FormatFloat(f, 'f', -1, 64)
		} else {
			return
		}
	}

	digits := ParseSpokenDigits(raw)
	if len(digits) >= 10 && len(digits) <= 15 {
		e["phone"] = digits
		return
	}
	if digits == "" {
		delete(e, "phone")
		return
	}
	e["phone"] = digits
}

// ParseSpokenDigits flattens a mix of digit words and literal digits into a
// digit string: "nau eight 7 six 543210" → "9876543210". Every token
// contributes its digits in order; non-digit noise is dropped.
func ParseSpokenDigits(s string) string {
	var out strings.Builder
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '-' || r == ',' || r == '.'
	}) {
		if d, ok := digitWords[tok]; ok {
			out.WriteByte(d)
			continue
		}
		for _, r := range tok {
			if r >= '0' && r <= '9' {
				out.WriteRune(r)
			}
		}
	}
	return out.String()
}

// numericFields are entity keys that must be numbers after post-processing.
var numericFields = []string{"amount", "quantity", "openingBalance", "price", "otp"}

func coerceNumbers(e Entities) {
	for _, key := range numericFields {
		v, ok := e[key].(string)
		if !ok {
			continue
		}
		cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(v, "₹", ""), ",", ""))
		if key == "otp" {
			// OTPs keep leading zeroes; only strip decoration.
			if cleaned != "" {
				e[key] = cleaned
			}
			continue
		}
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			e[key] = f
		}
	}
	if raw, ok := e["items"].([]any); ok {
		for _, entry := range raw {
			if m, ok := entry.(map[string]any); ok {
				if v, isStr := m["quantity"].(string); isStr {
					if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
						m["quantity"] = f
					}
				}
			}
		}
	}
}

// activeRefPatterns are back-references to the customer under discussion.
var activeRefPatterns = []string{
	"uska", "uski", "usko", "usse", "unka", "unko",
	"iska", "iski", "isko",
	"wahi customer", "same customer", "pichla customer", "us customer",
	"usi customer", "him", "her", "unhe",
}

func referencesActiveCustomer(text string) bool {
	lower := " " + strings.ToLower(text) + " "
	for _, p := range activeRefPatterns {
		if strings.Contains(lower, " "+p+" ") {
			return true
		}
	}
	return false
}

// balancedObject returns the first balanced top-level {...} in s, tolerating
// string literals with embedded braces.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
