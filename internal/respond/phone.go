package respond

import "strings"

var digitNamesHindi = [10]string{
	"shunya", "ek", "do", "teen", "chaar", "paanch", "chhe", "saat", "aath", "nau",
}

var digitNamesEnglish = [10]string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
}

// SpeakPhone renders a phone number digit by digit for TTS, grouped in fives
// so the listener can keep up: "98765 43210" becomes
// "nau aath saat chhe paanch, chaar teen do ek shunya" in Hindi register.
// Non-digit characters are skipped. Hinglish uses the Hindi digit names.
func SpeakPhone(phone string, lang Language) string {
	names := digitNamesHindi
	if lang == English {
		names = digitNamesEnglish
	}

	var words []string
	count := 0
	for _, r := range phone {
		if r < '0' || r > '9' {
			continue
		}
		if count > 0 && count%5 == 0 {
			words[len(words)-1] += ","
		}
		words = append(words, names[r-'0'])
		count++
	}
	return strings.Join(words, " ")
}
