package translit

import "testing"

func TestToRoman(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain latin untouched", "Rahul ka balance", "Rahul ka balance"},
		{"simple name", "भारत", "bharat"},
		{"name with matras", "राहुल", "rahul"},
		{"conjunct consonants", "लक्ष्मी", "lakshmi"},
		{"schwa deletion at word end", "रमेश", "ramesh"},
		{"devanagari digits", "५००", "500"},
		{"mixed script", "भारत ko 500 add karo", "bharat ko 500 add karo"},
		{"anusvara", "मुंबई", "munbai"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToRoman(tt.in); got != tt.want {
				t.Errorf("ToRoman(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHasDevanagari(t *testing.T) {
	if HasDevanagari("Rahul") {
		t.Error("latin-only text should not report Devanagari")
	}
	if !HasDevanagari("Rahul का") {
		t.Error("mixed text should report Devanagari")
	}
}
