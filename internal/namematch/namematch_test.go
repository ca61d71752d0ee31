package namematch

import "testing"

func TestMatchLadder(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		candidate string
		wantType  MatchType
		wantScore float64
		wantOK    bool
	}{
		{"identical", "Rahul", "Rahul", MatchExact, 1.0, true},
		{"case and spacing", "  rahul ", "Rahul", MatchExact, 1.0, true},
		{"devanagari vs latin", "भारत", "Bharat", MatchExact, 1.0, true},
		{"nickname", "Raju", "Rahul", MatchNickname, 0.95, true},
		{"nickname reversed", "Rahul", "Raju", MatchNickname, 0.95, true},
		{"glued honorific", "Sureshbhai", "Suresh", MatchHonorific, 0.93, true},
		{"final h insertion", "Bharath", "Bharat", MatchPhonetic, 0.90, true},
		{"ksh x digraph", "Laxmi", "Lakshmi", MatchPhonetic, 0.90, true},
		{"v w variant", "Wivek", "Vivek", MatchPhonetic, 0.90, true},
		{"long vowel", "Deepak", "Dipak", MatchPhonetic, 0.90, true},
		{"single typo", "Mohan", "Mohna", MatchTypo, 0.80, false},
		{"shared prefix different names", "Deepak", "Deepika", MatchTypo, 0.80, false},
		{"unrelated", "Rahul", "Suresh", MatchNone, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.query, tt.candidate, DefaultThreshold)
			if got.Type != tt.wantType {
				t.Errorf("type = %s, want %s", got.Type, tt.wantType)
			}
			if got.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", got.Score, tt.wantScore)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestHonorificTokens(t *testing.T) {
	// Honorific words disappear during normalization, so "Bharat bhai"
	// matches "Bharat" exactly.
	got, ok := Match("Bharat bhai", "Bharat", DefaultThreshold)
	if !ok || got.Type != MatchExact {
		t.Errorf("got %+v ok=%v, want exact match", got, ok)
	}
}

func TestSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"Bharath", "Bharat"},
		{"Laxmi", "Lakshmi"},
		{"Raju", "Rahul"},
		{"Mohan", "Mohna"},
	}
	for _, p := range pairs {
		a, _ := Match(p[0], p[1], 0)
		b, _ := Match(p[1], p[0], 0)
		if a.Score != b.Score {
			t.Errorf("match(%s,%s)=%v but match(%s,%s)=%v",
				p[0], p[1], a.Score, p[1], p[0], b.Score)
		}
	}
}

func TestSelfMatchIsOne(t *testing.T) {
	for _, n := range []string{"Rahul", "Bharat", "Lakshmi Devi", "मोहन"} {
		if s := Score(n, n); s != 1.0 {
			t.Errorf("Score(%q, %q) = %v, want 1.0", n, n, s)
		}
	}
}

func TestShortNameTighterBound(t *testing.T) {
	// 4-char names only tolerate distance 1.
	if _, ok := Match("Ram", "Rna", 0.75); ok {
		t.Error("distance-2 on a 3-char name must not match")
	}
	if r, _ := Match("Ravi", "Rabi", 0.75); r.Type != MatchTypo {
		t.Errorf("Ravi/Rabi = %s, want typo", r.Type)
	}
}

func BenchmarkMatch(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Match("Bharath bhai", "Bharat", DefaultThreshold)
	}
}
