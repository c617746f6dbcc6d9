package names

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"animals", "animals"},
		{"Mein Deck", "Mein_Deck"},
		{"a  ...  b", "a_b"},
		{"schön!", "sch_n_"},
		{"  trimmed  ", "trimmed"},
		{"under_score-ok", "under_score-ok"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Sanitize(tc.in), tc.in)
	}
}

func TestSanitize_Truncates(t *testing.T) {
	long := strings.Repeat("x", 80)
	assert.Len(t, Sanitize(long), MaxLen)
}

func TestSanitize_Idempotent(t *testing.T) {
	for _, in := range []string{"Mein Deck", "a..b..c", "übung macht den Meister"} {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), in)
	}
}

func TestTTSSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hund", "Hund"},
		{"Der Hund bellt.", "Der_Hund_bellt"},
		{"schläft", "schl_ft"},
		{"...", "tts"},
		{"", "tts"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, TTSSegment(tc.in), tc.in)
	}
}
