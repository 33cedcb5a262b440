package quantity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		want        int
	}{
		{"StarEmojiAndWord", "100 ⭐ stars", "", 100},
		{"MarkerWithNoise", "Telegram Stars fast delivery tg_stars=25 cheap!!", "", 25},
		{"MarkerColon", "bundle", "tg_stars: 75", 75},
		{"MarkerBeatsUnit", "500 stars tg_stars=30", "", 30},
		{"NumberBeforeRussianUnit", "Купить 250 звёзд телеграм", "", 250},
		{"NumberBeforeShortUnit", "1000 зв", "", 1000},
		{"UnitBeforeNumber", "Stars x 40", "", 40},
		{"UnitAfterNoise", "2 packs of 100 stars", "", 100},
		{"BareNumberFallback", "pack number 7", "", 7},
		{"DescriptionOnly", "", "we sell 350 ⭐", 350},
		{"EmptyText", "", "", 50},
		{"NoNumbers", "Telegram stars", "fast and cheap", 50},
		{"ClampHigh", "99999999 stars", "", Max},
		{"ClampZero", "0 stars", "", Min},
		{"CaseInsensitive", "300 STARS", "", 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.title, tt.description))
		})
	}
}

func TestExtract_RoundTripsEveryUnitToken(t *testing.T) {
	tokens := []string{"stars", "star", "⭐", "🌟", "★", "звезд", "звёзд", "зв", "зірок"}
	quantities := []int{1, 2, 49, 50, 51, 999, 1000, 12345, 999999, 1_000_000}
	for _, token := range tokens {
		for _, q := range quantities {
			title := fmt.Sprintf("Buy %d %s now", q, token)
			assert.Equal(t, q, Extract(title, ""), "title %q", title)
		}
	}
}

func TestExtract_AlwaysWithinBounds(t *testing.T) {
	inputs := []string{
		"", " ", "⭐", "-5 stars", "00000", "1e9", "12345678901234567890 stars",
		"💫💫💫", "цена 0", "qty=0", "qty=123456789",
	}
	for _, in := range inputs {
		got := Extract(in, "")
		assert.GreaterOrEqual(t, got, Min, "input %q", in)
		assert.LessOrEqual(t, got, Max, "input %q", in)
	}
}
