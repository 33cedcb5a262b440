// Package quantity reads the number of stars a listing sells from its
// free-form title and description.
package quantity

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	Min      = 1
	Max      = 1_000_000
	Fallback = 50
)

// unitTokens is matched against lower-cased text.
const unitTokens = `(?:stars?|звёзд|звезд|зв|зір|зiр|⭐|🌟|★)`

// unitWindow bounds the non-digit noise allowed between a number and its unit.
const unitWindow = `[^0-9]{0,16}?`

var rules = []*regexp.Regexp{
	regexp.MustCompile(`(?:tg_stars|quantity|qty)\s*[:=]\s*(\d+)`),
	regexp.MustCompile(`(\d+)` + unitWindow + unitTokens),
	regexp.MustCompile(unitTokens + unitWindow + `(\d+)`),
	regexp.MustCompile(`(\d+)`),
}

// Extract returns the requested quantity. The first rule that matches wins;
// without any number the fallback of 50 is used. The result is clamped to
// [Min, Max].
func Extract(title, description string) int {
	text := strings.ToLower(title + " " + description)
	for _, re := range rules {
		if m := re.FindStringSubmatch(text); m != nil {
			return clamp(m[1])
		}
	}
	return Fallback
}

func clamp(digits string) int {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return Min
	}
	if len(digits) > len(strconv.Itoa(Max)) {
		return Max
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return Max
	}
	if n < Min {
		return Min
	}
	if n > Max {
		return Max
	}
	return n
}
