package dialog

import (
	"strconv"
	"strings"
)

const star = "⭐"

// ParseRating reads a rating token: a run of star emoji or a plain number.
// The value is not range-checked here.
func ParseRating(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n, true
	}
	// Emoji keyboards often append U+FE0F to each star.
	rest := strings.NewReplacer("\ufe0f", "", " ", "").Replace(text)
	n := strings.Count(rest, star)
	if n == 0 || strings.ReplaceAll(rest, star, "") != "" {
		return 0, false
	}
	return n, true
}

// RatingOptions returns the rating keyboard: one to five stars, then Skip.
func RatingOptions() []string {
	opts := make([]string, 0, 6)
	for i := 1; i <= 5; i++ {
		opts = append(opts, strings.Repeat(star, i))
	}
	return append(opts, LabelSkip)
}
