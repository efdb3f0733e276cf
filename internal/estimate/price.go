package estimate

import (
	"strconv"
	"strings"
)

// ParsePrice keeps only digits and dots from text and parses the remainder.
// It returns nil when nothing numeric remains.
func ParsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return nil
	}
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil
	}
	return &value
}
