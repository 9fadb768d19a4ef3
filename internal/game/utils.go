// internal/game/utils.go
package game

import "strings"

// CleanName trims s and cuts it to MaxNameLen runes. An empty result yields fallback.
func CleanName(s, fallback string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > MaxNameLen {
		s = strings.TrimSpace(string(r[:MaxNameLen]))
	}
	if s == "" {
		return fallback
	}
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
