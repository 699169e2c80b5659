package util

import (
	"strconv"
	"strings"
)

// ParseFloat parses a CSV cell; empty and "nan" cells are reported as missing.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
