package api

import (
	"math"
	"strconv"
	"strings"
)

// intValue reads a loosely typed nutrition value. Numbers are truncated and
// strings are read up to their first non-digit; anything else is zero.
func intValue(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int64(n)
	case string:
		return leadingInt(n)
	default:
		return 0
	}
}

func leadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// boolValue reads a loosely typed flag: true, non-zero numbers and
// strings that parse as true or as a non-zero number.
func boolValue(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
		return leadingInt(b) != 0
	default:
		return false
	}
}
