// Package jsonwalk navigates decoded JSON documents of uncertain
// shape. Platform payloads change without notice; every access here
// degrades to a zero value instead of panicking.
package jsonwalk

import (
	"strconv"
	"strings"
)

// Dig walks obj along path segments. A string segment indexes a map, an
// int segment indexes a slice. Any miss returns nil.
func Dig(obj any, path ...any) any {
	for _, seg := range path {
		if obj == nil {
			return nil
		}
		switch key := seg.(type) {
		case string:
			m, ok := obj.(map[string]any)
			if !ok {
				return nil
			}
			obj = m[key]
		case int:
			s, ok := obj.([]any)
			if !ok || key < 0 || key >= len(s) {
				return nil
			}
			obj = s[key]
		default:
			return nil
		}
	}
	return obj
}

// DigString returns the string at path, or "".
func DigString(obj any, path ...any) string {
	s, _ := Dig(obj, path...).(string)
	return s
}

// DigNumber returns the number at path, or 0. JSON decoding yields
// float64 for all numbers; numeric strings are accepted too.
func DigNumber(obj any, path ...any) float64 {
	switch v := Dig(obj, path...).(type) {
	case float64:
		return v
	case string:
		n, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// DigSlice returns the slice at path, or nil.
func DigSlice(obj any, path ...any) []any {
	s, _ := Dig(obj, path...).([]any)
	return s
}

// ParseCount converts display counts like "2.9K", "1.5M", or "1,234"
// into integers. Unparseable input yields 0.
func ParseCount(v any) int64 {
	switch c := v.(type) {
	case float64:
		return int64(c)
	case int:
		return int64(c)
	case string:
		s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(c), ",", ""))
		mult := float64(1)
		switch {
		case strings.HasSuffix(s, "K"):
			mult = 1_000
			s = strings.TrimSuffix(s, "K")
		case strings.HasSuffix(s, "M"):
			mult = 1_000_000
			s = strings.TrimSuffix(s, "M")
		case strings.HasSuffix(s, "B"):
			mult = 1_000_000_000
			s = strings.TrimSuffix(s, "B")
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return int64(n * mult)
	default:
		return 0
	}
}

// antiHijackPrefix guards Facebook JSON endpoints against script
// inclusion; it must go before decoding.
const antiHijackPrefix = "for (;;);"

// StripAntiHijack removes the Facebook anti-hijacking prefix if present.
func StripAntiHijack(body []byte) []byte {
	if len(body) >= len(antiHijackPrefix) && string(body[:len(antiHijackPrefix)]) == antiHijackPrefix {
		return body[len(antiHijackPrefix):]
	}
	return body
}
