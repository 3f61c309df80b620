// Package sanitize cleans message payloads before they are written to logs.
// It strips terminal escape sequences and control characters that a client
// could smuggle into a payload, masks card numbers and bounds the length.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxLogLength is the longest payload Payload returns before truncating.
const MaxLogLength = 512

var (
	// ANSI escape codes: \x1b[...m (SGR sequences) and other CSI sequences
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

	// OSC sequences: \x1b]...\x07 or \x1b]...\x1b\\
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)

	// Card numbers: 13-19 digits, optionally grouped by spaces or dashes.
	cardPattern = regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`)
)

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	s = oscPattern.ReplaceAllString(s, "")
	s = ansiPattern.ReplaceAllString(s, "")
	return s
}

// MaskCardNumbers replaces all but the last four digits of card-like numbers with '*'.
func MaskCardNumbers(s string) string {
	return cardPattern.ReplaceAllStringFunc(s, maskDigits)
}

func maskDigits(match string) string {
	digits := 0
	for _, r := range match {
		if r >= '0' && r <= '9' {
			digits++
		}
	}

	var b strings.Builder
	b.Grow(len(match))
	seen := 0
	for _, r := range match {
		if r < '0' || r > '9' {
			b.WriteRune(r)
			continue
		}
		seen++
		if seen > digits-4 {
			b.WriteRune(r)
		} else {
			b.WriteByte('*')
		}
	}
	return b.String()
}

// Payload returns a single-line, log-safe rendering of a message payload.
func Payload(b []byte) string {
	s := StripANSI(string(b))

	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		default:
			return r
		}
	}, s)

	s = MaskCardNumbers(s)

	if len(s) > MaxLogLength {
		cut := MaxLogLength
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "...(truncated)"
	}
	return s
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
