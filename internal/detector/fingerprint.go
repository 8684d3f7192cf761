package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize canonicalises code before fingerprinting: CRLF line endings
// become LF, trailing whitespace is removed from every line and leading or
// trailing blank lines are dropped.
func Normalize(code string) string {
	lines := splitLines(code)
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\f\v")
	}

	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// Fingerprint returns the hex SHA-256 digest of the normalized code. Two
// submissions that differ only in line endings or trailing whitespace share
// a fingerprint.
func Fingerprint(code string) string {
	sum := sha256.Sum256([]byte(Normalize(code)))
	return hex.EncodeToString(sum[:])
}
