package tsoracle

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Normalization rule for the context hash, applied identically by every
// consumer that dedups TS functions:
//  1. strip C comments (block and line),
//  2. collapse all whitespace runs to a single space,
//  3. trim leading/trailing whitespace,
//  4. SHA-256.
// No token rewriting, no constant folding.

var (
	commentRe    = regexp.MustCompile(`(?s)/\*.*?\*/|//[^\n]*`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeText applies the context-hash normalization to raw C source.
func NormalizeText(raw []byte) []byte {
	text := string(raw)
	text = commentRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	return []byte(text)
}

// ContextHash normalizes and hashes a function span.
func ContextHash(raw []byte) string {
	sum := sha256.Sum256(NormalizeText(raw))
	return hex.EncodeToString(sum[:])
}

// RawHash hashes exact span bytes with no normalization.
func RawHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
