// Package filter scans message text for banned words.
package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"warden/internal/storage"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const matchSubstring = "substring"

// Scan returns the first candidate word found in text. Candidates are the
// guild's words in insertion order, then the built-in list when enabled.
func Scan(text string, settings storage.GuildSettings) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	content := Normalize(text)
	substring := settings.MatchMode == matchSubstring

	check := func(word string) bool {
		needle := Normalize(word)
		if needle == "" {
			return false
		}
		if substring {
			return strings.Contains(content, needle)
		}
		return containsWord(content, needle)
	}

	for _, word := range settings.BannedWords {
		if check(word) {
			return strings.ToLower(word), true
		}
	}
	if settings.BanDefaultOffensive {
		for _, word := range builtinOffensive {
			if check(word) {
				return word, true
			}
		}
	}
	return "", false
}

// Normalize lower-cases input and strips combining marks, so "Café" and
// "cafe" compare equal.
func Normalize(input string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, input)
	if err != nil {
		folded = input
	}
	return strings.ToLower(folded)
}

// containsWord reports an occurrence of needle not flanked by a letter or digit.
func containsWord(content, needle string) bool {
	offset := 0
	for {
		idx := strings.Index(content[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)
		if !wordRuneBefore(content, start) && !wordRuneAfter(content, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(content[start:])
		offset = start + size
	}
}

func wordRuneBefore(content string, pos int) bool {
	if pos == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(content[:pos])
	return isWordRune(r)
}

func wordRuneAfter(content string, pos int) bool {
	if pos >= len(content) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(content[pos:])
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
