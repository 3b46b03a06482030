package utils

import (
	"regexp"
	"slices"
	"strings"
)

var hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// ExtractHashtags returns the distinct hashtags in text without the leading '#',
// in order of first appearance.
func ExtractHashtags(text string) []string {
	matches := hashtagPattern.FindAllString(text, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.TrimLeft(m, "#")
		if !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// StripHashtags removes every hashtag from text.
func StripHashtags(text string) string {
	return hashtagPattern.ReplaceAllString(text, "")
}

// CollapseWhitespace trims text and replaces each run of whitespace with one space.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
