package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHashtags(t *testing.T) {
	tags := ExtractHashtags("Here is a #test caption with multiple #tags and #123numbers")
	assert.Equal(t, []string{"test", "tags", "123numbers"}, tags)
}

func TestExtractHashtags_Repeated(t *testing.T) {
	assert.Equal(t, []string{"sun", "sea", "Sun"}, ExtractHashtags("#sun and #sea, more #sun #Sun #sea"))
}

func TestExtractHashtags_None(t *testing.T) {
	tags := ExtractHashtags("no tags here")
	assert.NotNil(t, tags)
	assert.Empty(t, tags)
}

func TestExtractHashtags_Unicode(t *testing.T) {
	assert.Equal(t, []string{"café", "日本"}, ExtractHashtags("#café and #日本"))
}

func TestStripHashtags(t *testing.T) {
	assert.Equal(t, "Sunset  ", StripHashtags("Sunset #beach #sky"))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n\t b   c  "))
	assert.Equal(t, "", CollapseWhitespace(" \n "))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", TruncateRunes("héllo", 4))
	assert.Equal(t, "hi", TruncateRunes("hi", 4))
}
