package utils

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{999, "0s"},
		{1000, "1s"},
		{61_000, "1m 1s"},
		{3_600_000, "1h"},
		{90_061_000, "1d 1h 1m 1s"},
		{86_400_000 + 5000, "1d 5s"},
		{-5, "0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.ms), "ms=%d", tt.ms)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"123456789012345678", 123456789012345678},
		{"<@123>", 123},
		{"<@!123>", 123},
		{"<#55>", 55},
		{"<@&77>", 77},
		{" 42 ", 42},
	}
	for _, tt := range tests {
		got, err := ParseID(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "abc", "<@abc>", "-1", "0", "99999999999999999999"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}
}

func TestMentions(t *testing.T) {
	assert.Equal(t, "<@5>", FormatUserMention(5))
	assert.Equal(t, "<#6>", FormatChannelMention(6))
	assert.True(t, IsUserMention("<@!5>"))
	assert.False(t, IsUserMention("<@&5>"))
	assert.False(t, IsUserMention("5"))
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `\*\*bold\*\* \_x\_ a\|b`, EscapeMarkdown("**bold** _x_ a|b"))
	assert.Equal(t, "plain", EscapeMarkdown("plain"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcd...", TruncateString("abcdefghij", 7))

	s := TruncateString("ééééééééé", 5)
	assert.True(t, utf8.ValidString(s))
	assert.Equal(t, "éé...", s)
}

func TestFormatLeaderboardEntry(t *testing.T) {
	assert.Equal(t, "🥇 alice - 1h", FormatLeaderboardEntry(1, "alice", "1h"))
	assert.Equal(t, "4. bob - 2s", FormatLeaderboardEntry(4, "bob", "2s"))
}
