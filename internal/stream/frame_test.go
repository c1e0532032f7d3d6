package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFrame(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"|START-abcd1234-c1|", true},
		{"|END-abcd1234-c1-12|", true},
		{"|a-b|", true},
		{"|ab|", false},
		{"|-b|", false},
		{"hello", false},
		{"|START-abc", false},
		{"x|START-abc-c|", false},
		{"|a|b-c|", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsFrame(tt.in), tt.in)
	}
}

func TestParseFrame_WhenStart_ShouldExtractFields(t *testing.T) {
	f, ok := ParseFrame(StartFrame("abcd1234", "my-context"))
	require.True(t, ok)
	assert.Equal(t, KindStart, f.Kind)
	assert.Equal(t, "abcd1234", f.ResponseID)
	assert.Equal(t, "my-context", f.ContextName)
}

func TestParseFrame_WhenEnd_ShouldExtractTokenCountFromLastField(t *testing.T) {
	f, ok := ParseFrame(EndFrame("abcd1234", "user-host", 42))
	require.True(t, ok)
	assert.Equal(t, KindEnd, f.Kind)
	assert.Equal(t, "abcd1234", f.ResponseID)
	assert.Equal(t, "user-host", f.ContextName)
	assert.Equal(t, 42, f.TokenCount)
	assert.Equal(t, "|END-abcd1234-user-host-42|", f.String())
}

func TestParseFrame_WhenWord_ShouldReturnFalse(t *testing.T) {
	_, ok := ParseFrame("hello-world")
	assert.False(t, ok)
}

func TestIsEnd(t *testing.T) {
	assert.True(t, IsEnd(EndFrame("id", "c", 0)))
	assert.False(t, IsEnd(StartFrame("id", "c")))
	assert.False(t, IsEnd("END"))
}
