package stream

import (
	"strings"
	"unicode"
)

// rolePrefix is an artifact some chat models emit at the start of a reply.
const rolePrefix = "AI:"

// emoji covers pictographs, dingbats, flags, skin tones, and the joiners and
// selectors used to compose them.
var emoji = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200d, Hi: 0x200d, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2b50, Hi: 0x2b55, Stride: 1},
		{Lo: 0xfe0e, Hi: 0xfe0f, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
		{Lo: 0xe0020, Hi: 0xe007f, Stride: 1},
	},
}

// NormalizeWord cleans one coalesced word before it is framed: surrounding
// whitespace, a leading "AI:" and emoji are removed, and markdown emphasis is
// rewritten so *word* becomes <word>. A word that would read as a frame loses
// its outer pipes.
func NormalizeWord(word string) string {
	w := strings.TrimSpace(word)
	w = strings.TrimPrefix(w, rolePrefix)
	w = stripEmoji(w)
	w = strings.TrimSpace(w)
	w = emphasis(w)
	if IsFrame(w) {
		w = strings.Trim(w, "|")
	}
	return w
}

func stripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(emoji, r) {
			return -1
		}
		return r
	}, s)
}

func emphasis(w string) string {
	switch {
	case len(w) >= 2 && strings.HasPrefix(w, "*") && strings.HasSuffix(w, "*"):
		return "<" + w[1:len(w)-1] + ">"
	case strings.HasPrefix(w, "*"):
		return "<" + w[1:]
	case strings.HasSuffix(w, "*"):
		return w[:len(w)-1] + ">"
	}
	return w
}
