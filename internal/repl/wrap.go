package repl

import (
	"regexp"
	"strings"
)

// DefaultWidth is the column at which streamed replies wrap.
const DefaultWidth = 120

var fillerPrefixes = []string{"response:", "ai:", "answer:"}

// IsFiller reports whether a streamed word is a role label the model echoed
// back, such as "AI:" or "Answer:".
func IsFiller(word string) bool {
	w := strings.ToLower(strings.TrimSpace(word))
	for _, p := range fillerPrefixes {
		if strings.HasPrefix(w, p) {
			return true
		}
	}
	return false
}

// numbered matches a word that runs into the next list item, e.g. "done.2."
var numbered = regexp.MustCompile(`^(.*?)[.: ]\d+\.`)

// Wrapper lays streamed words out in lines of at most Width columns.
type Wrapper struct {
	Width int
	col   int
}

// Add returns the text to print for word, including any line breaks, and
// a trailing space. Filler words yield "".
func (w *Wrapper) Add(word string) string {
	if IsFiller(word) {
		return ""
	}
	width := w.Width
	if width <= 0 {
		width = DefaultWidth
	}
	word = strings.ReplaceAll(word, "\n", "")

	var b strings.Builder
	if m := numbered.FindStringSubmatchIndex(word); m != nil {
		cut := m[3] + 1
		b.WriteString(word[:cut])
		b.WriteByte('\n')
		word = word[cut:]
		w.col = 0
	}
	if w.col > 0 && w.col+len(word)+1 > width {
		b.WriteByte('\n')
		w.col = 0
	}
	b.WriteString(word)
	b.WriteByte(' ')
	w.col += len(word) + 1
	return b.String()
}

// Reset starts a new line.
func (w *Wrapper) Reset() { w.col = 0 }
