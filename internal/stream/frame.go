// Package stream turns engine token callbacks into a framed, demultiplexable
// stream of words, and decodes that stream back from arbitrarily chunked bytes.
//
// On the wire every item is one line: either a word or a sentinel frame such
// as |START-<response_id>-<context>| or |END-<response_id>-<context>-<tokens>|.
package stream

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrProtocolViolation is returned by a demultiplexer that sees a START while
// already inside a response, or an END while outside one.
var ErrProtocolViolation = errors.New("stream: protocol violation")

// Kind is the leading field of a sentinel frame.
type Kind string

const (
	KindStart Kind = "START"
	KindEnd   Kind = "END"
)

// frameGrammar is the fixed frame grammar: a pipe on each end and at least one
// hyphen-separated pair of fields inside.
var frameGrammar = regexp.MustCompile(`^\|[^|]+-[^|]+\|$`)

// Frame is a decoded sentinel frame.
type Frame struct {
	Kind        Kind
	ResponseID  string
	ContextName string
	TokenCount  int // END only
}

// IsFrame reports whether s matches the frame grammar.
func IsFrame(s string) bool {
	return frameGrammar.MatchString(s)
}

// ParseFrame decodes s. ok is false when s is ordinary payload. Unknown kinds
// still parse so that consumers can skip them; context names may contain
// hyphens, response ids may not.
func ParseFrame(s string) (f Frame, ok bool) {
	if !IsFrame(s) {
		return Frame{}, false
	}
	inner := s[1 : len(s)-1]
	parts := strings.SplitN(inner, "-", 3)
	f.Kind = Kind(parts[0])
	f.ResponseID = parts[1]
	if len(parts) == 3 {
		f.ContextName = parts[2]
	}
	if f.Kind == KindEnd {
		if i := strings.LastIndexByte(f.ContextName, '-'); i >= 0 {
			if n, err := strconv.Atoi(f.ContextName[i+1:]); err == nil {
				f.TokenCount = n
				f.ContextName = f.ContextName[:i]
			}
		}
	}
	return f, true
}

// String formats f in wire form.
func (f Frame) String() string {
	if f.Kind == KindEnd {
		return EndFrame(f.ResponseID, f.ContextName, f.TokenCount)
	}
	return fmt.Sprintf("|%s-%s-%s|", f.Kind, f.ResponseID, f.ContextName)
}

// StartFrame formats the frame that opens a response window.
func StartFrame(responseID, contextName string) string {
	return fmt.Sprintf("|%s-%s-%s|", KindStart, responseID, contextName)
}

// EndFrame formats the frame that closes a response window.
func EndFrame(responseID, contextName string, tokenCount int) string {
	return fmt.Sprintf("|%s-%s-%s-%d|", KindEnd, responseID, contextName, tokenCount)
}

// IsEnd reports whether item is an END frame of any response.
func IsEnd(item string) bool {
	f, ok := ParseFrame(item)
	return ok && f.Kind == KindEnd
}
