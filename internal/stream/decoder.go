package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// Delimiter terminates every item on the wire.
const Delimiter = '\n'

// DefaultChunkSize is the read size used when NewDecoder is given 0.
const DefaultChunkSize = 128

var itemSanitizer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// EncodeItem returns item in wire form. Line breaks inside item become spaces
// so an item can never be split in two.
func EncodeItem(item string) []byte {
	b := make([]byte, 0, len(item)+1)
	b = append(b, itemSanitizer.Replace(item)...)
	return append(b, Delimiter)
}

// Item is one decoded wire item.
type Item struct {
	Text    string
	Frame   Frame
	IsFrame bool
}

func newItem(text string) Item {
	f, ok := ParseFrame(text)
	return Item{Text: text, Frame: f, IsFrame: ok}
}

// Assembler reassembles items from chunks cut at arbitrary byte offsets. A
// chunk may hold several items, part of one, or both; nothing is tested
// against the frame grammar until its delimiter has arrived.
type Assembler struct {
	buf []byte
}

// Feed appends chunk and returns every item it completed.
func (a *Assembler) Feed(chunk []byte) []Item {
	a.buf = append(a.buf, chunk...)
	var out []Item
	for {
		i := bytes.IndexByte(a.buf, Delimiter)
		if i < 0 {
			break
		}
		out = append(out, newItem(string(a.buf[:i])))
		a.buf = a.buf[i+1:]
	}
	if len(a.buf) == 0 {
		a.buf = nil
	}
	return out
}

// Flush returns a trailing item that never received its delimiter.
func (a *Assembler) Flush() (Item, bool) {
	if len(a.buf) == 0 {
		return Item{}, false
	}
	it := newItem(string(a.buf))
	a.buf = nil
	return it, true
}

// Decoder reads items from r in fixed-size chunks.
type Decoder struct {
	r       io.Reader
	chunk   []byte
	asm     Assembler
	pending []Item
	err     error
}

// NewDecoder returns a decoder reading chunkSize bytes at a time.
func NewDecoder(r io.Reader, chunkSize int) *Decoder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Decoder{r: r, chunk: make([]byte, chunkSize)}
}

// Next returns the next item, or io.EOF once the stream is exhausted.
func (d *Decoder) Next() (Item, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			if it, ok := d.asm.Flush(); ok {
				return it, nil
			}
			return Item{}, d.err
		}
		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.pending = append(d.pending, d.asm.Feed(d.chunk[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.EOF
			}
			d.err = err
		}
	}
	it := d.pending[0]
	d.pending = d.pending[1:]
	return it, nil
}
