package llm

import (
	"bufio"
	"io"
	"strings"
)

// sseScanner reads the data payloads of a Server-Sent Events stream. Event
// types and comments are ignored; multi-line data is joined with newlines.
type sseScanner struct {
	reader *bufio.Reader
	data   string
	err    error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event carrying data.
func (s *sseScanner) Next() bool {
	if s.err != nil {
		return false
	}
	var lines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if len(lines) > 0 {
				s.data = strings.Join(lines, "\n")
				return true
			}
			return false
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(lines) > 0 {
				s.data = strings.Join(lines, "\n")
				return true
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field == "data" {
			lines = append(lines, strings.TrimPrefix(value, " "))
		}
	}
}

// Data returns the payload of the current event.
func (s *sseScanner) Data() string { return s.data }

// Err returns the first non-EOF read error.
func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
