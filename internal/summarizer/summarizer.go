// Package summarizer compacts assistant replies before they are stored in a
// context's history.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"llmhub/internal/domain"
)

const (
	// extractiveSentences is how many top-scoring sentences are kept.
	extractiveSentences = 3
	// minAbstractiveWords is the shortest input worth sending to the engine.
	minAbstractiveWords = 10
	abstractivePrompt   = "Summarize the following text in at most three sentences.\n\nText:\n%s\n\nSummary:"
)

// Service implements domain.Summarizer. The abstractive kind reuses the
// shared engine; it is always called from inside a predict, so it stays on
// the dispatcher goroutine.
type Service struct {
	engine domain.Engine
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New returns a summarizer. engine may be nil, in which case abstractive
// summaries fall back to extractive ones.
func New(engine domain.Engine, opts ...Option) *Service {
	s := &Service{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Summarize implements domain.Summarizer. It never fails on empty or short input.
func (s *Service) Summarize(ctx context.Context, kind domain.SummarizerKind, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	switch kind {
	case domain.SummarizerExtractive:
		return Extractive(text, extractiveSentences), nil
	case domain.SummarizerAbstractive:
		return s.abstractive(ctx, text)
	default:
		return text, nil
	}
}

func (s *Service) abstractive(ctx context.Context, text string) (string, error) {
	if len(strings.Fields(text)) < minAbstractiveWords {
		return text, nil
	}
	if s.engine == nil {
		return Extractive(text, extractiveSentences), nil
	}
	s.log().Info("abstractive summary", "input_len", len(text))
	out, err := s.engine.Invoke(ctx, fmt.Sprintf(abstractivePrompt, text), nil)
	if err != nil {
		return "", fmt.Errorf("abstractive summary: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return text, nil
	}
	return out, nil
}

// Extractive keeps the n sentences with the highest keyword weight, in their
// original order. Keyword weight is the normalized frequency of every
// non-stopword in the text.
func Extractive(text string, n int) string {
	sentences := SplitSentences(text)
	if len(sentences) <= n {
		return strings.Join(sentences, " ")
	}

	freq := map[string]float64{}
	maxFreq := 0.0
	for _, sent := range sentences {
		for _, w := range keywords(sent) {
			freq[w]++
			if freq[w] > maxFreq {
				maxFreq = freq[w]
			}
		}
	}
	if maxFreq == 0 {
		return strings.Join(sentences[:n], " ")
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		scores[i].idx = i
		for _, w := range keywords(sent) {
			scores[i].score += freq[w] / maxFreq
		}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })
	top := scores[:n]
	sort.Slice(top, func(a, b int) bool { return top[a].idx < top[b].idx })

	out := make([]string, 0, n)
	for _, sc := range top {
		out = append(out, sentences[sc.idx])
	}
	return strings.Join(out, " ")
}

// SplitSentences cuts text after '.', '!' or '?' followed by whitespace.
func SplitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func keywords(sentence string) []string {
	fields := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

var _ domain.Summarizer = (*Service)(nil)
