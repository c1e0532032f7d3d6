// Package repl is the interactive console client: it keeps a set of named
// conversations on one hub and streams replies as they are generated.
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"llmhub/internal/client"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	// One color per context, handed out in creation order.
	palette = []lipgloss.Color{"2", "6", "5", "10", "12", "15", "1", "9"}
)

const helpText = `.quit, .q                 leave
.help                     this text
.info model|context       engine or current context details
.restart                  restart the hub and start over with the default context
.start <name> [history]   create a context and switch to it
.switch, .sw <name>       switch to a context started in this session
.forget                   erase the current context's history
.history                  show the current context's history
.prompt [text]            set (or clear) the system prompt
.del <name>               delete a context other than the current one
.template show            show the current template or last rendered prompt
.template load [file]     load a template file (defaults to the last one)
.list                     list the hub's contexts
.cls                      clear the screen
.ask [n [m]]              ask the next question, question n, or n through m`

var needsContext = map[string]bool{
	".forget": true, ".history": true, ".prompt": true, ".template": true, ".del": true,
}

// LineReader reads one line of input. *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

type conversation struct {
	client *client.ContextClient
	style  lipgloss.Style
}

// Option configures a Session.
type Option func(*Session)

// WithQuestions preloads the questions used by .ask.
func WithQuestions(q []string) Option {
	return func(s *Session) { s.questions = q }
}

// WithWidth sets the wrap column of streamed replies.
func WithWidth(n int) Option {
	return func(s *Session) { s.wrap.Width = n }
}

// WithClientOptions passes options to every hub client the session makes.
func WithClientOptions(opts ...client.Option) Option {
	return func(s *Session) { s.clientOpts = append(s.clientOpts, opts...) }
}

// Session holds every piece of console state.
type Session struct {
	baseURL     string
	out         io.Writer
	llm         *client.LLMClient
	clientOpts  []client.Option
	defaultName string

	contexts map[string]*conversation
	started  int
	current  string

	questions []string
	qIndex    int
	qStart    int
	qEnd      int
	auto      bool

	wrap Wrapper
}

// NewSession returns a session talking to the hub at baseURL. defaultName
// is the context created at startup and after .restart.
func NewSession(baseURL, defaultName string, out io.Writer, opts ...Option) *Session {
	s := &Session{
		baseURL:     baseURL,
		out:         out,
		defaultName: defaultName,
		contexts:    map[string]*conversation{},
		wrap:        Wrapper{Width: DefaultWidth},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.llm = client.NewLLMClient(baseURL, s.clientOpts...)
	s.qEnd = len(s.questions) - 1
	return s
}

// Current is the name of the active context.
func (s *Session) Current() string { return s.current }

// Contexts lists the contexts started in this session.
func (s *Session) Contexts() []string {
	names := make([]string, 0, len(s.contexts))
	for n := range s.contexts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadQuestions reads one question per line, skipping blank lines.
func LoadQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			out = append(out, q)
		}
	}
	return out, sc.Err()
}

func (s *Session) info(msg string)   { fmt.Fprintln(s.out, infoStyle.Render(msg)) }
func (s *Session) warn(msg string)   { fmt.Fprintln(s.out, warningStyle.Render(msg)) }
func (s *Session) fail(msg string)   { fmt.Fprintln(s.out, errorStyle.Render(msg)) }
func (s *Session) failErr(err error) { s.fail(err.Error()) }

func (s *Session) conv() *conversation { return s.contexts[s.current] }

// Intro prints the model, the live contexts, and starts the default context.
func (s *Session) Intro(ctx context.Context) error {
	s.showModel(ctx)
	names, err := s.llm.Names(ctx)
	if err != nil {
		s.failErr(err)
	} else if len(names) > 0 {
		fmt.Fprintln(s.out, "The following contexts are active:")
		for _, n := range names {
			s.info("  " + n)
		}
		fmt.Fprintln(s.out)
	}
	return s.Start(ctx, s.defaultName, 2)
}

// Start creates (or reattaches to) a context and makes it current.
func (s *Session) Start(ctx context.Context, name string, history int) error {
	c := client.NewContextClient(name, s.baseURL, s.clientOpts...)
	st, err := c.Create(ctx, client.CreateOptions{History: history})
	if err != nil {
		return err
	}
	if !st.Success() {
		// 422 is also returned when the context already exists; reattach then.
		if _, err := c.Info(ctx); !st.OK || err != nil {
			return fmt.Errorf("create context %q: %d %s", name, st.Code, st.Text())
		}
		_, _ = c.Template(ctx)
	}
	s.started++
	s.contexts[name] = &conversation{
		client: c,
		style:  lipgloss.NewStyle().Foreground(palette[(s.started-1)%len(palette)]),
	}
	s.current = name
	return nil
}

// Prompt is the input prompt for the current context.
func (s *Session) Prompt() string {
	if c := s.conv(); c != nil {
		return c.style.Render("("+s.current+"):") + " "
	}
	return "(): "
}

// Run reads lines until .quit or end of input.
func (s *Session) Run(ctx context.Context, in LineReader) error {
	for {
		line := ".ask"
		if !s.auto {
			var err error
			line, err = in.Prompt(s.Prompt())
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
					fmt.Fprintln(s.out, "Goodbye and good luck.")
					return nil
				}
				return err
			}
			line = strings.TrimSpace(line)
			if line != "" {
				in.AppendHistory(line)
			}
		}
		if !s.Handle(ctx, line) {
			return nil
		}
	}
}

// Handle executes one input line. It returns false when the session should end.
func (s *Session) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	fields := strings.Fields(line)
	if needsContext[fields[0]] && s.conv() == nil {
		s.fail("No current context; use .start <name>.")
		return true
	}
	switch fields[0] {
	case ".quit", ".q":
		fmt.Fprintln(s.out, "So long and thanks for all the fish.")
		return false
	case ".cls":
		fmt.Fprint(s.out, "\x1b[2J\x1b[H")
	case ".help":
		fmt.Fprintln(s.out, helpText)
	case ".info":
		s.cmdInfo(ctx, fields)
	case ".restart":
		s.cmdRestart(ctx)
	case ".start":
		s.cmdStart(ctx, fields)
	case ".switch", ".sw":
		s.cmdSwitch(fields)
	case ".forget":
		if _, err := s.conv().client.Clear(ctx); err != nil {
			s.failErr(err)
			return true
		}
		fmt.Fprintln(s.out, "My mind is going. I can feel it.")
	case ".history":
		s.cmdHistory(ctx)
	case ".prompt":
		s.cmdPrompt(ctx, fields)
	case ".del":
		s.cmdDelete(ctx, fields)
	case ".template":
		s.cmdTemplate(ctx, fields)
	case ".list":
		s.cmdList(ctx)
	case ".ask":
		if q, ok := s.cmdAsk(fields); ok {
			s.Ask(ctx, q)
		}
	default:
		s.Ask(ctx, line)
	}
	return true
}

// Ask submits msg to the current context and prints the streamed reply.
func (s *Session) Ask(ctx context.Context, msg string) {
	c := s.conv()
	if c == nil {
		s.fail("No current context; use .start <name>.")
		return
	}
	ws, _, err := c.client.SubmitAndStream(ctx, msg)
	if err != nil {
		s.failErr(err)
		return
	}
	defer ws.Close()
	s.wrap.Reset()
	for word := range ws.All() {
		if text := s.wrap.Add(word); text != "" {
			fmt.Fprint(s.out, c.style.Render(text))
		}
	}
	fmt.Fprintln(s.out)
	if err := ws.Err(); err != nil {
		s.failErr(err)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func (s *Session) showModel(ctx context.Context) {
	info, err := s.llm.ModelInfo(ctx)
	if err != nil {
		s.failErr(err)
		return
	}
	out := map[string]any{
		"model":       info.Model,
		"model_type":  info.ModelType,
		"temperature": info.Temperature,
		"max_tokens":  info.MaxTokens,
		"n_ctx":       info.NumCtx,
		"host":        s.baseURL,
	}
	fmt.Fprintln(s.out, "Current model information:")
	s.printJSON(out)
}

func (s *Session) printJSON(v any) {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		s.failErr(err)
		return
	}
	fmt.Fprintln(s.out, string(raw))
	fmt.Fprintln(s.out)
}

func (s *Session) cmdInfo(ctx context.Context, fields []string) {
	if len(fields) != 2 {
		s.fail("Invalid command.")
		return
	}
	switch fields[1] {
	case "model":
		s.showModel(ctx)
	case "context":
		if s.conv() == nil {
			s.fail("No current context; use .start <name>.")
			return
		}
		info, err := s.conv().client.Info(ctx)
		if err != nil {
			s.failErr(err)
			return
		}
		fmt.Fprintf(s.out, "Current information for context '%s':\n", s.current)
		s.printJSON(info)
	default:
		s.fail("Invalid command.")
	}
}

func (s *Session) cmdRestart(ctx context.Context) {
	if _, err := s.llm.Restart(ctx); err != nil {
		s.failErr(err)
		return
	}
	s.contexts = map[string]*conversation{}
	s.started = 0
	s.current = ""
	if err := s.Start(ctx, s.defaultName, 2); err != nil {
		s.failErr(err)
		return
	}
	fmt.Fprintln(s.out, "My mind is clear now.")
}

func (s *Session) cmdStart(ctx context.Context, fields []string) {
	if len(fields) < 2 || len(fields) > 3 {
		s.fail("Invalid context command.")
		return
	}
	name := fields[1]
	if _, ok := s.contexts[name]; ok {
		s.warn(fmt.Sprintf("Context '%s' already exists.", name))
		return
	}
	history := 2
	if len(fields) == 3 {
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 0 {
			s.fail("Invalid context command.")
			return
		}
		history = n
	}
	if err := s.Start(ctx, name, history); err != nil {
		s.failErr(err)
		return
	}
	if len(fields) == 3 {
		s.warn(fmt.Sprintf("Created context '%s' with history of %d.", name, history))
	} else {
		s.warn(fmt.Sprintf("Created context '%s'.", name))
	}
}

func (s *Session) cmdSwitch(fields []string) {
	if len(fields) != 2 {
		s.fail("Invalid command.")
		return
	}
	if _, ok := s.contexts[fields[1]]; !ok {
		s.fail(fmt.Sprintf("Context '%s' does not exist.", fields[1]))
		return
	}
	s.current = fields[1]
	s.warn(fmt.Sprintf("Switched to context '%s'.", fields[1]))
}

func (s *Session) cmdHistory(ctx context.Context) {
	turns, err := s.conv().client.History(ctx)
	if err != nil {
		s.failErr(err)
		return
	}
	if len(turns) == 0 {
		s.warn("Unable to get any history.")
		return
	}
	for _, t := range turns {
		fmt.Fprintf(s.out, "{'role': '%s', 'content': '%s'}\n", t.Role, t.Content)
	}
}

func (s *Session) cmdPrompt(ctx context.Context, fields []string) {
	sentence := strings.Join(fields[1:], " ")
	if _, err := s.conv().client.SetSystemPrompt(ctx, sentence); err != nil {
		s.failErr(err)
		return
	}
	if sentence == "" {
		s.info("Set empty system prompt.")
		return
	}
	s.info(fmt.Sprintf("System prompt set to '%s'.", sentence))
}

func (s *Session) cmdDelete(ctx context.Context, fields []string) {
	if len(fields) != 2 {
		s.fail("Invalid delete context command.")
		return
	}
	name := fields[1]
	c, ok := s.contexts[name]
	switch {
	case !ok:
		s.fail(fmt.Sprintf("Context '%s' does not exist.", name))
	case name == s.current:
		s.warn("You cannot delete the current context.")
	default:
		if _, err := c.client.Delete(ctx); err != nil {
			s.failErr(err)
			return
		}
		delete(s.contexts, name)
		s.info(fmt.Sprintf("Deleted context '%s'.", name))
	}
}

func (s *Session) cmdTemplate(ctx context.Context, fields []string) {
	if len(fields) < 2 {
		s.fail("Invalid template subcommand.")
		return
	}
	c := s.conv().client
	switch strings.ToLower(fields[1]) {
	case "show":
		view, err := c.Template(ctx)
		if err != nil {
			s.warn(err.Error())
			return
		}
		file, text, _ := strings.Cut(view, "|")
		if strings.TrimSpace(text) == "" {
			text = "Template has not been rendered yet."
		}
		s.info(fmt.Sprintf("  Loaded from '%s'\n %s", file, text))
	case "load":
		file := c.LastLoadedTemplate()
		if len(fields) == 3 {
			file = fields[2]
		}
		if file == "" {
			s.warn("  Load a template first.")
			return
		}
		st, err := c.LoadTemplate(ctx, file)
		if err != nil || !st.Success() {
			s.warn(fmt.Sprintf("  Unable to load template '%s'.", file))
			return
		}
		s.info(fmt.Sprintf("  Loaded template '%s'.", file))
	default:
		s.fail(fmt.Sprintf("Invalid template subcommand '%s'.", fields[1]))
	}
}

func (s *Session) cmdList(ctx context.Context) {
	names, err := s.llm.Names(ctx)
	if err != nil {
		s.failErr(err)
		return
	}
	for _, n := range names {
		s.info("  " + n)
	}
}

// cmdAsk picks the question for .ask, .ask n or .ask n m.
func (s *Session) cmdAsk(fields []string) (string, bool) {
	if len(s.questions) == 0 {
		s.fail("No questions loaded.")
		s.auto = false
		return "", false
	}
	switch len(fields) {
	case 1:
	case 2, 3:
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 || n > len(s.questions) {
			s.fail("Invalid question command.")
			return "", false
		}
		s.qIndex = n - 1
		if len(fields) == 3 {
			m, err := strconv.Atoi(fields[2])
			if err != nil || m < n || m > len(s.questions) {
				s.fail("Invalid question command.")
				return "", false
			}
			s.qEnd = m - 1
			s.auto = true
		}
	default:
		s.fail("Invalid question command.")
		return "", false
	}
	q := s.questions[s.qIndex]
	fmt.Fprintf(s.out, "%d. %s\n", s.qIndex+1, q)
	s.qIndex++
	if s.qIndex > s.qEnd || s.qIndex >= len(s.questions) {
		s.qIndex = s.qStart
		s.qEnd = len(s.questions) - 1
		s.auto = false
	}
	return q, true
}
