package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"llmhub/internal/banner"
	"llmhub/internal/repl"
)

// version is set at build time via ldflags.
var version = "dev"

type options struct {
	host      string
	port      int
	questions string
	name      string
}

// Hooks for tests.
var (
	newLineReader = func() lineReader {
		l := liner.NewLiner()
		l.SetCtrlCAborts(true)
		return l
	}
	bannerOpts *banner.StartupOpts
)

type lineReader interface {
	repl.LineReader
	Close() error
}

func newRootCommand() *cobra.Command {
	var o options
	root := &cobra.Command{
		Use:           "llmhub",
		Short:         "Console client for an llmhub server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, cmd.OutOrStdout())
		},
	}
	root.Flags().StringVarP(&o.host, "host", "t", "localhost", "server host")
	root.Flags().IntVarP(&o.port, "port", "p", 8080, "server port")
	root.Flags().StringVarP(&o.questions, "questions", "q", "questions.txt", "questions file for .ask")
	root.Flags().StringVarP(&o.name, "name", "n", "", "context name (default <user>-<host>)")
	return root
}

func run(ctx context.Context, o options, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	banner.Startup(version, bannerOpts)

	var opts []repl.Option
	if qs, err := repl.LoadQuestions(o.questions); err == nil {
		opts = append(opts, repl.WithQuestions(qs))
	} else if !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(out, "questions: %v\n", err)
	}
	name := o.name
	if name == "" {
		name = defaultContextName()
	}

	baseURL := "http://" + net.JoinHostPort(o.host, strconv.Itoa(o.port))
	s := repl.NewSession(baseURL, name, out, opts...)
	if err := s.Intro(ctx); err != nil {
		return fmt.Errorf("unable to create context '%s': %w", name, err)
	}

	in := newLineReader()
	defer in.Close()
	return s.Run(ctx, in)
}

// defaultContextName is "<login>-<short hostname>".
func defaultContextName() string {
	login := "user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		login = u.Username
	}
	if i := strings.LastIndexAny(login, `\/`); i >= 0 {
		login = login[i+1:]
	}
	host, _ := os.Hostname()
	host, _, _ = strings.Cut(host, ".")
	if host == "" {
		host = "local"
	}
	return strings.ToLower(login + "-" + host)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
