package banner

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StartupOpts allows tests to capture output and disable delays.
// If nil, Startup uses os.Stdout and default animation delays.
type StartupOpts struct {
	Writer  io.Writer // if set, use instead of os.Stdout
	NoDelay bool      // if true, do not sleep between lines or at end
}

// Banner ASCII art (LLMHUB).
const bannerArt = `
 _      _      __  __  _    _  _    _  ____
| |    | |    |  \/  || |  | || |  | ||  _ \
| |    | |    | \  / || |__| || |  | || |_) |
| |    | |    | |\/| ||  __  || |  | ||  _ <
| |____| |____| |  | || |  | || |__| || |_) |
|______|______|_|  |_||_|  |_| \____/ |____/
`

var taglineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)

// Tagline returns the styled line printed under the art.
func Tagline(version string) string {
	return taglineStyle.Render("  shared model, many conversations") + fmt.Sprintf("  v%s", version)
}

// Startup prints the ASCII banner line by line, then the version line.
// If opts is non-nil and opts.Writer is set, output goes there; if opts.NoDelay is true, delays are skipped.
func Startup(version string, opts *StartupOpts) {
	w := io.Writer(os.Stdout)
	lineDelay := 25 * time.Millisecond
	endDelay := 100 * time.Millisecond
	if opts != nil {
		if opts.Writer != nil {
			w = opts.Writer
		}
		if opts.NoDelay {
			lineDelay = 0
			endDelay = 0
		}
	}

	for _, line := range splitLines(bannerArt) {
		fmt.Fprintln(w, line)
		if lineDelay > 0 {
			time.Sleep(lineDelay)
		}
	}
	fmt.Fprintln(w, Tagline(version))
	if endDelay > 0 {
		time.Sleep(endDelay)
	}
	fmt.Fprintln(w)
}

func splitLines(s string) []string {
	var out []string
	var line []rune
	for _, r := range s {
		if r == '\n' {
			if len(line) > 0 || out != nil {
				out = append(out, string(line))
			}
			line = line[:0]
			continue
		}
		line = append(line, r)
	}
	if len(line) > 0 {
		out = append(out, string(line))
	}
	return out
}
