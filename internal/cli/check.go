// Package cli holds the daemon's non-serving subcommands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"llmhub/internal/config"
	"llmhub/internal/domain"
)

// Function variables for dependency injection in tests.
var (
	configLoad         = config.Load
	configWriteDefault = config.WriteDefault
	osMkdirAll         = os.MkdirAll
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	ConfigPath string
	Fix        bool // write a default config and create the template dir when missing
}

// RunCheck validates the config file and the template directory, optionally
// repairing what is missing. Returns the process exit code.
func RunCheck(opts CheckOptions, stdout, stderr io.Writer) int {
	cfgPath := config.Path(opts.ConfigPath)
	note := func(section, message string) {
		fmt.Fprintf(stdout, "  [%s] %s\n", section, message)
	}

	cfg, err := configLoad(cfgPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		note("Config", fmt.Sprintf("No config at %s.", cfgPath))
		if !opts.Fix {
			note("Config", "Run with --fix to create a default llmhub.json.")
			fmt.Fprintln(stdout, "  Check complete.")
			return 0
		}
		if err := configWriteDefault(cfgPath); err != nil {
			fmt.Fprintf(stderr, "  failed to write default config: %v\n", err)
			return 1
		}
		note("Config", fmt.Sprintf("Wrote default config to %s.", cfgPath))
		cfg = config.Default()
	case err != nil:
		note("Config", err.Error())
		return 1
	default:
		note("Config", fmt.Sprintf("Loaded %s.", cfgPath))
	}

	code := 0
	if err := config.Validate(cfg); err != nil {
		note("Config", err.Error())
		code = 1
	}

	note("Gateway", fmt.Sprintf("listen %s:%d", bindLabel(cfg.Gateway.Bind), cfg.Gateway.Port))
	note("Engine", engineLabel(cfg.Engine))
	if cfg.Tokenizer.Encoding == "" {
		note("Tokenizer", "disabled; prompt_tokens will report 0.")
	} else {
		note("Tokenizer", cfg.Tokenizer.Encoding)
	}

	if err := checkTemplates(cfg, opts.Fix, note); err != nil {
		note("Templates", err.Error())
		code = 1
	}

	fmt.Fprintln(stdout, "  Check complete.")
	return code
}

func checkTemplates(cfg *domain.Config, fix bool, note func(string, string)) error {
	dir := cfg.Contexts.TemplateDir
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) && fix {
		abs, _ := filepath.Abs(dir)
		if err := osMkdirAll(abs, 0755); err != nil {
			return fmt.Errorf("templateDir %q: mkdir failed: %w", abs, err)
		}
		note("Templates", fmt.Sprintf("Created %s.", abs))
	}
	if err := config.CheckTemplateDir(cfg); err != nil {
		return err
	}
	if cfg.Contexts.DefaultTemplate == "" {
		note("Templates", fmt.Sprintf("%s ok; no default template, create requests must name one.", dir))
		return nil
	}
	note("Templates", fmt.Sprintf("%s ok; default %s.", dir, cfg.Contexts.DefaultTemplate))
	return nil
}

func bindLabel(bind string) string {
	if bind == "" {
		return "*"
	}
	return bind
}

func engineLabel(e domain.EngineConfig) string {
	provider := e.Provider
	if provider == "" {
		provider = "local"
	}
	if e.Model == "" {
		return provider
	}
	return provider + " model=" + e.Model
}
