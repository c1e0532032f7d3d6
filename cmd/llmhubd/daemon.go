package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"llmhub/internal/banner"
	"llmhub/internal/config"
	"llmhub/internal/convo"
	"llmhub/internal/dispatch"
	"llmhub/internal/domain"
	"llmhub/internal/gateway"
	"llmhub/internal/llm"
	"llmhub/internal/logging"
	"llmhub/internal/summarizer"
	"llmhub/internal/template"
	"llmhub/internal/tokenizer"
)

// bindWaitIterations is the max loop count waiting for the gateway to bind.
var bindWaitIterations = 50

// bannerOpts is nil in production; tests silence the animation.
var bannerOpts *banner.StartupOpts

// logWriter receives the daemon's structured log.
var logWriter io.Writer = os.Stderr

// hub is every long-lived component of a running daemon.
type hub struct {
	registry   *convo.Registry
	dispatcher *dispatch.Dispatcher
	server     *gateway.Server
	watcher    *template.Watcher
}

// runDaemon loads config, builds the hub and serves until shutdownCh closes
// or a shutdown signal arrives.
func runDaemon(cmd *cobra.Command, cfgFlag, version string, shutdownCh <-chan struct{}) error {
	out := cmd.OutOrStdout()
	banner.Startup(version, bannerOpts)

	cfgPath := config.Path(cfgFlag)
	cfg, err := config.Load(cfgPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(out, "  (no config at %s, using defaults)\n", cfgPath)
		cfg = config.Default()
	case err != nil:
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := logging.New(cfg.Infra, logWriter)
	slog.SetDefault(logger)

	h, err := buildHub(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()
	if shutdownCh != nil {
		go func() {
			select {
			case <-shutdownCh:
				stop()
			case <-ctx.Done():
			}
		}()
	}
	return serve(ctx, h, out, logger)
}

// buildHub wires the engine, summarizer, tokenizer, registry, dispatcher and
// gateway described by cfg. The dispatcher is started.
func buildHub(cfg *domain.Config, logger *slog.Logger) (*hub, error) {
	engine, err := llm.NewEngine(&cfg.Engine, &cfg.Retry, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	opts := []convo.Option{
		convo.WithLogger(logger),
		convo.WithSummarizer(summarizer.New(engine, summarizer.WithLogger(logger))),
		convo.WithDefaultTemplate(cfg.Contexts.DefaultTemplate),
	}
	if cfg.Tokenizer.Encoding != "" {
		tok, err := tokenizer.NewTikToken(cfg.Tokenizer.Encoding)
		if err != nil {
			logger.Warn("token counting disabled", "encoding", cfg.Tokenizer.Encoding, "error", err)
		} else {
			opts = append(opts, convo.WithTokenizer(tok))
		}
	}

	registry := convo.NewRegistry(engine, template.NewLoader(cfg.Contexts.TemplateDir), opts...)
	d := dispatch.New(registry, engine, dispatch.WithLogger(logger))
	api := gateway.NewAPI(registry, d, cfg.Contexts, gateway.WithAPILogger(logger))
	srv, err := gateway.NewServer(&cfg.Gateway, api, gateway.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	h := &hub{registry: registry, dispatcher: d, server: srv}
	if cfg.Contexts.WatchTemplates {
		h.watcher = template.NewWatcher(cfg.Contexts.TemplateDir, func(name string) {
			if n := registry.ReloadTemplateFile(name); n > 0 {
				logger.Info("template reloaded", "file", name, "contexts", n)
			}
		}, logger)
	}
	d.Start()
	return h, nil
}

// serve runs the gateway and the template watcher until ctx is done or the
// gateway fails, then shuts the dispatcher down.
func serve(ctx context.Context, h *hub, out io.Writer, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	shutdown := make(chan struct{})

	g.Go(func() error {
		return h.server.Run(shutdown)
	})
	g.Go(func() error {
		<-gctx.Done()
		close(shutdown)
		return nil
	})
	if h.watcher != nil {
		g.Go(func() error {
			// A missing or unwatchable directory only disables reloads.
			if err := h.watcher.Run(gctx); err != nil {
				logger.Warn("template watcher stopped", "error", err)
			}
			return nil
		})
	}

	var bound string
	for i := 0; i < bindWaitIterations; i++ {
		if a := h.server.Addr(); a != "" {
			bound = a
			break
		}
		if h.server.ListenErr() != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if bound != "" {
		fmt.Fprintf(out, "  listen %s\n  ready.\n", bound)
	}

	err := g.Wait()
	h.dispatcher.Shutdown()
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}
