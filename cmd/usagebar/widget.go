package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/usagebar/usagebar/internal/agent"
	"github.com/usagebar/usagebar/internal/anthropic"
	"github.com/usagebar/usagebar/internal/config"
	"github.com/usagebar/usagebar/internal/core"
	"github.com/usagebar/usagebar/internal/keyring"
	"github.com/usagebar/usagebar/internal/service"
	"github.com/usagebar/usagebar/internal/widget"
)

func newWidgetCommand(cfg config.Config) *cobra.Command {
	var format string
	var watch bool
	var socketPath string

	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Emit usage for status bars: waybar JSON, plain text or raw state.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(format) == "" {
				format = cfg.Widget.Format
			}
			if watch {
				return runWidgetWatch(cmd.Context(), cfg, format)
			}
			return runWidgetOnce(cmd.Context(), cfg, format, socketPath)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: waybar, plain or json (default from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and emit a line on every state change")
	cmd.Flags().StringVar(&socketPath, "socket", "", "agent socket path (default auto)")
	return cmd
}

// runWidgetOnce prefers the agent's shared state; without an agent it pays
// for one direct fetch so the bar still shows something.
func runWidgetOnce(ctx context.Context, cfg config.Config, format, socketPath string) error {
	state, err := stateFromAgent(ctx, socketPath)
	if err != nil {
		log.Printf("widget: agent unavailable, fetching directly: %v", err)
		state = fetchStateDirect(ctx, cfg)
	}
	out, err := widget.Render(state, format, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func stateFromAgent(ctx context.Context, socketPath string) (core.State, error) {
	path, err := resolveSocketPath(socketPath)
	if err != nil {
		return core.State{}, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return agent.NewClient(path).State(reqCtx)
}

// fetchStateDirect builds a one-shot state without an agent: resolve a token
// (environment wins, then the preferred source, then the other one) and hit
// the usage API once.
func fetchStateDirect(ctx context.Context, cfg config.Config) core.State {
	preferred, err := core.ParseTokenSource(cfg.PreferredSource)
	if err != nil {
		preferred = core.SourceClaudeCode
	}
	state := core.State{PreferredSource: preferred}

	token, origin, err := widget.ResolveToken(keyring.NewStore(), preferred)
	if err != nil {
		return state
	}
	state.HasCredential = true

	resp, err := anthropic.NewClient().FetchUsage(ctx, token)
	if err != nil {
		state.LastError = usageErrorFromFetch(err)
		return state
	}

	now := time.Now()
	state.Snapshot = resp.Snapshot(now)
	state.LastUpdated = &now
	if source, parseErr := core.ParseTokenSource(origin); parseErr == nil {
		state.ActiveSource = source
	}
	return state
}

func usageErrorFromFetch(err error) *core.UsageError {
	var statusErr *anthropic.StatusError
	if errors.As(err, &statusErr) {
		return core.HTTPError(statusErr.Status, statusErr.Body)
	}
	var decodeErr *anthropic.DecodeError
	if errors.As(err, &decodeErr) {
		return core.DecodingError(decodeErr)
	}
	return core.NetworkError(err)
}

// runWidgetWatch runs its own service and streams one rendered line per
// state change, for bars that consume continuous output.
func runWidgetWatch(ctx context.Context, cfg config.Config, format string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc := service.New(service.Options{
		Store:    keyring.NewStore(),
		Client:   anthropic.NewClient(),
		Prefs:    config.NewFileStore(""),
		Interval: time.Duration(cfg.RefreshIntervalSeconds) * time.Second,
	})

	states, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	svc.Start(ctx)
	defer svc.Shutdown()

	stopWatch, err := config.Watch(config.ConfigPath(), func(loaded config.Config) {
		if source, parseErr := core.ParseTokenSource(loaded.PreferredSource); parseErr == nil {
			svc.ApplyPreferredSource(ctx, source)
		}
	})
	if err != nil {
		log.Printf("widget: config watch: %v", err)
	} else {
		defer func() { _ = stopWatch() }()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	out := bufio.NewWriter(os.Stdout)
	for {
		select {
		case <-sigCh:
			return nil
		case state, ok := <-states:
			if !ok {
				return nil
			}
			line, renderErr := widget.Render(state, format, time.Now())
			if renderErr != nil {
				return renderErr
			}
			fmt.Fprintln(out, line)
			if err := out.Flush(); err != nil {
				return err
			}
		}
	}
}
