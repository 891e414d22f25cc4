package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/usagebar/usagebar/internal/anthropic"
	"github.com/usagebar/usagebar/internal/config"
	"github.com/usagebar/usagebar/internal/core"
	"github.com/usagebar/usagebar/internal/keyring"
	"github.com/usagebar/usagebar/internal/service"
	"github.com/usagebar/usagebar/internal/tui"
)

// runDashboard hosts its own refresh service; the TUI is a short-lived
// surface and does not depend on the agent being installed.
func runDashboard(cfg config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := service.New(service.Options{
		Store:    keyring.NewStore(),
		Client:   anthropic.NewClient(),
		Prefs:    config.NewFileStore(""),
		Interval: time.Duration(cfg.RefreshIntervalSeconds) * time.Second,
	})

	model := tui.NewModel()

	var program *tea.Program

	model.SetOnRefresh(func() {
		go svc.Refresh(ctx)
	})
	model.SetOnSetSource(func(source core.TokenSource) {
		go func() {
			if err := svc.SetPreferredSource(ctx, source); err != nil {
				log.Printf("dashboard: set preferred source: %v", err)
			}
		}()
	})
	model.SetOnSetToken(func(token string) {
		go func() {
			if err := svc.SetManualToken(ctx, token); err != nil {
				log.Printf("dashboard: set manual token: %v", err)
			}
		}()
	})
	model.SetOnClearToken(func() {
		go func() {
			if err := svc.ClearManualToken(ctx); err != nil {
				log.Printf("dashboard: clear manual token: %v", err)
			}
		}()
	})

	program = tea.NewProgram(model, tea.WithAltScreen())

	states, unsubscribe := svc.Subscribe()
	defer unsubscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case state, ok := <-states:
				if !ok {
					return
				}
				program.Send(tui.StateMsg(state))
			}
		}
	}()

	svc.Start(ctx)
	defer svc.Shutdown()

	// Pick up `usagebar source ...` or hand edits while the dashboard runs.
	stopWatch, err := config.Watch(config.ConfigPath(), func(loaded config.Config) {
		if source, parseErr := core.ParseTokenSource(loaded.PreferredSource); parseErr == nil {
			svc.ApplyPreferredSource(ctx, source)
		}
	})
	if err != nil {
		log.Printf("dashboard: config watch: %v", err)
	} else {
		defer func() { _ = stopWatch() }()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		log.SetOutput(os.Stderr)
		log.Fatalf("TUI error: %v", err)
	}
}
