package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/usagebar/usagebar/internal/config"
	"github.com/usagebar/usagebar/internal/core"
	"github.com/usagebar/usagebar/internal/widget"
)

func newRefreshCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch usage now and print it.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if client, ok := agentClient(socketPath); ok {
				state, err := client.Refresh(cmd.Context())
				if err != nil {
					return err
				}
				return printPlainState(state)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return printPlainState(fetchStateDirect(cmd.Context(), cfg))
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "agent socket path (default auto)")
	return cmd
}

func printPlainState(state core.State) error {
	out, err := widget.Render(state, widget.FormatPlain, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(out)
	if state.LastError != nil {
		return fmt.Errorf("refresh failed: %s", state.LastError.Message)
	}
	return nil
}
