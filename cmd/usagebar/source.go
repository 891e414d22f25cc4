package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/usagebar/usagebar/internal/config"
	"github.com/usagebar/usagebar/internal/core"
)

func newSourceCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:       "source [claude-code|manual]",
		Short:     "Show or set the preferred token source.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(core.SourceClaudeCode), string(core.SourceManual)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				loaded, err := config.Load()
				if err != nil {
					return err
				}
				fmt.Println(loaded.PreferredSource)
				return nil
			}

			source, err := core.ParseTokenSource(args[0])
			if err != nil {
				return err
			}

			if client, ok := agentClient(socketPath); ok {
				if _, err := client.SetSource(cmd.Context(), source); err != nil {
					return err
				}
				fmt.Printf("preferred source set to %s (via agent)\n", source)
				return nil
			}

			if err := config.SavePreferredSourceTo(config.ConfigPath(), source); err != nil {
				return err
			}
			fmt.Printf("preferred source set to %s\n", source)
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "agent socket path (default auto)")
	return cmd
}
