package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/usagebar/usagebar/internal/config"
	"github.com/usagebar/usagebar/internal/core"
	"github.com/usagebar/usagebar/internal/keyring"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the manually entered Claude token.",
	}
	cmd.AddCommand(newTokenSetCommand())
	cmd.AddCommand(newTokenClearCommand())
	cmd.AddCommand(newTokenStatusCommand())
	return cmd
}

func newTokenSetCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "set [TOKEN]",
		Short: "Store a manual token. Reads from stdin when TOKEN is omitted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				data, err := io.ReadAll(io.LimitReader(os.Stdin, 4096))
				if err != nil {
					return fmt.Errorf("read token from stdin: %w", err)
				}
				token = string(data)
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("token is empty")
			}

			if client, ok := agentClient(socketPath); ok {
				if _, err := client.SetToken(cmd.Context(), token); err != nil {
					return err
				}
				fmt.Println("manual token stored (via agent)")
				return nil
			}

			if err := keyring.NewStore().SetManualToken(token); err != nil {
				return err
			}
			fmt.Println("manual token stored")
			if loaded, err := config.Load(); err == nil {
				if source, perr := core.ParseTokenSource(loaded.PreferredSource); perr == nil && source != core.SourceManual {
					fmt.Println("preferred source is still " + string(source) + "; run `usagebar source manual` to use it")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "agent socket path (default auto)")
	return cmd
}

func newTokenClearCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored manual token.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if client, ok := agentClient(socketPath); ok {
				if _, err := client.ClearToken(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("manual token cleared (via agent)")
				return nil
			}
			if err := keyring.NewStore().DeleteManualToken(); err != nil {
				return err
			}
			fmt.Println("manual token cleared")
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "agent socket path (default auto)")
	return cmd
}

func newTokenStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which credentials are available.",
		RunE: func(_ *cobra.Command, _ []string) error {
			store := keyring.NewStore()

			fmt.Println("claude-code: " + describeCredential(store.ClaudeCodeToken))
			fmt.Println("manual:      " + describeCredential(store.ManualToken))

			if loaded, err := config.Load(); err == nil {
				fmt.Println("preferred:   " + loaded.PreferredSource)
			}
			return nil
		},
	}
}

func describeCredential(read func() (string, error)) string {
	token, err := read()
	switch {
	case err == nil:
		return "available (" + maskToken(token) + ")"
	case errors.Is(err, keyring.ErrNotFound):
		return "not found"
	default:
		return "error: " + err.Error()
	}
}

func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:12] + "…"
}
