package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/usagebar/usagebar/internal/agent"
	"github.com/usagebar/usagebar/internal/config"
)

func newAgentCommand(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the background agent that polls usage for widgets.",
	}
	cmd.AddCommand(newAgentRunCommand(cfg))
	cmd.AddCommand(newAgentInstallCommand())
	cmd.AddCommand(newAgentUninstallCommand())
	cmd.AddCommand(newAgentStartCommand())
	cmd.AddCommand(newAgentStopCommand())
	cmd.AddCommand(newAgentStatusCommand())
	return cmd
}

func newAgentRunCommand(cfg config.Config) *cobra.Command {
	var socketPath string
	var interval time.Duration
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent in the foreground.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return agent.RunServer(agent.Config{
				SocketPath: socketPath,
				Interval:   interval,
				Verbose:    verbose,
			})
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path (default auto)")
	cmd.Flags().DurationVar(&interval, "interval", time.Duration(cfg.RefreshIntervalSeconds)*time.Second, "refresh interval")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable agent logs")
	return cmd
}

func newAgentInstallCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the agent as a login service (launchd or systemd user unit).",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolveSocketPath(socketPath)
			if err != nil {
				return err
			}
			manager, err := agent.NewServiceManager(path)
			if err != nil {
				return err
			}
			if err := manager.Install(); err != nil {
				return err
			}
			fmt.Println("agent service installed")
			if hint := manager.StatusHint(); hint != "" {
				fmt.Println("check it with: " + hint)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path (default auto)")
	return cmd
}

func newAgentUninstallCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the agent service and remove its unit.",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolveSocketPath(socketPath)
			if err != nil {
				return err
			}
			manager, err := agent.NewServiceManager(path)
			if err != nil {
				return err
			}
			if err := manager.Uninstall(); err != nil {
				return err
			}
			fmt.Println("agent service uninstalled")
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path (default auto)")
	return cmd
}

func newAgentStartCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the installed agent service.",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolveSocketPath(socketPath)
			if err != nil {
				return err
			}
			manager, err := agent.NewServiceManager(path)
			if err != nil {
				return err
			}
			if err := manager.Start(); err != nil {
				return err
			}
			fmt.Println("agent service started")
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path (default auto)")
	return cmd
}

func newAgentStopCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the installed agent service.",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolveSocketPath(socketPath)
			if err != nil {
				return err
			}
			manager, err := agent.NewServiceManager(path)
			if err != nil {
				return err
			}
			if err := manager.Stop(); err != nil {
				return err
			}
			fmt.Println("agent service stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path (default auto)")
	return cmd
}

func newAgentStatusCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agent install state and probe its health endpoint.",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolveSocketPath(socketPath)
			if err != nil {
				return err
			}
			return agent.Status(path)
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path (default auto)")
	return cmd
}
