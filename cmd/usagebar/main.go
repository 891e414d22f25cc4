package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/usagebar/usagebar/internal/config"
	"github.com/usagebar/usagebar/internal/version"
)

func main() {
	if os.Getenv("USAGEBAR_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	root := cobra.Command{
		Use:   "usagebar",
		Short: "usagebar keeps your Claude plan usage one glance away, in the status bar or the terminal.",
		Run: func(_ *cobra.Command, _ []string) {
			runDashboard(cfg)
		},
	}

	root.AddCommand(newWidgetCommand(cfg))
	root.AddCommand(newTokenCommand())
	root.AddCommand(newSourceCommand())
	root.AddCommand(newRefreshCommand())
	root.AddCommand(newAgentCommand(cfg))
	root.AddCommand(newUpdateCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the usagebar version.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.String())
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
